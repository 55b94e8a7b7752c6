package pcm

import "fmt"

// Range selects Length samples per channel starting at sample Start.
type Range struct {
	Start  uint64
	Length uint64
}

// LoadOptions control Load.
type LoadOptions struct {
	// MetadataOnly skips the audio frames.
	MetadataOnly bool
	// Range limits decoding to a range of samples; nil decodes everything.
	Range *Range
}

// Result is the content of a FLAC file.
type Result struct {
	SampleRate    int
	BitsPerSample int
	// Decoded audio; nil when only metadata was requested.
	Audio    *Buffer
	Metadata *Metadata
}

// Load reads the FLAC file at path. A nil opts decodes the entire file.
func Load(path string, opts *LoadOptions) (*Result, error) {
	if opts == nil {
		opts = new(LoadOptions)
	}

	dec, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	md := dec.Metadata()
	res := &Result{
		SampleRate:    md.SampleRate,
		BitsPerSample: md.BitsPerSample,
		Metadata:      md,
	}

	switch {
	case opts.MetadataOnly:
		return res, nil
	case opts.Range != nil:
		res.Audio, err = dec.ReadRange(opts.Range.Start, opts.Range.Length)
	default:
		res.Audio, err = dec.ReadAll()
	}
	if err != nil {
		return nil, err
	}

	return res, nil
}

// Save writes audio as the FLAC file at path.
//
// The stream format is taken from audio and sampleRate; a buffer without a
// sample size is stored with DefaultBitsPerSample. Comments and pictures are
// taken from md, which may be nil, and whose format fields must agree with
// audio when set. A nil opts selects DefaultOptions.
func Save(path string, audio *Buffer, sampleRate int, md *Metadata, opts *Options) error {
	if audio == nil {
		return validationError("save", fmt.Errorf("missing audio buffer"))
	}

	buf := *audio
	if buf.BitsPerSample == 0 {
		buf.BitsPerSample = DefaultBitsPerSample
	}

	out := NewMetadata(sampleRate, buf.Channels, buf.BitsPerSample)
	if md != nil {
		if err := checkFormat(md, sampleRate, &buf); err != nil {
			return err
		}
		if md.Vendor != "" {
			out.Vendor = md.Vendor
		}
		out.Comments = md.Comments.Clone()
		out.Pictures = md.Pictures
	}

	return WriteFile(path, &buf, out, opts)
}

// checkFormat reports whether the format fields set in md agree with the
// format of the saved audio.
func checkFormat(md *Metadata, sampleRate int, buf *Buffer) error {
	switch {
	case md.SampleRate != 0 && md.SampleRate != sampleRate:
		return validationError("save", fmt.Errorf("sample rate mismatch; metadata %d, argument %d", md.SampleRate, sampleRate))
	case md.Channels != 0 && md.Channels != buf.Channels:
		return validationError("save", fmt.Errorf("channel count mismatch; metadata %d, buffer %d", md.Channels, buf.Channels))
	case md.BitsPerSample != 0 && md.BitsPerSample != buf.BitsPerSample:
		return validationError("save", fmt.Errorf("bits-per-sample mismatch; metadata %d, buffer %d", md.BitsPerSample, buf.BitsPerSample))
	}
	return nil
}
