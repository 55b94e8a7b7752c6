package pcm

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pchchv/flacio"
	"github.com/pchchv/flacio/internal/ioutilx"
	"github.com/pchchv/flacio/meta"
)

// Options control the encoding of a stream.
type Options struct {
	// Compression level; between 0 (fastest) and 8 (smallest).
	CompressionLevel int
	// Expected sample size of the buffer; 0 skips the check.
	BitsPerSample int
	// SeekTable stores a seek table in the stream.
	SeekTable bool
	// Number of samples between seek points; 0 stores one point per frame.
	SeekPointInterval int
	// Size in bytes of a padding block; 0 stores none.
	Padding int
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() *Options {
	return &Options{CompressionLevel: flacio.DefaultLevel}
}

// validate reports whether opts are consistent with buf.
func (opts *Options) validate(buf *Buffer) error {
	if opts.CompressionLevel < 0 || opts.CompressionLevel > flacio.MaxLevel {
		return validationError("write", fmt.Errorf("invalid compression level (%d); expected 0 to %d", opts.CompressionLevel, flacio.MaxLevel))
	}

	if opts.BitsPerSample != 0 && opts.BitsPerSample != buf.BitsPerSample {
		return validationError("write", fmt.Errorf("bits-per-sample override (%d) does not match buffer (%d)", opts.BitsPerSample, buf.BitsPerSample))
	}

	if opts.SeekPointInterval < 0 {
		return validationError("write", fmt.Errorf("negative seek point interval (%d)", opts.SeekPointInterval))
	}

	if opts.Padding < 0 || opts.Padding > meta.MaxLength {
		return validationError("write", fmt.Errorf("invalid padding length (%d)", opts.Padding))
	}

	return nil
}

// Write encodes buf as a FLAC stream described by md, writing to w.
// A nil opts selects DefaultOptions.
//
// Nothing is written if buf, md or opts are invalid. If w implements
// io.WriteSeeker the stream is written in place and its StreamInfo block is
// completed once all frames are written; otherwise the stream is built in
// memory and written at once.
func Write(w io.Writer, buf *Buffer, md *Metadata, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}

	if err := buf.Validate(); err != nil {
		return err
	}

	if err := md.Validate(); err != nil {
		return err
	}

	if err := md.matches(buf); err != nil {
		return err
	}

	if err := opts.validate(buf); err != nil {
		return err
	}

	if ws, ok := w.(io.WriteSeeker); ok {
		return encode(&seekSink{sink: sink{w: ws}, ws: ws}, buf, md, opts)
	}

	mem := new(ioutilx.Buffer)
	if err := encode(mem, buf, md, opts); err != nil {
		return err
	}

	out := &sink{w: w}
	if _, err := out.Write(mem.Bytes()); err != nil {
		return classify("write", out.pos, err, ErrIO)
	}

	return nil
}

// WriteFile encodes buf as the FLAC file at path.
// The file is replaced only once the stream is completely written. An existing
// file keeps its permission bits; a new file is created with mode 0644.
func WriteFile(path string, buf *Buffer, md *Metadata, opts *Options) (err error) {
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &Error{Kind: ErrIO, Op: "create", Offset: -1, Err: err}
	}

	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if err = Write(f, buf, md, opts); err != nil {
		return err
	}

	if err = f.Chmod(mode); err != nil {
		return &Error{Kind: ErrIO, Op: "chmod", Offset: -1, Err: err}
	}

	if err = f.Sync(); err != nil {
		return &Error{Kind: ErrIO, Op: "sync", Offset: -1, Err: err}
	}

	if err = f.Close(); err != nil {
		return &Error{Kind: ErrIO, Op: "close", Offset: -1, Err: err}
	}

	if err = os.Rename(tmp, path); err != nil {
		return &Error{Kind: ErrIO, Op: "rename", Offset: -1, Err: err}
	}

	return nil
}

// encode writes the stream to w.
func encode(w io.Writer, buf *Buffer, md *Metadata, opts *Options) error {
	level := opts.CompressionLevel
	blockSize := flacio.BlockSize(level)
	info := &meta.StreamInfo{
		BlockSizeMin:  blockSize,
		BlockSizeMax:  blockSize,
		SampleRate:    uint32(md.SampleRate),
		NChannels:     uint8(md.Channels),
		BitsPerSample: uint8(md.BitsPerSample),
	}

	enc, err := flacio.NewEncoder(w, info, metadataBlocks(buf, md, opts, int(blockSize))...)
	if err != nil {
		return classify("write", -1, err, ErrValidation)
	}
	enc.Level = level

	// de-interleave one block at a time.
	nsamples := buf.NumSamples()
	channels := make([][]int32, buf.Channels)
	for start := 0; start < nsamples; start += int(blockSize) {
		end := min(start+int(blockSize), nsamples)
		for ch := range channels {
			channels[ch] = channels[ch][:0]
			for i := start; i < end; i++ {
				channels[ch] = append(channels[ch], buf.At(i, ch))
			}
		}

		if err := enc.WriteBlock(channels); err != nil {
			return classify("write", -1, err, ErrValidation)
		}
	}

	if err := enc.Close(); err != nil {
		return classify("write", -1, err, ErrValidation)
	}

	return nil
}

// metadataBlocks returns the metadata blocks stored after StreamInfo.
func metadataBlocks(buf *Buffer, md *Metadata, opts *Options, blockSize int) []*meta.Block {
	var blocks []*meta.Block
	if opts.SeekTable {
		blocks = append(blocks, &meta.Block{
			Header: meta.Header{Type: meta.TypeSeekTable},
			Body:   seekTable(buf.NumSamples(), opts.SeekPointInterval, blockSize),
		})
	}

	vendor := md.Vendor
	if vendor == "" {
		vendor = DefaultVendor
	}
	blocks = append(blocks, &meta.Block{
		Header: meta.Header{Type: meta.TypeVorbisComment},
		Body:   &meta.VorbisComment{Vendor: vendor, Tags: md.Comments.Tags()},
	})

	for _, pic := range md.Pictures {
		blocks = append(blocks, &meta.Block{
			Header: meta.Header{Type: meta.TypePicture},
			Body:   pic,
		})
	}

	if opts.Padding > 0 {
		blocks = append(blocks, &meta.Block{
			Header: meta.Header{Type: meta.TypePadding, Length: int64(opts.Padding)},
		})
	}

	return blocks
}

// seekTable returns a seek table template with a point every interval
// samples. The encoder resolves every point to the frame containing it.
func seekTable(nsamples, interval, blockSize int) *meta.SeekTable {
	if interval == 0 {
		interval = blockSize
	}

	table := new(meta.SeekTable)
	for sampleNum := 0; sampleNum < nsamples; sampleNum += interval {
		table.Points = append(table.Points, meta.SeekPoint{SampleNum: uint64(sampleNum)})
	}

	if len(table.Points) == 0 {
		table.Points = append(table.Points, meta.SeekPoint{SampleNum: meta.PlaceholderPoint})
	}

	return table
}

// sink tracks the write offset of the underlying writer and marks its
// failures as i/o errors.
type sink struct {
	w   io.Writer
	pos int64
}

func (s *sink) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	s.pos += int64(n)
	if err != nil {
		return n, &ioError{offset: s.pos, err: err}
	}
	return n, nil
}

// seekSink is a sink over an io.WriteSeeker.
type seekSink struct {
	sink
	ws io.WriteSeeker
}

func (s *seekSink) Seek(offset int64, whence int) (int64, error) {
	pos, err := s.ws.Seek(offset, whence)
	if err != nil {
		return pos, &ioError{offset: s.pos, err: err}
	}
	s.pos = pos
	return pos, nil
}
