package pcm

import (
	"crypto/md5"
	"fmt"

	"github.com/pchchv/flacio"
	"github.com/pchchv/flacio/meta"
)

// DefaultVendor is the vendor string written to the Vorbis comment block of
// streams whose metadata leaves it empty.
const DefaultVendor = "flacio"

// Metadata describes a FLAC stream.
type Metadata struct {
	// Sample rate in Hz; between 1 and 655350 Hz.
	SampleRate int
	// Sample size; one of 8, 12, 16, 20, 24 or 32.
	BitsPerSample int
	// Number of channels; between 1 and 8.
	Channels int
	// Number of samples per channel; 0 if unknown.
	// Ignored when encoding.
	TotalSamples uint64
	// Vendor string of the Vorbis comment block.
	Vendor string
	// Vorbis comments; nil if none.
	Comments *Comments
	// Embedded pictures.
	Pictures []*meta.Picture

	// Block and frame size limits and the MD5 signature of the audio, as stored
	// by the StreamInfo block of a decoded stream. Ignored when encoding.
	BlockSizeMin, BlockSizeMax uint16
	FrameSizeMin, FrameSizeMax uint32
	MD5                        [md5.Size]byte
}

// NewMetadata returns metadata for a stream of the given format.
func NewMetadata(sampleRate, channels, bitsPerSample int) *Metadata {
	return &Metadata{
		SampleRate:    sampleRate,
		BitsPerSample: bitsPerSample,
		Channels:      channels,
		Vendor:        DefaultVendor,
		Comments:      NewComments(),
	}
}

// Validate reports whether md describes a stream which can be encoded.
func (md *Metadata) Validate() error {
	if md.SampleRate < 1 || md.SampleRate > 655350 {
		return validationError("metadata", fmt.Errorf("invalid sample rate (%d)", md.SampleRate))
	}

	if md.Channels < 1 || md.Channels > MaxChannels {
		return validationError("metadata", fmt.Errorf("invalid channel count (%d)", md.Channels))
	}

	if !supportedBitsPerSample(md.BitsPerSample) {
		return validationError("metadata", fmt.Errorf("unsupported bits-per-sample (%d)", md.BitsPerSample))
	}

	if md.Comments != nil {
		for _, key := range md.Comments.Keys() {
			if err := checkKey(key); err != nil {
				return validationError("metadata", err)
			}
		}
	}

	for i, pic := range md.Pictures {
		if pic == nil {
			return validationError("metadata", fmt.Errorf("picture %d is nil", i))
		}
	}

	return nil
}

// Clone returns a copy of md; pictures are shared.
func (md *Metadata) Clone() *Metadata {
	clone := *md
	if md.Comments != nil {
		clone.Comments = md.Comments.Clone()
	}
	clone.Pictures = append([]*meta.Picture(nil), md.Pictures...)
	return &clone
}

// matches reports whether the format of buf agrees with md.
func (md *Metadata) matches(buf *Buffer) error {
	if md.Channels != buf.Channels {
		return validationError("write", fmt.Errorf("channel count mismatch; metadata %d, buffer %d", md.Channels, buf.Channels))
	}

	if md.BitsPerSample != buf.BitsPerSample {
		return validationError("write", fmt.Errorf("bits-per-sample mismatch; metadata %d, buffer %d", md.BitsPerSample, buf.BitsPerSample))
	}

	return nil
}

// streamMetadata returns the metadata of stream.
func streamMetadata(stream *flacio.Stream) *Metadata {
	info := stream.Info
	md := &Metadata{
		SampleRate:    int(info.SampleRate),
		BitsPerSample: int(info.BitsPerSample),
		Channels:      int(info.NChannels),
		TotalSamples:  info.NSamples,
		BlockSizeMin:  info.BlockSizeMin,
		BlockSizeMax:  info.BlockSizeMax,
		FrameSizeMin:  info.FrameSizeMin,
		FrameSizeMax:  info.FrameSizeMax,
		MD5:           info.MD5sum,
		Comments:      NewComments(),
	}

	seen := false
	for _, block := range stream.Blocks {
		switch body := block.Body.(type) {
		case *meta.VorbisComment:
			if seen {
				// only the first comment block is used.
				continue
			}
			seen = true
			md.Vendor = body.Vendor
			for _, tag := range body.Tags {
				md.Comments.set(tag[0], tag[1])
			}
		case *meta.Picture:
			md.Pictures = append(md.Pictures, body)
		}
	}

	return md
}
