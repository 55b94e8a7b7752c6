// Package pcm reads and writes FLAC files as buffers of interleaved integer
// PCM samples.
//
// A Decoder gives access to the metadata of a FLAC stream, to all of its
// audio, or to any range of samples through the seek index of the stream.
// Write and WriteFile encode a Buffer together with its Metadata. Load and
// Save wrap both for whole files.
package pcm

import (
	"fmt"

	"github.com/go-audio/audio"
)

// DefaultBitsPerSample is the sample size of buffers created without an
// explicit bits-per-sample.
const DefaultBitsPerSample = 16

// MaxChannels is the largest number of channels of a FLAC stream.
const MaxChannels = 8

// Buffer holds interleaved signed integer PCM samples.
// The samples of one time instant, one per channel, are stored contiguously.
type Buffer struct {
	// Interleaved samples; len(Data) is a multiple of Channels.
	Data []int32
	// Number of channels; between 1 and 8.
	Channels int
	// Sample size; one of 8, 12, 16, 20, 24 or 32.
	BitsPerSample int
}

// NewBuffer returns a buffer holding the interleaved samples of data.
// A zero bitsPerSample selects DefaultBitsPerSample.
//
// Samples outside the signed range of bitsPerSample are rejected, not clamped.
func NewBuffer(data []int32, channels, bitsPerSample int) (*Buffer, error) {
	if bitsPerSample == 0 {
		bitsPerSample = DefaultBitsPerSample
	}

	buf := &Buffer{Data: data, Channels: channels, BitsPerSample: bitsPerSample}
	if err := buf.Validate(); err != nil {
		return nil, err
	}

	return buf, nil
}

// MakeBuffer returns a zeroed buffer of numSamples samples per channel.
func MakeBuffer(numSamples, channels, bitsPerSample int) (*Buffer, error) {
	if numSamples < 0 {
		return nil, validationError("buffer", fmt.Errorf("negative sample count (%d)", numSamples))
	}

	if channels < 1 || channels > MaxChannels {
		return nil, validationError("buffer", fmt.Errorf("invalid channel count (%d)", channels))
	}

	return NewBuffer(make([]int32, numSamples*channels), channels, bitsPerSample)
}

// NumSamples returns the number of samples per channel.
func (buf *Buffer) NumSamples() int {
	if buf.Channels == 0 {
		return 0
	}
	return len(buf.Data) / buf.Channels
}

// At returns sample i of channel ch.
func (buf *Buffer) At(i, ch int) int32 {
	return buf.Data[i*buf.Channels+ch]
}

// Set stores v as sample i of channel ch.
func (buf *Buffer) Set(i, ch int, v int32) error {
	if i < 0 || i >= buf.NumSamples() || ch < 0 || ch >= buf.Channels {
		return validationError("set", fmt.Errorf("sample %d of channel %d out of bounds", i, ch))
	}

	if !fits(v, buf.BitsPerSample) {
		return validationError("set", fmt.Errorf("sample value %d exceeds %d bits-per-sample", v, buf.BitsPerSample))
	}

	buf.Data[i*buf.Channels+ch] = v
	return nil
}

// Channel returns a copy of the samples of channel ch.
func (buf *Buffer) Channel(ch int) []int32 {
	n := buf.NumSamples()
	samples := make([]int32, n)
	for i := range samples {
		samples[i] = buf.Data[i*buf.Channels+ch]
	}
	return samples
}

// Slice returns the samples [start, end) of buf.
// The returned buffer shares its storage with buf.
func (buf *Buffer) Slice(start, end int) *Buffer {
	return &Buffer{
		Data:          buf.Data[start*buf.Channels : end*buf.Channels],
		Channels:      buf.Channels,
		BitsPerSample: buf.BitsPerSample,
	}
}

// Validate reports whether buf has a supported shape and sample size,
// and every sample fits the signed range of its sample size.
func (buf *Buffer) Validate() error {
	if buf.Channels < 1 || buf.Channels > MaxChannels {
		return validationError("buffer", fmt.Errorf("invalid channel count (%d); expected 1 to %d", buf.Channels, MaxChannels))
	}

	if !supportedBitsPerSample(buf.BitsPerSample) {
		return validationError("buffer", fmt.Errorf("unsupported bits-per-sample (%d)", buf.BitsPerSample))
	}

	if len(buf.Data)%buf.Channels != 0 {
		return validationError("buffer", fmt.Errorf("sample count (%d) is not a multiple of the channel count (%d)", len(buf.Data), buf.Channels))
	}

	for i, v := range buf.Data {
		if !fits(v, buf.BitsPerSample) {
			return validationError("buffer", fmt.Errorf("sample %d of channel %d (%d) exceeds %d bits-per-sample", i/buf.Channels, i%buf.Channels, v, buf.BitsPerSample))
		}
	}

	return nil
}

// AsIntBuffer returns the samples of buf as an audio.IntBuffer.
func (buf *Buffer) AsIntBuffer(sampleRate int) *audio.IntBuffer {
	data := make([]int, len(buf.Data))
	for i, v := range buf.Data {
		data[i] = int(v)
	}

	return &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: buf.Channels,
			SampleRate:  sampleRate,
		},
		Data:           data,
		SourceBitDepth: buf.BitsPerSample,
	}
}

// FromIntBuffer returns a buffer holding the samples of ib.
// The sample size is taken from ib.SourceBitDepth, DefaultBitsPerSample if unset.
func FromIntBuffer(ib *audio.IntBuffer) (*Buffer, error) {
	if ib == nil || ib.Format == nil {
		return nil, validationError("buffer", fmt.Errorf("missing audio format"))
	}

	data := make([]int32, len(ib.Data))
	bps := ib.SourceBitDepth
	if bps == 0 {
		bps = DefaultBitsPerSample
	}

	for i, v := range ib.Data {
		if int64(v) != int64(int32(v)) {
			return nil, validationError("buffer", fmt.Errorf("sample %d (%d) exceeds %d bits-per-sample", i, v, bps))
		}
		data[i] = int32(v)
	}

	return NewBuffer(data, ib.Format.NumChannels, bps)
}

// supportedBitsPerSample reports whether bps is a sample size of Buffer.
func supportedBitsPerSample(bps int) bool {
	switch bps {
	case 8, 12, 16, 20, 24, 32:
		return true
	}
	return false
}

// fits reports whether v is within the signed range of bps bits.
func fits(v int32, bps int) bool {
	if bps >= 32 {
		return true
	}
	limit := int32(1) << (bps - 1)
	return v >= -limit && v < limit
}
