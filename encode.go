package flacio

import (
	"bytes"
	"crypto/md5"
	"errors"
	"fmt"
	"hash"
	"io"
	"sort"

	"github.com/icza/bitio"
	"github.com/pchchv/flacio/frame"
	"github.com/pchchv/flacio/meta"
)

// ErrEncoderClosed is returned by write operations on a closed Encoder.
var ErrEncoderClosed = errors.New("flacio.Encoder: encoder closed")

// Encoder represents a FLAC encoder.
type Encoder struct {
	// FLAC stream of encoder.
	*Stream
	// Compression level used by WriteBlock; between 0 and 8.
	Level int
	// Underlying io.Writer or io.WriteCloser to the output stream.
	w io.Writer
	// Offset of the FLAC signature in w; -1 if w is not an io.WriteSeeker.
	headerStart int64
	// Size in bytes of the encoded signature and metadata blocks.
	headerSize int
	// Minimum and maximum block size (in samples) of frames written by encoder.
	blockSizeMin, blockSizeMax uint16
	// Block size of the most recent frame; excluded from blockSizeMin.
	lastBlockSize uint16
	// Minimum and maximum frame size (in bytes) of frames written by encoder.
	frameSizeMin, frameSizeMax uint32
	// MD5 running hash of unencoded audio samples.
	md5sum hash.Hash
	// Total number of samples (per channel) written by encoder.
	nsamples uint64
	// Current frame number if block size is fixed,
	// and the first sample number of the current frame otherwise.
	curNum uint64
	// Blocking strategy of the stream, fixed by the first frame.
	fixed bool
	// Set after a fixed block size frame shorter than the nominal block size,
	// which must be the last frame of the stream.
	short bool
	// Position of every frame written, relative to the first frame.
	frames []frameRecord
	// Number of bytes of audio frames written.
	offset uint64
	// Analysis windows by block size.
	windows map[int][]float64
	closed  bool
}

// frameRecord locates an encoded frame.
type frameRecord struct {
	sampleNum uint64
	offset    uint64
	nsamples  uint16
}

// NewEncoder returns a new FLAC encoder for the
// given metadata StreamInfo block and optional metadata blocks.
//
// Frames are written with a fixed block size of info.BlockSizeMax samples,
// 4096 if unset. SeekTable blocks among blocks act as templates: the sample
// numbers of their non-placeholder points are resolved to frame positions by
// Close.
//
// If w implements io.WriteSeeker, Close rewrites the metadata blocks with the
// total sample count, frame sizes and MD5 checksum of the encoded audio.
func NewEncoder(w io.Writer, info *meta.StreamInfo, blocks ...*meta.Block) (*Encoder, error) {
	if err := validateStreamInfo(info); err != nil {
		return nil, err
	}

	if info.BlockSizeMax == 0 {
		info.BlockSizeMax = levels[DefaultLevel].blockSize
	}

	if info.BlockSizeMin == 0 || info.BlockSizeMin > info.BlockSizeMax {
		info.BlockSizeMin = info.BlockSizeMax
	}

	enc := &Encoder{
		Stream: &Stream{
			Info:   info,
			Blocks: blocks,
		},
		Level:       DefaultLevel,
		w:           w,
		headerStart: -1,
		md5sum:      md5.New(),
	}

	if ws, ok := w.(io.WriteSeeker); ok {
		pos, err := ws.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, err
		}
		enc.headerStart = pos
	}

	// store FLAC signature and metadata blocks.
	header, err := encodeHeader(info, blocks)
	if err != nil {
		return nil, err
	}

	if _, err := w.Write(header); err != nil {
		return nil, err
	}
	enc.headerSize = len(header)

	// return encoder to be used for encoding audio samples
	return enc, nil
}

// WriteFrame encodes the given audio frame to the output stream.
// The Num field of the frame header is set by the encoder.
//
// The subframes hold the samples of each channel as they were before any
// inter-channel decorrelation; the encoder applies the decorrelation given by
// the Channels field of the frame header.
func (enc *Encoder) WriteFrame(f *frame.Frame) error {
	if err := enc.checkFrame(f); err != nil {
		return err
	}

	channels := make([][]int32, len(f.Subframes))
	for i, subframe := range f.Subframes {
		channels[i] = subframe.Samples
	}

	return enc.writeFrame(f, signals(f.Channels, channels))
}

// Close finalizes the output stream. If the underlying writer is an
// io.WriteSeeker the metadata blocks are rewritten with the properties of the
// encoded audio, after which the writer is positioned at the end of the
// stream. Close closes the underlying writer if it is an io.Closer.
func (enc *Encoder) Close() error {
	if enc.closed {
		return ErrEncoderClosed
	}
	enc.closed = true

	if err := enc.finalize(); err != nil {
		return err
	}

	if closer, ok := enc.w.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}

// Written returns the total number of samples (per channel) written.
func (enc *Encoder) Written() uint64 {
	return enc.nsamples
}

// finalize updates StreamInfo and the seek tables from the written frames and
// rewrites the metadata blocks.
func (enc *Encoder) finalize() error {
	info := enc.Info
	info.NSamples = enc.nsamples
	copy(info.MD5sum[:], enc.md5sum.Sum(nil))
	// sample numbers of fixed block size streams are derived from the nominal
	// block size, which is kept as is.
	if !enc.fixed && enc.blockSizeMax > 0 {
		blockSizeMin := enc.blockSizeMin
		if blockSizeMin == 0 {
			// a single frame.
			blockSizeMin = enc.lastBlockSize
		}
		info.BlockSizeMin = max(blockSizeMin, 16)
		info.BlockSizeMax = max(enc.blockSizeMax, info.BlockSizeMin)
	}
	info.FrameSizeMin = enc.frameSizeMin
	info.FrameSizeMax = enc.frameSizeMax

	for _, block := range enc.Blocks {
		if table, ok := block.Body.(*meta.SeekTable); ok {
			enc.resolveSeekTable(table)
		}
	}

	ws, ok := enc.w.(io.WriteSeeker)
	if !ok || enc.headerStart < 0 {
		return nil
	}

	header, err := encodeHeader(info, enc.Blocks)
	if err != nil {
		return err
	}

	if len(header) != enc.headerSize {
		return fmt.Errorf("flacio.Encoder.Close: metadata size changed from %d to %d bytes", enc.headerSize, len(header))
	}

	end, err := ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	if _, err = ws.Seek(enc.headerStart, io.SeekStart); err != nil {
		return err
	}

	if _, err = ws.Write(header); err != nil {
		return err
	}

	_, err = ws.Seek(end, io.SeekStart)
	return err
}

// resolveSeekTable replaces the sample numbers of the seek points with the
// position of the frames containing them. Points resolving to the same frame
// or past the end of the stream become placeholders, which are sorted last.
func (enc *Encoder) resolveSeekTable(table *meta.SeekTable) {
	var prev *frameRecord
	for i := range table.Points {
		point := &table.Points[i]
		if point.IsPlaceholder() {
			continue
		}

		j := sort.Search(len(enc.frames), func(j int) bool {
			return enc.frames[j].sampleNum > point.SampleNum
		})
		if j == 0 || point.SampleNum >= enc.nsamples {
			*point = meta.SeekPoint{SampleNum: meta.PlaceholderPoint}
			continue
		}

		rec := &enc.frames[j-1]
		if rec == prev {
			*point = meta.SeekPoint{SampleNum: meta.PlaceholderPoint}
			continue
		}
		prev = rec
		*point = meta.SeekPoint{SampleNum: rec.sampleNum, Offset: rec.offset, NSamples: rec.nsamples}
	}

	sort.SliceStable(table.Points, func(i, j int) bool {
		return table.Points[i].SampleNum < table.Points[j].SampleNum
	})
}

// checkFrame verifies that the frame fits the stream of the encoder.
func (enc *Encoder) checkFrame(f *frame.Frame) error {
	if enc.closed {
		return ErrEncoderClosed
	}

	info := enc.Info
	if f.BitsPerSample == 0 {
		f.BitsPerSample = info.BitsPerSample
	}

	if f.SampleRate == 0 {
		f.SampleRate = info.SampleRate
	}

	switch {
	case f.BitsPerSample != info.BitsPerSample:
		return fmt.Errorf("flacio.Encoder.WriteFrame: sample size mismatch; expected %d, got %d", info.BitsPerSample, f.BitsPerSample)
	case f.SampleRate != info.SampleRate:
		return fmt.Errorf("flacio.Encoder.WriteFrame: sample rate mismatch; expected %d, got %d", info.SampleRate, f.SampleRate)
	case f.Channels > frame.ChannelsMidSide:
		return fmt.Errorf("flacio.Encoder.WriteFrame: invalid channel assignment (%d)", f.Channels)
	case f.Channels.Count() != int(info.NChannels) || len(f.Subframes) != int(info.NChannels):
		return fmt.Errorf("flacio.Encoder.WriteFrame: channel count mismatch; expected %d, got %d", info.NChannels, len(f.Subframes))
	case f.BlockSize == 0 || f.BlockSize > info.BlockSizeMax:
		return fmt.Errorf("flacio.Encoder.WriteFrame: invalid block size (%d); expected 1 to %d", f.BlockSize, info.BlockSizeMax)
	case f.Channels >= frame.ChannelsLeftSide && info.BitsPerSample >= 32:
		return fmt.Errorf("flacio.Encoder.WriteFrame: inter-channel decorrelation unsupported at %d bits-per-sample", info.BitsPerSample)
	}

	for i, subframe := range f.Subframes {
		if len(subframe.Samples) != int(f.BlockSize) {
			return fmt.Errorf("flacio.Encoder.WriteFrame: subframe %d sample count mismatch; expected %d, got %d", i, f.BlockSize, len(subframe.Samples))
		}
		subframe.NSamples = int(f.BlockSize)
	}

	if len(enc.frames) == 0 {
		enc.fixed = f.HasFixedBlockSize
	} else if f.HasFixedBlockSize != enc.fixed {
		return errors.New("flacio.Encoder.WriteFrame: blocking strategy changed within stream")
	}

	if enc.fixed {
		if enc.short {
			return errors.New("flacio.Encoder.WriteFrame: frame follows a short final frame of a fixed block size stream")
		}
		if f.BlockSize < info.BlockSizeMax {
			enc.short = true
		}
	}

	return nil
}

// writeFrame encodes the frame with subframe signals after inter-channel
// decorrelation.
func (enc *Encoder) writeFrame(f *frame.Frame, signals [][]int32) error {
	f.Num = enc.curNum
	buf := new(bytes.Buffer)
	bw := bitio.NewWriter(buf)
	if err := encodeFrameHeader(bw, buf, f.Header, enc.Info); err != nil {
		return err
	}

	for i, subframe := range f.Subframes {
		if err := encodeSubframe(bw, subframe, signals[i], subframeBitsPerSample(f, i), levels[enc.level()].partOrder); err != nil {
			return fmt.Errorf("flacio.Encoder.WriteFrame: subframe %d: %w", i, err)
		}
	}

	if err := encodeFrameFooter(bw, buf); err != nil {
		return err
	}

	if _, err := enc.w.Write(buf.Bytes()); err != nil {
		return err
	}

	// update stream properties.
	f.Hash(enc.md5sum)
	size := uint32(buf.Len())
	if len(enc.frames) == 0 || size < enc.frameSizeMin {
		enc.frameSizeMin = size
	}
	enc.frameSizeMax = max(enc.frameSizeMax, size)
	if enc.lastBlockSize > 0 && (enc.blockSizeMin == 0 || enc.lastBlockSize < enc.blockSizeMin) {
		enc.blockSizeMin = enc.lastBlockSize
	}
	enc.lastBlockSize = f.BlockSize
	enc.blockSizeMax = max(enc.blockSizeMax, f.BlockSize)

	enc.frames = append(enc.frames, frameRecord{sampleNum: enc.nsamples, offset: enc.offset, nsamples: f.BlockSize})
	enc.offset += uint64(size)
	enc.nsamples += uint64(f.BlockSize)
	if enc.fixed {
		enc.curNum++
	} else {
		enc.curNum += uint64(f.BlockSize)
	}

	return nil
}

// level returns the compression level of the encoder, clamped to the valid
// range.
func (enc *Encoder) level() int {
	return min(max(enc.Level, 0), MaxLevel)
}

// subframeBitsPerSample returns the sample size of the i:th subframe of f,
// which for side channels is one bit larger than the frame sample size.
func subframeBitsPerSample(f *frame.Frame, i int) uint {
	bps := uint(f.BitsPerSample)
	switch {
	case f.Channels == frame.ChannelsSideRight && i == 0:
		bps++
	case (f.Channels == frame.ChannelsLeftSide || f.Channels == frame.ChannelsMidSide) && i == 1:
		bps++
	}
	return bps
}

// signals returns the subframe signals for the given channel samples.
func signals(channels frame.Channels, samples [][]int32) [][]int32 {
	if channels < frame.ChannelsLeftSide {
		return samples
	}

	a, b := frame.Decorrelate(channels, samples[0], samples[1])
	return [][]int32{a, b}
}

// validateStreamInfo verifies the basic properties of the stream to encode.
func validateStreamInfo(info *meta.StreamInfo) error {
	switch {
	case info == nil:
		return errors.New("flacio.NewEncoder: nil StreamInfo")
	case info.NChannels < 1 || info.NChannels > 8:
		return fmt.Errorf("flacio.NewEncoder: invalid number of channels (%d); expected 1 to 8", info.NChannels)
	case info.BitsPerSample < 4 || info.BitsPerSample > 32:
		return fmt.Errorf("flacio.NewEncoder: invalid sample size (%d); expected 4 to 32", info.BitsPerSample)
	case info.SampleRate == 0 || info.SampleRate > 655350:
		return fmt.Errorf("flacio.NewEncoder: invalid sample rate (%d); expected 1 to 655350", info.SampleRate)
	case info.BlockSizeMax != 0 && info.BlockSizeMax < 16:
		return fmt.Errorf("flacio.NewEncoder: invalid block size (%d); expected 16 to 65535", info.BlockSizeMax)
	}

	return nil
}
