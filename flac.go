// Package flacio provides access to FLAC (Free Lossless Audio Codec) streams.
//
// A Stream gives frame by frame access to the audio of a FLAC stream and,
// when the underlying reader is seekable, random access by sample number
// through a lazily built SeekIndex. An Encoder produces FLAC streams from
// unencoded audio samples.
package flacio

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pchchv/flacio/frame"
	"github.com/pchchv/flacio/internal/bufseekio"
	"github.com/pchchv/flacio/meta"
)

var (
	flacSignature = []byte("fLaC") // marks the beginning of a FLAC stream
	id3Signature  = []byte("ID3")  // marks the beginning of an ID3 stream, used to skip over ID3 data
)

var (
	// ErrNotSeekable is returned by seek operations on a Stream
	// created from a reader which does not implement io.Seeker.
	ErrNotSeekable = errors.New("flacio.Stream: underlying reader is not seekable")
	// ErrInvalidSignature is returned when a stream does not start with the
	// FLAC signature.
	ErrInvalidSignature = errors.New("flacio: invalid FLAC signature")
)

// SeekError is returned by Stream.Seek when the requested sample lies past the
// end of the stream.
type SeekError struct {
	SampleNum uint64
}

func (e *SeekError) Error() string {
	return fmt.Sprintf("unable to seek to sample number %d", e.SampleNum)
}

// Stream contains the metadata blocks and
// provides access to the audio frames of a FLAC stream.
type Stream struct {
	// The StreamInfo metadata block describes
	// the basic properties of the FLAC audio stream.
	Info *meta.StreamInfo
	// Zero or more metadata blocks.
	Blocks []*meta.Block
	// seekIndex maps sample numbers to frame offsets;
	// nil until first requested.
	seekIndex *SeekIndex
	// dataStart is the offset of the first frame header,
	// seek point offsets are relative to this position.
	dataStart int64
	// Underlying io.Reader; a *bufseekio.ReadSeeker for seekable streams.
	r io.Reader
	// Closer of the underlying reader; nil if it is not an io.Closer.
	c io.Closer
}

// New creates a new Stream for accessing the audio samples of r.
// It reads and parses the FLAC signature and the StreamInfo metadata block,
// but skips all other metadata blocks.
//
// Call Stream.Next to parse the frame header of the next audio frame,
// and call Stream.ParseNext to parse the entire next frame including audio samples.
func New(r io.Reader) (stream *Stream, err error) {
	// verify FLAC signature and parse the StreamInfo metadata block.
	br := bufio.NewReader(r)
	stream = &Stream{r: br, c: closer(r)}
	block, err := stream.parseStreamInfo()
	if err != nil {
		return nil, err
	}

	// skip the remaining metadata blocks.
	for !block.IsLast {
		if block, err = meta.New(br); err != nil {
			return stream, unexpected(err)
		}

		if err = block.Skip(); err != nil {
			return stream, unexpected(err)
		}
	}

	return stream, nil
}

// Parse creates a new Stream for accessing the metadata blocks and audio samples of r.
// It reads and parses the FLAC signature and all metadata blocks.
//
// Call Stream.Next to parse the frame header of the next audio frame,
// and call Stream.ParseNext to parse the entire next frame including audio samples.
func Parse(r io.Reader) (stream *Stream, err error) {
	// verify FLAC signature and parse the StreamInfo metadata block.
	br := bufio.NewReader(r)
	stream = &Stream{r: br, c: closer(r)}
	if err = stream.parseBlocks(); err != nil {
		return nil, err
	}

	return stream, nil
}

// NewSeek creates a new Stream for random access to the audio samples of rs.
// It reads and parses the FLAC signature and all metadata blocks.
//
// Call Stream.Seek to position the stream at the frame containing a given
// sample, and Stream.ParseNext to decode frames from there.
func NewSeek(rs io.ReadSeeker) (stream *Stream, err error) {
	br := bufseekio.NewReadSeeker(rs)
	stream = &Stream{r: br, c: closer(rs)}
	if err = stream.parseBlocks(); err != nil {
		return nil, err
	}

	// record the offset of the first frame header.
	if stream.dataStart, err = br.Seek(0, io.SeekCurrent); err != nil {
		return nil, err
	}

	return stream, nil
}

// ParseFile creates a new Stream for accessing the
// metadata blocks and audio samples of path.
// It reads and parses the FLAC signature and all metadata blocks.
// The returned stream is seekable.
//
// Call Stream.Next to parse the frame header of the next audio frame,
// and call Stream.ParseNext to parse the
// entire next frame including audio samples.
//
// Note: Close method of the stream must be called when finished using it.
func ParseFile(path string) (stream *Stream, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	if stream, err = NewSeek(f); err != nil {
		f.Close()
		return nil, err
	}

	return stream, nil
}

// Open creates a new Stream for accessing the audio samples of path.
// It reads and parses the FLAC signature and the StreamInfo metadata block,
// but skips all other metadata blocks.
//
// Call Stream.Next to parse the frame header of the next audio frame,
// and call Stream.ParseNext to parse the entire next frame including audio samples.
//
// Note: The Close method of the stream must be called when finished using it.
func Open(path string) (stream *Stream, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	if stream, err = New(f); err != nil {
		f.Close()
		return nil, err
	}

	return stream, nil
}

// Close closes the stream gracefully if the underlying io.Reader also implements the io.Closer interface.
func (stream *Stream) Close() error {
	if stream.c != nil {
		return stream.c.Close()
	}

	return nil
}

// Next parses the frame header of the next audio frame.
// It returns io.EOF to signal a graceful end of FLAC stream.
//
// Sample rate and sample size left unspecified by the frame header are
// taken from StreamInfo.
//
// Call Frame.Parse to parse the audio samples of its subframes.
func (stream *Stream) Next() (f *frame.Frame, err error) {
	if f, err = frame.New(stream.r); err != nil {
		return f, err
	}

	if f.BitsPerSample == 0 {
		f.BitsPerSample = stream.Info.BitsPerSample
	}

	if f.SampleRate == 0 {
		f.SampleRate = stream.Info.SampleRate
	}

	if n := f.Channels.Count(); n != int(stream.Info.NChannels) {
		return f, fmt.Errorf("flacio.Stream.Next: channel count mismatch; expected %d, got %d", stream.Info.NChannels, n)
	}

	return f, nil
}

// ParseNext parses the entire next frame including audio samples.
// It returns io.EOF to signal a graceful end of FLAC stream.
func (stream *Stream) ParseNext() (f *frame.Frame, err error) {
	if f, err = stream.Next(); err != nil {
		return f, err
	}

	err = f.Parse()
	return f, err
}

// SampleNumber returns the number of the first sample of the given frame.
func (stream *Stream) SampleNumber(f *frame.Frame) uint64 {
	if f.HasFixedBlockSize {
		return f.Num * uint64(stream.Info.BlockSizeMax)
	}

	return f.Num
}

// Seek positions the stream at the start of the frame containing sampleNum,
// and returns the number of the first sample of that frame.
// The next call to Stream.Next or Stream.ParseNext returns that frame.
//
// The stream must have been created by NewSeek or ParseFile.
func (stream *Stream) Seek(sampleNum uint64) (uint64, error) {
	rs, ok := stream.r.(io.ReadSeeker)
	if !ok {
		return 0, ErrNotSeekable
	}

	if stream.Info.NSamples != 0 && sampleNum >= stream.Info.NSamples {
		return 0, &SeekError{SampleNum: sampleNum}
	}

	index, err := stream.SeekIndex()
	if err != nil {
		return 0, err
	}

	point := index.Search(sampleNum)
	if _, err = rs.Seek(stream.dataStart+int64(point.Offset), io.SeekStart); err != nil {
		return 0, err
	}

	// walk forward frame by frame until the frame containing sampleNum.
	for {
		offset, err := rs.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, err
		}

		f, err := stream.Next()
		if err != nil {
			if err == io.EOF {
				return 0, &SeekError{SampleNum: sampleNum}
			}
			return 0, err
		}

		first := stream.SampleNumber(f)
		if first > sampleNum {
			return 0, fmt.Errorf("flacio.Stream.Seek: frame at offset %d starts at sample %d past target sample %d", offset-stream.dataStart, first, sampleNum)
		}

		if sampleNum < first+uint64(f.BlockSize) {
			if _, err = rs.Seek(offset, io.SeekStart); err != nil {
				return 0, err
			}
			return first, nil
		}

		// frames carry no length field; decode the body to skip it.
		if err = f.Parse(); err != nil {
			return 0, unexpected(err)
		}
	}
}

// Pos returns the byte offset of the stream position,
// relative to the start of the underlying reader.
func (stream *Stream) Pos() (int64, error) {
	rs, ok := stream.r.(io.ReadSeeker)
	if !ok {
		return 0, ErrNotSeekable
	}

	return rs.Seek(0, io.SeekCurrent)
}

// DataStart returns the byte offset of the first frame header,
// relative to the start of the underlying reader.
func (stream *Stream) DataStart() int64 {
	return stream.dataStart
}

// Rewind positions the stream at its first audio frame.
func (stream *Stream) Rewind() error {
	rs, ok := stream.r.(io.ReadSeeker)
	if !ok {
		return ErrNotSeekable
	}

	_, err := rs.Seek(stream.dataStart, io.SeekStart)
	return err
}

// parseBlocks verifies the FLAC signature and parses all metadata blocks.
func (stream *Stream) parseBlocks() error {
	block, err := stream.parseStreamInfo()
	if err != nil {
		return err
	}

	// parse the remaining metadata blocks.
	for !block.IsLast {
		block, err = meta.Parse(stream.r)
		if err != nil {
			if err != meta.ErrReservedType {
				return unexpected(err)
			}
			// skip the body of unknown (reserved) metadata blocks.
			if err = block.Skip(); err != nil {
				return unexpected(err)
			}
		}
		stream.Blocks = append(stream.Blocks, block)
	}

	return nil
}

// skipID3v2 skips ID3v2 data prepended to flac files.
// The first four bytes of the ID3v2 header have already been read.
func (stream *Stream) skipID3v2() error {
	// 1 byte: revision; 1 byte: flags.
	var hdr [6]byte
	if _, err := io.ReadFull(stream.r, hdr[:]); err != nil {
		return unexpected(err)
	}

	// size is encoded as a synchsafe integer.
	size := int64(hdr[2])<<21 | int64(hdr[3])<<14 | int64(hdr[4])<<7 | int64(hdr[5])
	// a footer, present when flag bit 4 is set, repeats the 10 byte header.
	if hdr[1]&0x10 != 0 {
		size += 10
	}

	_, err := io.CopyN(io.Discard, stream.r, size)
	return unexpected(err)
}

// parseStreamInfo verifies the signature which marks the beginning of a FLAC stream,
// and parses the StreamInfo metadata block.
// It returns the block to report if it was the last metadata block of the stream.
func (stream *Stream) parseStreamInfo() (block *meta.Block, err error) {
	// verify FLAC signature.
	r := stream.r
	var buf [4]byte
	if _, err = io.ReadFull(r, buf[:]); err != nil {
		return block, unexpected(err)
	}

	// skip prepended ID3v2 data.
	if bytes.Equal(buf[:3], id3Signature) {
		if err := stream.skipID3v2(); err != nil {
			return block, err
		}

		// second attempt at verifying signature.
		if _, err = io.ReadFull(r, buf[:]); err != nil {
			return block, unexpected(err)
		}
	}

	if !bytes.Equal(buf[:], flacSignature) {
		return block, fmt.Errorf("flacio.parseStreamInfo: expected %q, got %q: %w", flacSignature, buf, ErrInvalidSignature)
	}

	// parse StreamInfo metadata block.
	if block, err = meta.Parse(r); err != nil {
		return block, unexpected(err)
	}

	si, ok := block.Body.(*meta.StreamInfo)
	if !ok {
		return block, fmt.Errorf("flacio.parseStreamInfo: incorrect type of first metadata block; expected *meta.StreamInfo, got %T", block.Body)
	}

	stream.Info = si
	return block, nil
}

// closer returns r as an io.Closer, or nil.
func closer(r io.Reader) io.Closer {
	if c, ok := r.(io.Closer); ok {
		return c
	}
	return nil
}

// unexpected returns io.ErrUnexpectedEOF if error is io.EOF,
// and returns error otherwise.
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
