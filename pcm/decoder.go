package pcm

import (
	"bytes"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pchchv/flacio"
	"github.com/pchchv/flacio/frame"
)

// maxPrealloc caps the number of samples allocated up front from the total
// declared by a stream, which may be bogus.
const maxPrealloc = 1 << 26

// Decoder is a read session on a FLAC stream.
//
// A decoder is not safe for concurrent use. After a failed read every
// further read returns the same error.
type Decoder struct {
	stream *flacio.Stream
	md     *Metadata
	src    *source
	// closer of the file opened by Open; nil otherwise.
	c      io.Closer
	err    error
	closed bool
}

// NewDecoder returns a decoder reading the FLAC stream of rs, which must be
// positioned at the start of the stream.
// It parses the FLAC signature and all metadata blocks.
func NewDecoder(rs io.ReadSeeker) (*Decoder, error) {
	src := &source{rs: rs}
	stream, err := flacio.NewSeek(src)
	if err != nil {
		return nil, classify("open", src.pos, err, ErrFormat)
	}

	return &Decoder{stream: stream, md: streamMetadata(stream), src: src}, nil
}

// Open returns a decoder reading the FLAC file at path.
//
// Note: The Close method of the decoder must be called when finished using it.
func Open(path string) (*Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Kind: ErrIO, Op: "open", Offset: -1, Err: err}
	}

	dec, err := NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	dec.c = f
	return dec, nil
}

// Metadata returns a copy of the metadata of the stream.
func (dec *Decoder) Metadata() *Metadata {
	return dec.md.Clone()
}

// ReadAll decodes the entire stream.
//
// When the stream stores the MD5 signature of its audio, the decoded samples
// are verified against it.
func (dec *Decoder) ReadAll() (*Buffer, error) {
	if err := dec.check(); err != nil {
		return nil, err
	}

	if err := dec.stream.Rewind(); err != nil {
		return nil, dec.fail(classify("read", dec.src.pos, err, ErrDecode))
	}

	md := dec.md
	var data []int32
	if total := md.TotalSamples * uint64(md.Channels); total > 0 {
		data = make([]int32, 0, min(total, maxPrealloc))
	}

	sum := md5.New()
	var next uint64
	for {
		f, err := dec.next(next)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, dec.fail(err)
		}

		f.Hash(sum)
		data = appendFrame(data, f, 0, int(f.BlockSize))
		next += uint64(f.BlockSize)
	}

	if md.TotalSamples != 0 && next < md.TotalSamples {
		return nil, dec.fail(&Error{
			Kind:   ErrTruncated,
			Op:     "read",
			Offset: dec.src.pos,
			Err:    fmt.Errorf("stream ended after %d of %d samples", next, md.TotalSamples),
		})
	}

	var zero [md5.Size]byte
	if md.MD5 != zero && !bytes.Equal(sum.Sum(nil), md.MD5[:]) {
		return nil, dec.fail(&Error{
			Kind:   ErrDecode,
			Op:     "read",
			Offset: -1,
			Err:    fmt.Errorf("MD5 signature mismatch; expected %x, got %x", md.MD5, sum.Sum(nil)),
		})
	}

	return &Buffer{Data: data, Channels: md.Channels, BitsPerSample: md.BitsPerSample}, nil
}

// ReadRange decodes n samples per channel starting at sample start.
// The range is truncated at the end of the stream; a range starting past the
// end yields an empty buffer.
func (dec *Decoder) ReadRange(start, n uint64) (*Buffer, error) {
	if err := dec.check(); err != nil {
		return nil, err
	}

	md := dec.md
	empty := &Buffer{Data: []int32{}, Channels: md.Channels, BitsPerSample: md.BitsPerSample}
	total := md.TotalSamples
	if n == 0 || (total != 0 && start >= total) {
		return empty, nil
	}

	end := start + n
	if end < start {
		// overflow
		end = ^uint64(0)
	}

	if total != 0 && end > total {
		end = total
	}

	first, err := dec.stream.Seek(start)
	if err != nil {
		var seekErr *flacio.SeekError
		if errors.As(err, &seekErr) {
			return empty, nil
		}
		return nil, dec.fail(classify("seek", dec.src.pos, err, ErrDecode))
	}

	data := make([]int32, 0, min((end-start)*uint64(md.Channels), maxPrealloc))
	next := first
	for next < end {
		f, err := dec.next(next)
		if err == io.EOF {
			if total != 0 {
				return nil, dec.fail(&Error{
					Kind:   ErrTruncated,
					Op:     "read",
					Offset: dec.src.pos,
					Err:    fmt.Errorf("stream ended at sample %d of %d", next, total),
				})
			}
			break
		}
		if err != nil {
			return nil, dec.fail(err)
		}

		// keep the samples of the frame within [start, end).
		lo := uint64(0)
		if start > next {
			lo = start - next
		}
		hi := uint64(f.BlockSize)
		if end < next+hi {
			hi = end - next
		}
		if lo < hi {
			data = appendFrame(data, f, int(lo), int(hi))
		}
		next += uint64(f.BlockSize)
	}

	return &Buffer{Data: data, Channels: md.Channels, BitsPerSample: md.BitsPerSample}, nil
}

// Close ends the session, closing the file opened by Open.
func (dec *Decoder) Close() error {
	if dec.closed {
		return nil
	}

	dec.closed = true
	if dec.c != nil {
		if err := dec.c.Close(); err != nil {
			return &Error{Kind: ErrIO, Op: "close", Offset: -1, Err: err}
		}
	}

	return nil
}

// next decodes the next frame, which must start at sample sampleNum.
// It returns io.EOF at the end of the stream.
func (dec *Decoder) next(sampleNum uint64) (*frame.Frame, error) {
	offset, err := dec.stream.Pos()
	if err != nil {
		return nil, classify("read", dec.src.pos, err, ErrDecode)
	}

	f, err := dec.stream.ParseNext()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, classify("read", offset, err, ErrDecode)
	}

	if int(f.BitsPerSample) != dec.md.BitsPerSample {
		return nil, &Error{
			Kind:   ErrDecode,
			Op:     "read",
			Offset: offset,
			Err:    fmt.Errorf("frame bits-per-sample (%d) differs from stream (%d)", f.BitsPerSample, dec.md.BitsPerSample),
		}
	}

	if got := dec.stream.SampleNumber(f); got != sampleNum {
		return nil, &Error{
			Kind:   ErrDecode,
			Op:     "read",
			Offset: offset,
			Err:    fmt.Errorf("frame starts at sample %d; expected %d", got, sampleNum),
		}
	}

	return f, nil
}

// check reports whether the decoder may be read.
func (dec *Decoder) check() error {
	if dec.closed {
		return &Error{Kind: ErrClosed, Op: "read", Offset: -1}
	}
	return dec.err
}

// fail puts the decoder in the failed state.
func (dec *Decoder) fail(err error) error {
	dec.err = err
	return err
}

// appendFrame appends samples [lo, hi) of every channel of f to data,
// interleaved.
func appendFrame(data []int32, f *frame.Frame, lo, hi int) []int32 {
	for i := lo; i < hi; i++ {
		for _, subframe := range f.Subframes {
			data = append(data, subframe.Samples[i])
		}
	}
	return data
}

// source tracks the read offset of the underlying reader and marks its
// failures as i/o errors.
type source struct {
	rs  io.ReadSeeker
	pos int64
}

func (src *source) Read(p []byte) (int, error) {
	n, err := src.rs.Read(p)
	src.pos += int64(n)
	if err != nil && err != io.EOF {
		return n, &ioError{offset: src.pos, err: err}
	}
	return n, err
}

func (src *source) Seek(offset int64, whence int) (int64, error) {
	pos, err := src.rs.Seek(offset, whence)
	if err != nil {
		return pos, &ioError{offset: src.pos, err: err}
	}
	src.pos = pos
	return pos, nil
}
