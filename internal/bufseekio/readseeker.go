// Package bufseekio implements buffered I/O with Seek functionality.
package bufseekio

import (
	"errors"
	"io"
)

const (
	defaultBufSize    = 4096
	minReadBufferSize = 16
)

var errNegativeRead = errors.New("bufseekio: reader returned negative count from Read")

// ReadSeeker implements buffering for an io.ReadSeeker object.
// ReadSeeker is based on bufio.Reader with
// Seek functionality added and unneeded functionality removed.
type ReadSeeker struct {
	buf []byte
	pos int64         // absolute start position of buf
	rd  io.ReadSeeker // read-seeker provided by the client
	r   int           // buf read positions within buf
	w   int           // buf write positions within buf
	err error
}

// NewReadSeekerSize returns a new ReadSeeker whose buffer has at least the specified size.
// If the argument io.ReadSeeker is already a ReadSeeker with large enough size,
// it returns the underlying ReadSeeker.
func NewReadSeekerSize(rd io.ReadSeeker, size int) *ReadSeeker {
	// is it already a ReadSeeker?
	if b, ok := rd.(*ReadSeeker); ok && len(b.buf) >= size {
		return b
	}

	if size < minReadBufferSize {
		size = minReadBufferSize
	}

	return &ReadSeeker{
		buf: make([]byte, size),
		rd:  rd,
	}
}

// NewReadSeeker returns a new ReadSeeker whose buffer has the default size.
func NewReadSeeker(rd io.ReadSeeker) *ReadSeeker {
	return NewReadSeekerSize(rd, defaultBufSize)
}

// Read reads data into p.
// It returns the number of bytes read into p.
// The bytes are taken from at most one Read on the underlying Reader,
// hence n may be less than len(p).
// At EOF, the count will be zero and err will be io.EOF.
func (b *ReadSeeker) Read(p []byte) (n int, err error) {
	n = len(p)
	if n == 0 {
		if b.buffered() > 0 {
			return 0, nil
		}
		return 0, b.readErr()
	}

	if b.r == b.w {
		if b.err != nil {
			return 0, b.readErr()
		}

		if len(p) >= len(b.buf) {
			// large read, empty buffer.
			// Read directly into p to avoid copy.
			n, b.err = b.rd.Read(p)
			if n < 0 {
				panic(errNegativeRead)
			}
			b.pos += int64(b.r + n)
			b.r = 0
			b.w = 0
			return n, b.readErr()
		}

		// one read.
		b.pos += int64(b.r)
		b.r = 0
		b.w = 0
		n, b.err = b.rd.Read(b.buf)
		if n < 0 {
			panic(errNegativeRead)
		}

		if n == 0 {
			return 0, b.readErr()
		}
		b.w += n
	}

	// copy as much as we can
	n = copy(p, b.buf[b.r:b.w])
	b.r += n
	return n, nil
}

// Seek implements the io.Seeker interface.
// Seeks within the buffered range are served without touching the underlying reader.
func (b *ReadSeeker) Seek(offset int64, whence int) (int64, error) {
	// position queries are frequent during seek-index construction.
	if offset == 0 && whence == io.SeekCurrent {
		return b.position(), nil
	}

	// the absolute position of the end is unknown, defer to the underlying reader.
	if whence == io.SeekEnd {
		return b.seek(offset, whence)
	}

	abs := offset
	if whence == io.SeekCurrent {
		abs += b.position()
	}

	// within buf?
	if abs >= b.pos && abs < b.pos+int64(b.w) {
		b.r = int(abs - b.pos)
		return abs, nil
	}

	return b.seek(abs, io.SeekStart)
}

// seek seeks the underlying reader and discards the buffer.
func (b *ReadSeeker) seek(offset int64, whence int) (int64, error) {
	b.r = 0
	b.w = 0
	b.err = nil
	pos, err := b.rd.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	b.pos = pos
	return pos, nil
}

// position returns the absolute read offset.
func (b *ReadSeeker) position() int64 {
	return b.pos + int64(b.r)
}

// buffered returns the number of bytes that can
// be read from the current buffer.
func (b *ReadSeeker) buffered() int {
	return b.w - b.r
}

func (b *ReadSeeker) readErr() error {
	err := b.err
	b.err = nil
	return err
}
