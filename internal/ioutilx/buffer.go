package ioutilx

import (
	"errors"
	"io"
)

var errNegativePosition = errors.New("ioutilx.Buffer.Seek: negative position")

// Buffer is an in-memory io.WriteSeeker.
// Writes past the end grow the buffer,
// writes after a backwards seek overwrite existing bytes.
type Buffer struct {
	buf []byte
	pos int
}

// Write writes p at the current position.
func (b *Buffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	if end > len(b.buf) {
		if end > cap(b.buf) {
			grown := make([]byte, len(b.buf), 2*cap(b.buf)+len(p))
			copy(grown, b.buf)
			b.buf = grown
		}
		b.buf = b.buf[:end]
	}

	n := copy(b.buf[b.pos:], p)
	b.pos += n
	return n, nil
}

// Seek sets the position for the next Write.
func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.pos) + offset
	case io.SeekEnd:
		abs = int64(len(b.buf)) + offset
	default:
		return 0, errors.New("ioutilx.Buffer.Seek: invalid whence")
	}

	if abs < 0 {
		return 0, errNegativePosition
	}

	// seeking past the end zero-fills on the next write.
	if abs > int64(len(b.buf)) {
		b.pos = len(b.buf)
		if _, err := b.Write(make([]byte, abs-int64(len(b.buf)))); err != nil {
			return 0, err
		}
	}

	b.pos = int(abs)
	return abs, nil
}

// Bytes returns the written contents.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

// Len returns the number of written bytes.
func (b *Buffer) Len() int {
	return len(b.buf)
}
