// Package hashutil provides the checksum interfaces of FLAC frame headers and
// footers, and a reader hashing the bytes read through it.
package hashutil

import (
	"hash"
	"io"
)

// Hash8 is the common interface implemented by all 8-bit hash functions.
type Hash8 interface {
	hash.Hash
	Sum8() uint8 // returns the 8-bit checksum of the hash
}

// Hash16 is the common interface implemented by all 16-bit hash functions.
type Hash16 interface {
	hash.Hash
	Sum16() uint16 // returns the 16-bit checksum of the hash
}

// Reader adds the bytes of every read from an underlying reader to a hash.
type Reader struct {
	r io.Reader
	h hash.Hash
	// N is the number of bytes read so far.
	N int64
}

// NewReader returns a Reader hashing the bytes read from r into h.
func NewReader(r io.Reader, h hash.Hash) *Reader {
	return &Reader{r: r, h: h}
}

// Read implements io.Reader.
func (hr *Reader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		hr.h.Write(p[:n])
		hr.N += int64(n)
	}
	return n, err
}
