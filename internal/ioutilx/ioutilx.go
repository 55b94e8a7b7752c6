// Package ioutilx implements extended input/output utility functions.
package ioutilx

import "io"

// Zero is an io.Reader which always reads zero bytes.
var Zero io.Reader = zero{}

// zero implements an io.Reader which always reads zero bytes.
type zero struct{}

// Read reads len(p) zero bytes into p.
func (zero) Read(p []byte) (n int, err error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// ReadByte reads and returns the next byte from r.
func ReadByte(r io.Reader) (byte, error) {
	if br, ok := r.(io.ByteReader); ok {
		return br.ReadByte()
	}

	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}

	return buf[0], nil
}
