// Package bits provides bit access operations and binary decoding algorithms.
package bits

import (
	"fmt"
	"io"
)

// Reader reads bit fields of FLAC frame and metadata headers.
// Bits following the last read bit are kept until the next byte boundary.
type Reader struct {
	r   io.Reader // underlying reader
	buf [8]uint8  // temporary read buffer
	x   uint8     // low n bits hold the bits left of the last byte read
	n   uint      // number of buffered bits in x, 0 to 7
}

// NewReader returns a new Reader that reads bits from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Read reads and returns the next n bits, at most 64, as an unsigned integer.
func (br *Reader) Read(n uint) (x uint64, err error) {
	if n == 0 {
		return 0, nil
	}

	if n > 64 {
		return 0, fmt.Errorf("bits.Reader.Read: invalid number of bits; n (%d) exceeds 64", n)
	}

	// take buffered bits first.
	if br.n > 0 {
		if br.n >= n {
			br.n -= n
			x = uint64(br.x >> br.n)
			br.x &= 1<<br.n - 1
			return x, nil
		}

		n -= br.n
		x = uint64(br.x)
		br.x, br.n = 0, 0
	}

	nbytes := (n + 7) / 8
	if _, err = io.ReadFull(br.r, br.buf[:nbytes]); err != nil {
		return 0, err
	}

	for _, b := range br.buf[:nbytes-1] {
		x = x<<8 | uint64(b)
	}

	// the last byte is split between x and the buffer.
	last := br.buf[nbytes-1]
	keep := n - 8*(nbytes-1)
	br.n = 8 - keep
	x = x<<keep | uint64(last>>br.n)
	br.x = last & (1<<br.n - 1)

	return x, nil
}

// ReadSigned reads the next n bits, at most 64, as a two's complement integer.
func (br *Reader) ReadSigned(n uint) (int64, error) {
	x, err := br.Read(n)
	if err != nil {
		return 0, err
	}

	return IntN(x, n), nil
}

// Align discards the bits up to the next byte boundary and returns them.
func (br *Reader) Align() uint8 {
	x := br.x
	br.x, br.n = 0, 0
	return x
}
