package bits

import (
	"io"
	mathbits "math/bits"

	"github.com/icza/bitio"
)

// ReadUnary decodes and returns an unary coded integer,
// whose value is represented by the number of leading zeros before a one.
//
// Examples of unary coded binary on the left and decoded decimal on the right:
//
//	1       => 0
//	01      => 1
//	001     => 2
//	0001    => 3
//	00001   => 4
//	000001  => 5
//	0000001 => 6
func (br *Reader) ReadUnary() (x uint64, err error) {
	if br.n > 0 {
		if br.x != 0 {
			zeros := uint(mathbits.LeadingZeros8(br.x)) - (8 - br.n)
			br.n -= zeros + 1
			br.x &= 1<<br.n - 1
			return uint64(zeros), nil
		}

		x = uint64(br.n)
		br.n = 0
	}

	// whole bytes of zeros, then the byte holding the terminating one.
	for {
		if _, err = io.ReadFull(br.r, br.buf[:1]); err != nil {
			if err == io.EOF && x > 0 {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}

		b := br.buf[0]
		if b == 0 {
			x += 8
			continue
		}

		zeros := uint(mathbits.LeadingZeros8(b))
		br.n = 7 - zeros
		br.x = b & (1<<br.n - 1)
		return x + uint64(zeros), nil
	}
}

// WriteUnary encodes x as an unary coded integer,
// whose value is represented by the number of leading zeros before a one.
func WriteUnary(bw *bitio.Writer, x uint64) error {
	for ; x >= 32; x -= 32 {
		if err := bw.WriteBits(0, 32); err != nil {
			return err
		}
	}

	// x zeros followed by a one.
	return bw.WriteBits(1, uint8(x+1))
}
