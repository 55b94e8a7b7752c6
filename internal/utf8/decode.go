package utf8

import (
	"errors"
	"fmt"
	"io"
	mathbits "math/bits"

	"github.com/pchchv/flacio/internal/ioutilx"
)

// maxValue holds the largest number encodable in 1 to 6 bytes.
var maxValue = [...]uint64{rune1Max, rune2Max, rune3Max, rune4Max, rune5Max, rune6Max}

// Decode decodes a "UTF-8" coded number and returns it.
//
// The number of leading ones of the first byte gives the length of the
// sequence: none for a single 7-bit byte, otherwise the byte count, with
// each of the following 10xxxxxx bytes adding 6 bits. Up to 7 bytes are
// used, holding at most 36 bits. Overlong sequences are rejected.
func Decode(r io.Reader) (x uint64, err error) {
	c0, err := ioutilx.ReadByte(r)
	if err != nil {
		return 0, err
	}

	ones := mathbits.LeadingZeros8(^c0)
	switch ones {
	case 0:
		return uint64(c0), nil
	case 1:
		return 0, errors.New("utf8.Decode: unexpected continuation byte")
	case 8:
		return 0, errors.New("utf8.Decode: invalid leading byte 0xFF")
	}

	// continuation bytes follow the first.
	l := ones - 1
	x = uint64(c0) & (1<<(7-ones) - 1)
	for i := 0; i < l; i++ {
		c, err := ioutilx.ReadByte(r)
		if err != nil {
			if err == io.EOF {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}

		if c&^maskx != tx {
			return 0, errors.New("utf8.Decode: expected continuation byte")
		}
		x = x<<6 | uint64(c&maskx)
	}

	if x <= maxValue[l-1] {
		return 0, fmt.Errorf("utf8.Decode: larger number representation than necessary; x (%d) stored in %d bytes, could be stored in %d bytes", x, l+1, l)
	}

	return x, nil
}
