package meta

import (
	"errors"
	"fmt"
	"io"
)

// ErrInvalidPadding is returned by Block.Parse for Padding blocks holding
// non-zero bytes.
var ErrInvalidPadding = errors.New("meta.Block.verifyPadding: non-zero padding")

// verifyPadding reads the body of a Padding metadata block, which must hold
// block.Length zero bytes.
func (block *Block) verifyPadding() error {
	var buf [4096]byte
	var off int64
	for off < block.Length {
		n, err := block.lr.Read(buf[:min(int64(len(buf)), block.Length-off)])
		for i, b := range buf[:n] {
			if b != 0 {
				return fmt.Errorf("%w at byte %d", ErrInvalidPadding, off+int64(i))
			}
		}
		off += int64(n)

		if err == io.EOF && off < block.Length {
			return io.ErrUnexpectedEOF
		}
		if err != nil && err != io.EOF {
			return err
		}
	}

	return nil
}
