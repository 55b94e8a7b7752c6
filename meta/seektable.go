package meta

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// PlaceholderPoint represent the sample number used
// to specify placeholder seek points.
const PlaceholderPoint = 0xFFFFFFFFFFFFFFFF

// SeekPointLength is the size in bytes of an encoded seek point.
const SeekPointLength = 18

// A SeekPoint specifies the byte offset and
// initial sample number of a given target frame.
type SeekPoint struct {
	// Sample number of the first sample in the target frame,
	// or 0xFFFFFFFFFFFFFFFF for a placeholder point.
	SampleNum uint64
	// Offset in bytes from the first byte of
	// the first frame header to the first byte of
	// the target frame's header.
	Offset uint64
	// Number of samples in the target frame.
	NSamples uint16
}

// IsPlaceholder reports whether the seek point is a placeholder point.
func (point SeekPoint) IsPlaceholder() bool {
	return point.SampleNum == PlaceholderPoint
}

// SeekTable contains one or more pre-calculated audio frame seek points.
type SeekTable struct {
	Points []SeekPoint // one or more seek points
}

// Validate verifies that the seek points are sorted in ascending order by
// sample number, and that each sample number is unique.
// Placeholder points may only follow the other points.
func (table *SeekTable) Validate() error {
	var prev uint64
	placeholder := false
	for i, point := range table.Points {
		if point.IsPlaceholder() {
			placeholder = true
			continue
		}

		switch {
		case placeholder:
			return fmt.Errorf("meta.SeekTable.Validate: seek point (%d) follows a placeholder point", i)
		case i == 0:
		case point.SampleNum < prev:
			return fmt.Errorf("meta.SeekTable.Validate: invalid seek point order; sample number (%d) < prev (%d)", point.SampleNum, prev)
		case point.SampleNum == prev:
			return fmt.Errorf("meta.SeekTable.Validate: duplicate seek point with sample number (%d)", point.SampleNum)
		}
		prev = point.SampleNum
	}

	return nil
}

// parseSeekTable reads and parses the body of a SeekTable metadata block.
// The order of the seek points is not verified; see SeekTable.Validate.
func (block *Block) parseSeekTable() error {
	// number of seek points is derived from the header length,
	// divided by the size of a SeekPoint;
	// which is 18 bytes.
	if block.Length%SeekPointLength != 0 {
		return fmt.Errorf("meta.Block.parseSeekTable: block length (%d) is not a multiple of %d", block.Length, SeekPointLength)
	}

	n := block.Length / SeekPointLength
	if n < 1 {
		return errors.New("meta.Block.parseSeekTable: at least one seek point is required")
	}

	table := &SeekTable{Points: make([]SeekPoint, n)}
	block.Body = table
	if err := binary.Read(block.lr, binary.BigEndian, table.Points); err != nil {
		return unexpected(err)
	}

	return nil
}
