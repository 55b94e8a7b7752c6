package flacio

import (
	"bufio"
	"bytes"
	"io"
	"sort"

	"github.com/pchchv/flacio/frame"
	"github.com/pchchv/flacio/meta"
)

// maxHeaderLen is the largest possible size in bytes of a frame header,
// including its CRC-8 checksum.
const maxHeaderLen = 16

// SeekPoint maps the first sample of an audio frame to the byte offset of its
// header, relative to the first frame header of the stream.
type SeekPoint struct {
	SampleNum uint64
	Offset    uint64
}

// SeekIndex is an ordered list of seek points,
// strictly increasing in both sample number and offset.
// The first point is always (0, 0).
type SeekIndex struct {
	Points []SeekPoint
}

// Search returns the last seek point whose sample number is at or before
// sampleNum.
func (index *SeekIndex) Search(sampleNum uint64) SeekPoint {
	i := sort.Search(len(index.Points), func(i int) bool {
		return index.Points[i].SampleNum > sampleNum
	})
	if i == 0 {
		return SeekPoint{}
	}

	return index.Points[i-1]
}

// SeekIndex returns the seek index of the stream, building it on first use.
//
// The index is taken from the SeekTable metadata block when one is present
// and consistent, and built by scanning the frame headers of the stream
// otherwise. The position of the stream is left unchanged.
func (stream *Stream) SeekIndex() (*SeekIndex, error) {
	if stream.seekIndex != nil {
		return stream.seekIndex, nil
	}

	index, err := stream.buildSeekIndex()
	if err != nil {
		return nil, err
	}

	stream.seekIndex = index
	return index, nil
}

// buildSeekIndex builds a seek index from the seek table of the stream, or by
// scanning its frames.
func (stream *Stream) buildSeekIndex() (*SeekIndex, error) {
	rs, ok := stream.r.(io.ReadSeeker)
	if !ok {
		return nil, ErrNotSeekable
	}

	if index := stream.tableIndex(); index != nil {
		return index, nil
	}

	pos, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	index, err := stream.scanIndex(rs)
	if err != nil {
		return nil, err
	}

	if _, err = rs.Seek(pos, io.SeekStart); err != nil {
		return nil, err
	}

	return index, nil
}

// tableIndex returns a seek index built from the SeekTable metadata block of
// the stream, or nil if the stream has no usable seek table.
func (stream *Stream) tableIndex() *SeekIndex {
	var table *meta.SeekTable
	for _, block := range stream.Blocks {
		if t, ok := block.Body.(*meta.SeekTable); ok {
			table = t
			break
		}
	}

	if table == nil || table.Validate() != nil {
		return nil
	}

	index := &SeekIndex{Points: []SeekPoint{{}}}
	for _, point := range table.Points {
		if point.IsPlaceholder() {
			continue
		}

		if stream.Info.NSamples != 0 && point.SampleNum >= stream.Info.NSamples {
			return nil
		}

		p := SeekPoint{SampleNum: point.SampleNum, Offset: point.Offset}
		last := index.Points[len(index.Points)-1]
		switch {
		case p == last:
			// the implied first point.
			continue
		case p.SampleNum <= last.SampleNum || p.Offset <= last.Offset:
			return nil
		}
		index.Points = append(index.Points, p)
	}

	return index
}

// scanIndex builds a seek index with one seek point per frame,
// by searching the stream for frame headers.
//
// A header is accepted when its sync code, reserved bits and CRC-8 are valid,
// and it continues the sample numbering of the preceding frame.
func (stream *Stream) scanIndex(rs io.ReadSeeker) (*SeekIndex, error) {
	if _, err := rs.Seek(stream.dataStart, io.SeekStart); err != nil {
		return nil, err
	}

	br := bufio.NewReaderSize(rs, 64*1024)
	index := new(SeekIndex)
	var next uint64
	var offset int64
	for stream.Info.NSamples == 0 || next < stream.Info.NSamples {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		offset++

		if b != 0xFF {
			continue
		}

		peek, err := br.Peek(maxHeaderLen - 1)
		if err != nil && err != io.EOF {
			return nil, err
		}

		if len(peek) == 0 || peek[0]&0xFE != 0xF8 {
			continue
		}

		hdr := append([]byte{b}, peek...)
		f, err := frame.New(bytes.NewReader(hdr))
		if err != nil {
			continue
		}

		if stream.SampleNumber(f) != next {
			continue
		}

		index.Points = append(index.Points, SeekPoint{SampleNum: next, Offset: uint64(offset - 1)})
		next += uint64(f.BlockSize)
	}

	if len(index.Points) == 0 {
		// no audio frames; seeking starts at the data start and finds none.
		index.Points = append(index.Points, SeekPoint{})
	}

	return index, nil
}
