package flacio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/icza/bitio"
	"github.com/pchchv/flacio/internal/ioutilx"
	"github.com/pchchv/flacio/meta"
)

// encodeHeader returns the FLAC signature followed by the encoded StreamInfo
// and metadata blocks.
func encodeHeader(info *meta.StreamInfo, blocks []*meta.Block) ([]byte, error) {
	buf := new(bytes.Buffer)
	bw := bitio.NewWriter(buf)
	if _, err := bw.Write(flacSignature); err != nil {
		return nil, err
	}

	// encode metadata blocks
	if err := encodeStreamInfo(bw, info, len(blocks) == 0); err != nil {
		return nil, err
	}

	for i, block := range blocks {
		if err := encodeBlock(bw, block, i == len(blocks)-1); err != nil {
			return nil, err
		}
	}

	// flush pending writes of metadata blocks
	if _, err := bw.Align(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// encodeBlock encodes the metadata block, writing to bw.
func encodeBlock(bw *bitio.Writer, block *meta.Block, last bool) error {
	if block.Type == meta.TypePadding {
		return encodePadding(bw, block.Length, last)
	}

	if block.Body == nil && block.Length > 0 {
		return fmt.Errorf("flacio.encodeBlock: unable to encode %v block with unparsed body", block.Type)
	}

	body := new(bytes.Buffer)
	var err error
	switch b := block.Body.(type) {
	case *meta.Application:
		err = encodeApplication(body, b)
	case *meta.SeekTable:
		err = encodeSeekTable(body, b)
	case *meta.VorbisComment:
		err = encodeVorbisComment(body, b)
	case *meta.CueSheet:
		err = encodeCueSheet(body, b)
	case *meta.Picture:
		err = encodePicture(body, b)
	default:
		return fmt.Errorf("flacio.encodeBlock: unsupported metadata block body type %T", block.Body)
	}
	if err != nil {
		return err
	}

	if body.Len() > meta.MaxLength {
		return fmt.Errorf("flacio.encodeBlock: %v block length (%d) exceeds %d", block.Type, body.Len(), meta.MaxLength)
	}

	// store metadata block header
	hdr := &meta.Header{
		IsLast: last,
		Type:   block.Type,
		Length: int64(body.Len()),
	}
	if err := encodeBlockHeader(bw, hdr); err != nil {
		return err
	}

	// store metadata block body
	_, err = bw.Write(body.Bytes())
	return err
}

// encodeBlockHeader encodes the metadata block header, writing to bw.
func encodeBlockHeader(bw *bitio.Writer, hdr *meta.Header) error {
	// 1 bit: IsLast
	if err := bw.WriteBool(hdr.IsLast); err != nil {
		return err
	}

	// 7 bits: Type
	if err := bw.WriteBits(uint64(hdr.Type), 7); err != nil {
		return err
	}

	// 24 bits: Length
	if err := bw.WriteBits(uint64(hdr.Length), 24); err != nil {
		return err
	}

	return nil
}

// encodeStreamInfo encodes the StreamInfo metadata block, writing to bw.
func encodeStreamInfo(bw *bitio.Writer, info *meta.StreamInfo, last bool) error {
	// store metadata block header
	hdr := &meta.Header{
		IsLast: last,
		Type:   meta.TypeStreamInfo,
		Length: meta.StreamInfoLength,
	}
	if err := encodeBlockHeader(bw, hdr); err != nil {
		return err
	}

	// store metadata block body
	// 16 bits: BlockSizeMin
	bw.TryWriteBits(uint64(info.BlockSizeMin), 16)
	// 16 bits: BlockSizeMax
	bw.TryWriteBits(uint64(info.BlockSizeMax), 16)
	// 24 bits: FrameSizeMin
	bw.TryWriteBits(uint64(info.FrameSizeMin), 24)
	// 24 bits: FrameSizeMax
	bw.TryWriteBits(uint64(info.FrameSizeMax), 24)
	// 20 bits: SampleRate
	bw.TryWriteBits(uint64(info.SampleRate), 20)
	// 3 bits: NChannels; stored as (number of channels) - 1
	bw.TryWriteBits(uint64(info.NChannels-1), 3)
	// 5 bits: BitsPerSample; stored as (bits-per-sample) - 1
	bw.TryWriteBits(uint64(info.BitsPerSample-1), 5)
	// 36 bits: NSamples
	bw.TryWriteBits(info.NSamples, 36)
	// 16 bytes: MD5sum
	bw.TryWrite(info.MD5sum[:])

	return bw.TryError
}

// encodePadding encodes the Padding metadata block, writing to bw.
func encodePadding(bw *bitio.Writer, length int64, last bool) error {
	if length > meta.MaxLength {
		return fmt.Errorf("flacio.encodePadding: padding length (%d) exceeds %d", length, meta.MaxLength)
	}

	// store metadata block header
	hdr := &meta.Header{
		IsLast: last,
		Type:   meta.TypePadding,
		Length: length,
	}

	if err := encodeBlockHeader(bw, hdr); err != nil {
		return err
	}

	// store metadata block body
	if _, err := io.CopyN(bw, ioutilx.Zero, length); err != nil {
		return err
	}

	return nil
}

// encodeApplication encodes the body of an Application metadata block.
func encodeApplication(w io.Writer, app *meta.Application) error {
	// 32 bits: ID
	if err := binary.Write(w, binary.BigEndian, app.ID); err != nil {
		return err
	}

	// (block length)-4 bytes: Data
	_, err := w.Write(app.Data)
	return err
}

// encodeSeekTable encodes the body of a SeekTable metadata block.
func encodeSeekTable(w io.Writer, table *meta.SeekTable) error {
	if len(table.Points) == 0 {
		return errors.New("flacio.encodeSeekTable: at least one seek point is required")
	}

	// one or more seek points; 18 bytes each
	return binary.Write(w, binary.BigEndian, table.Points)
}

// encodeVorbisComment encodes the body of a VorbisComment metadata block.
// Unlike other metadata blocks, its lengths are stored in little-endian.
func encodeVorbisComment(w io.Writer, comment *meta.VorbisComment) error {
	// 32 bits: vendor length
	if err := binary.Write(w, binary.LittleEndian, uint32(len(comment.Vendor))); err != nil {
		return err
	}

	// (vendor length) bytes: Vendor
	if _, err := io.WriteString(w, comment.Vendor); err != nil {
		return err
	}

	// 32 bits: number of tags
	if err := binary.Write(w, binary.LittleEndian, uint32(len(comment.Tags))); err != nil {
		return err
	}

	for _, tag := range comment.Tags {
		// 32 bits: vector length
		vector := tag[0] + "=" + tag[1]
		if err := binary.Write(w, binary.LittleEndian, uint32(len(vector))); err != nil {
			return err
		}

		// (vector length): vector
		if _, err := io.WriteString(w, vector); err != nil {
			return err
		}
	}

	return nil
}

// encodeCueSheet encodes the body of a CueSheet metadata block.
func encodeCueSheet(w io.Writer, cs *meta.CueSheet) error {
	if len(cs.Tracks) < 1 || len(cs.Tracks) > 0xFF {
		return fmt.Errorf("flacio.encodeCueSheet: invalid number of tracks (%d)", len(cs.Tracks))
	}

	// 128 bytes: MCN
	if err := writeSZ(w, cs.MCN, 128); err != nil {
		return err
	}

	// 64 bits: NLeadInSamples
	if err := binary.Write(w, binary.BigEndian, cs.NLeadInSamples); err != nil {
		return err
	}

	// 1 bit: IsCompactDisc; 7 bits and 258 bytes: reserved
	var flags [259]byte
	if cs.IsCompactDisc {
		flags[0] = 0x80
	}
	if _, err := w.Write(flags[:]); err != nil {
		return err
	}

	// 8 bits: (number of tracks)
	if _, err := w.Write([]byte{uint8(len(cs.Tracks))}); err != nil {
		return err
	}

	for _, track := range cs.Tracks {
		if err := encodeCueSheetTrack(w, track); err != nil {
			return err
		}
	}

	return nil
}

// encodeCueSheetTrack encodes a track of a CueSheet metadata block.
func encodeCueSheetTrack(w io.Writer, track meta.CueSheetTrack) error {
	if len(track.Indicies) > 0xFF {
		return fmt.Errorf("flacio.encodeCueSheetTrack: too many track indices (%d)", len(track.Indicies))
	}

	// 64 bits: Offset; 8 bits: Num
	if err := binary.Write(w, binary.BigEndian, track.Offset); err != nil {
		return err
	}

	if _, err := w.Write([]byte{track.Num}); err != nil {
		return err
	}

	// 12 bytes: ISRC
	if err := writeSZ(w, track.ISRC, 12); err != nil {
		return err
	}

	// 1 bit: IsAudio (inverted), 1 bit: HasPreEmphasis, 6 bits and 13 bytes: reserved
	var flags [14]byte
	if !track.IsAudio {
		flags[0] |= 0x80
	}
	if track.HasPreEmphasis {
		flags[0] |= 0x40
	}
	if _, err := w.Write(flags[:]); err != nil {
		return err
	}

	// 8 bits: (number of indices)
	if _, err := w.Write([]byte{uint8(len(track.Indicies))}); err != nil {
		return err
	}

	for _, index := range track.Indicies {
		// 64 bits: Offset; 8 bits: Num; 3 bytes: reserved
		if err := binary.Write(w, binary.BigEndian, index.Offset); err != nil {
			return err
		}

		if _, err := w.Write([]byte{index.Num, 0, 0, 0}); err != nil {
			return err
		}
	}

	return nil
}

// encodePicture encodes the body of a Picture metadata block.
func encodePicture(w io.Writer, pic *meta.Picture) error {
	fields := []interface{}{
		// 32 bits: Type
		pic.Type,
		// 32 bits: (MIME type length); (MIME type length) bytes: MIME
		uint32(len(pic.MIME)), []byte(pic.MIME),
		// 32 bits: (description length); (description length) bytes: Desc
		uint32(len(pic.Desc)), []byte(pic.Desc),
		// 32 bits: Width, Height, Depth and NPalColors
		pic.Width, pic.Height, pic.Depth, pic.NPalColors,
		// 32 bits: (data length); (data length) bytes: Data
		uint32(len(pic.Data)), pic.Data,
	}

	for _, field := range fields {
		if err := binary.Write(w, binary.BigEndian, field); err != nil {
			return err
		}
	}

	return nil
}

// writeSZ writes s as a NULL padded string of exactly n bytes.
func writeSZ(w io.Writer, s string, n int) error {
	if len(s) > n {
		return fmt.Errorf("flacio.writeSZ: string %q exceeds %d bytes", s, n)
	}

	buf := make([]byte, n)
	copy(buf, s)
	_, err := w.Write(buf)
	return err
}
