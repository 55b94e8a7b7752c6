// Package meta implements access to FLAC metadata blocks.
//
// A FLAC stream starts with one or more metadata blocks. The first block,
// StreamInfo, is mandatory and describes the basic properties of the audio
// stream. The remaining blocks may appear in any order: SeekTable for random
// access, VorbisComment for tags, Picture for embedded artwork, Padding,
// Application and CueSheet.
//
// Each block consists of a 32-bit header (last-block flag, 7-bit type, 24-bit
// body length) followed by the block body.
package meta

import (
	"errors"
	"fmt"
	"io"

	"github.com/pchchv/flacio/internal/bits"
)

// Metadata block body types.
const (
	TypeStreamInfo    Type = 0
	TypePadding       Type = 1
	TypeApplication   Type = 2
	TypeSeekTable     Type = 3
	TypeVorbisComment Type = 4
	TypeCueSheet      Type = 5
	TypePicture       Type = 6
)

// MaxLength is the largest body length representable in a block header.
const MaxLength = 1<<24 - 1

// ErrReservedType is returned by Parse for metadata block types which are
// reserved; the body of such blocks must be skipped.
var ErrReservedType = errors.New("meta.Block.Parse: reserved block type")

// Type represents the type of a metadata block body.
type Type uint8

func (t Type) String() string {
	switch t {
	case TypeStreamInfo:
		return "stream info"
	case TypePadding:
		return "padding"
	case TypeApplication:
		return "application"
	case TypeSeekTable:
		return "seek table"
	case TypeVorbisComment:
		return "vorbis comment"
	case TypeCueSheet:
		return "cue sheet"
	case TypePicture:
		return "picture"
	default:
		return "<unknown block type>"
	}
}

// Header contains information about the type and length of a metadata block.
type Header struct {
	// Metadata block body type.
	Type Type
	// Length of body data in bytes.
	Length int64
	// IsLast specifies if the block is the last metadata block.
	IsLast bool
}

// Block contains the header and body of a metadata block.
type Block struct {
	// Metadata block header.
	Header
	// Metadata block body of type *StreamInfo, *Application, ... etc.
	// Body is initially nil, and gets populated by a call to Block.Parse.
	Body interface{}
	// Underlying io.Reader; limited by the length of the block body.
	lr io.Reader
}

// New creates a new Block for accessing the metadata of r.
// It reads and parses a metadata block header.
//
// Call Block.Parse to parse the metadata block body,
// and call Block.Skip to ignore it.
func New(r io.Reader) (block *Block, err error) {
	block = new(Block)
	if err = block.parseHeader(r); err != nil {
		return block, err
	}

	block.lr = io.LimitReader(r, block.Length)
	return block, nil
}

// Parse reads and parses the header and body of a metadata block.
// Use New for additional granularity.
func Parse(r io.Reader) (block *Block, err error) {
	block, err = New(r)
	if err != nil {
		return block, err
	}

	if err = block.Parse(); err != nil {
		return block, err
	}

	return block, nil
}

// Parse reads and parses the metadata block body.
func (block *Block) Parse() (err error) {
	switch block.Type {
	case TypeStreamInfo:
		err = block.parseStreamInfo()
	case TypePadding:
		err = block.verifyPadding()
	case TypeApplication:
		err = block.parseApplication()
	case TypeSeekTable:
		err = block.parseSeekTable()
	case TypeVorbisComment:
		err = block.parseVorbisComment()
	case TypeCueSheet:
		err = block.parseCueSheet()
	case TypePicture:
		err = block.parsePicture()
	default:
		return ErrReservedType
	}

	if err != nil {
		return err
	}

	// discard trailing bytes of the body not covered by its fields.
	_, err = io.Copy(io.Discard, block.lr)
	return err
}

// Skip ignores the contents of the metadata block body.
func (block *Block) Skip() error {
	if block.lr == nil {
		return errors.New("meta.Block.Skip: unable to skip; nil body reader")
	}

	_, err := io.Copy(io.Discard, block.lr)
	return err
}

// parseHeader reads and parses the header of a metadata block.
func (block *Block) parseHeader(r io.Reader) error {
	// 1 bit: IsLast.
	br := bits.NewReader(r)
	x, err := br.Read(1)
	if err != nil {
		// this is the only place a metadata block may return io.EOF,
		// which signals a graceful end of a FLAC stream (from a metadata point of view).
		return err
	}

	if x != 0 {
		block.IsLast = true
	}

	// 7 bits: Type.
	if x, err = br.Read(7); err != nil {
		return unexpected(err)
	}

	// 24 bits: Length.
	length, err := br.Read(24)
	if err != nil {
		return unexpected(err)
	}
	block.Length = int64(length)

	// 0:     Streaminfo
	// 1:     Padding
	// 2:     Application
	// 3:     Seektable
	// 4:     Vorbis_comment
	// 5:     Cuesheet
	// 6:     Picture
	// 7-126: reserved
	// 127:   invalid, to avoid confusion with a frame sync code
	block.Type = Type(x)
	if block.Type == 127 {
		return errors.New("meta.Block.parseHeader: invalid block type 127")
	}

	return nil
}

// readString reads and returns exactly n bytes from r as a string.
func readString(r io.Reader, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// checkLength verifies that n bytes fit within the body of the block.
func (block *Block) checkLength(n int64, field string) error {
	if n > block.Length {
		return fmt.Errorf("meta.Block: %s length (%d) exceeds block length (%d)", field, n, block.Length)
	}
	return nil
}

// unexpected returns io.ErrUnexpectedEOF if error is io.EOF,
// and returns error otherwise.
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
