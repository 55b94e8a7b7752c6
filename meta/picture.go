package meta

import (
	"encoding/binary"
	"io"
)

// Picture types.
const (
	PictureOther             = 0
	PictureFileIcon          = 1
	PictureOtherFileIcon     = 2
	PictureFrontCover        = 3
	PictureBackCover         = 4
	PictureLeaflet           = 5
	PictureMedia             = 6
	PictureLeadArtist        = 7
	PictureArtist            = 8
	PictureConductor         = 9
	PictureBand              = 10
	PictureComposer          = 11
	PictureLyricist          = 12
	PictureRecordingLocation = 13
	PictureDuringRecording   = 14
	PictureDuringPerformance = 15
	PictureScreenCapture     = 16
	PictureBrightColoredFish = 17
	PictureIllustration      = 18
	PictureBandLogotype      = 19
	PicturePublisherLogotype = 20
)

// Picture contains the image data of an embedded picture.
type Picture struct {
	// Picture type according to the ID3v2 APIC frame.
	Type uint32
	// MIME type string; may be "-->" to signify that Data is a URL of the picture.
	MIME string
	// Description of the picture.
	Desc string
	// Image dimensions in pixels.
	Width, Height uint32
	// Color depth in bits-per-pixel.
	Depth uint32
	// Number of colors in palette; 0 for non-indexed images.
	NPalColors uint32
	// Image data.
	Data []byte
}

// parsePicture reads and parses the body of a Picture metadata block.
func (block *Block) parsePicture() error {
	// 32 bits: Type.
	pic := new(Picture)
	block.Body = pic
	if err := binary.Read(block.lr, binary.BigEndian, &pic.Type); err != nil {
		return unexpected(err)
	}

	// 32 bits: (MIME type length).
	var x uint32
	if err := binary.Read(block.lr, binary.BigEndian, &x); err != nil {
		return unexpected(err)
	}

	// (MIME type length) bytes: MIME.
	if err := block.checkLength(int64(x), "MIME type"); err != nil {
		return err
	}

	mime, err := readString(block.lr, int(x))
	if err != nil {
		return unexpected(err)
	}
	pic.MIME = mime

	// 32 bits: (description length).
	if err = binary.Read(block.lr, binary.BigEndian, &x); err != nil {
		return unexpected(err)
	}

	// (description length) bytes: Desc.
	if err = block.checkLength(int64(x), "description"); err != nil {
		return err
	}

	desc, err := readString(block.lr, int(x))
	if err != nil {
		return unexpected(err)
	}
	pic.Desc = desc

	// 32 bits: Width, Height, Depth and NPalColors.
	for _, field := range []*uint32{&pic.Width, &pic.Height, &pic.Depth, &pic.NPalColors} {
		if err = binary.Read(block.lr, binary.BigEndian, field); err != nil {
			return unexpected(err)
		}
	}

	// 32 bits: (data length).
	if err = binary.Read(block.lr, binary.BigEndian, &x); err != nil {
		return unexpected(err)
	}

	if err = block.checkLength(int64(x), "picture data"); err != nil {
		return err
	}

	// (data length) bytes: Data.
	pic.Data = make([]byte, x)
	_, err = io.ReadFull(block.lr, pic.Data)
	return unexpected(err)
}
