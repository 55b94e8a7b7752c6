package meta

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// VorbisComment contains a list of name-value pairs.
type VorbisComment struct {
	Vendor string      // vendor name
	Tags   [][2]string // list of tags, each represented by a name-value pair
}

// Get returns the value of the first tag with the given name,
// compared case-insensitively as Vorbis field names are.
func (comment *VorbisComment) Get(name string) (string, bool) {
	for _, tag := range comment.Tags {
		if strings.EqualFold(tag[0], name) {
			return tag[1], true
		}
	}
	return "", false
}

// parseVorbisComment reads and parses the body of a VorbisComment metadata
// block.
func (block *Block) parseVorbisComment() (err error) {
	// 32 bits: vendor length.
	var x uint32
	if err = binary.Read(block.lr, binary.LittleEndian, &x); err != nil {
		return unexpected(err)
	}

	// (vendor length) bytes: Vendor.
	if err = block.checkLength(int64(x), "vendor"); err != nil {
		return err
	}

	vendor, err := readString(block.lr, int(x))
	if err != nil {
		return unexpected(err)
	}

	comment := new(VorbisComment)
	block.Body = comment
	comment.Vendor = vendor

	// Parse tags.
	// 32 bits: number of tags.
	if err = binary.Read(block.lr, binary.LittleEndian, &x); err != nil {
		return unexpected(err)
	}

	if x < 1 {
		return nil
	}

	// each tag occupies at least 4 bytes of vector length.
	if err = block.checkLength(int64(x)*4, "tag list"); err != nil {
		return err
	}

	comment.Tags = make([][2]string, x)
	for i := range comment.Tags {
		// 32 bits: vector length
		if err = binary.Read(block.lr, binary.LittleEndian, &x); err != nil {
			return unexpected(err)
		}

		// (vector length): vector.
		if err = block.checkLength(int64(x), "vector"); err != nil {
			return err
		}

		vector, err := readString(block.lr, int(x))
		if err != nil {
			return unexpected(err)
		}

		// Parse tag, which has the following format:
		//    NAME=VALUE
		pos := strings.Index(vector, "=")
		if pos == -1 {
			return fmt.Errorf("meta.Block.parseVorbisComment: unable to locate '=' in vector %q", vector)
		}
		comment.Tags[i][0] = vector[:pos]
		comment.Tags[i][1] = vector[pos+1:]
	}

	return nil
}
