// Package frame implements access to FLAC audio frames.
// FLAC encoders divide the audio stream into blocks through a process called blocking.
// A block contains uncoded audio samples from all channels in a short period of time.
// Each audio block is divided into sub-blocks, one per channel.
// There is often a correlation between the left and right channels of stereo audio.
// Using inter-channel decorrelation,
// it is possible to store only one of the channels and the difference between them,
// or store the average of the channels and their difference.
// The encoder decorrelates audio samples as follows:
//
//	mid = (left + right)/2 // average of the channels
//	side = left - right    // difference between the channels
//
// Blocks are encoded using different prediction methods and stored in frames.
// Blocks and sub-blocks contain unencoded audio samples,
// while frames and sub-frames contain encoded audio samples.
// A FLAC stream contains one or more audio frames.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/pchchv/flacio/internal/bits"
	"github.com/pchchv/flacio/internal/hashutil"
	"github.com/pchchv/flacio/internal/hashutil/crc16"
	"github.com/pchchv/flacio/internal/hashutil/crc8"
	"github.com/pchchv/flacio/internal/utf8"
)

// SyncCode marks the beginning of a frame header (14 bits).
const SyncCode = 0x3FFE

var (
	// ErrInvalidSync is returned when a frame header does not start with the sync code.
	ErrInvalidSync = errors.New("frame.Frame.parseHeader: invalid sync-code")
	// ErrChecksum is wrapped by errors reporting CRC-8 or CRC-16 mismatches.
	ErrChecksum = errors.New("frame: checksum mismatch")
)

// Channel assignments.
// Used abbreviations:
//
//	C:   center (directly in front)
//	R:   right (standard stereo)
//	Sr:  side right (directly to the right)
//	Rs:  right surround (back right)
//	Cs:  center surround (rear center)
//	Ls:  left surround (back left)
//	Sl:  side left (directly to the left)
//	L:   left (standard stereo)
//	Lfe: low-frequency effect (placed according to room acoustics)
//
// The first 6 channel constants follow the SMPTE/ITU-R channel order:
//
//	L R C Lfe Ls Rs
const (
	ChannelsMono           Channels = iota // 1 channel: mono.
	ChannelsLR                             // 2 channels: left, right.
	ChannelsLRC                            // 3 channels: left, right, center.
	ChannelsLRLsRs                         // 4 channels: left, right, left surround, right surround.
	ChannelsLRCLsRs                        // 5 channels: left, right, center, left surround, right surround.
	ChannelsLRCLfeLsRs                     // 6 channels: left, right, center, LFE, left surround, right surround.
	ChannelsLRCLfeCsSlSr                   // 7 channels: left, right, center, LFE, center surround, side left, side right.
	ChannelsLRCLfeLsRsSlSr                 // 8 channels: left, right, center, LFE, left surround, right surround, side left, side right.
	ChannelsLeftSide                       // 2 channels: left, side; using inter-channel decorrelation.
	ChannelsSideRight                      // 2 channels: side, right; using inter-channel decorrelation.
	ChannelsMidSide                        // 2 channels: mid, side; using inter-channel decorrelation.
)

// nChannels specifies the number of channels used by each channel assignment.
var nChannels = [...]int{
	ChannelsMono:           1,
	ChannelsLR:             2,
	ChannelsLRC:            3,
	ChannelsLRLsRs:         4,
	ChannelsLRCLsRs:        5,
	ChannelsLRCLfeLsRs:     6,
	ChannelsLRCLfeCsSlSr:   7,
	ChannelsLRCLfeLsRsSlSr: 8,
	ChannelsLeftSide:       2,
	ChannelsSideRight:      2,
	ChannelsMidSide:        2,
}

// Channels specifies the number of channels (subframes) that exist in a frame,
// their order and possible inter-channel decorrelation.
type Channels uint8

// Count returns the number of channels (subframes) used by
// the provided channel assignment.
func (channels Channels) Count() int {
	return nChannels[channels]
}

// Header contains the basic properties of an audio frame,
// such as its sample rate and channel count.
// To facilitate random access decoding each frame header starts with a sync-code.
// This allows the decoder to synchronize and locate the start of a frame header.
type Header struct {
	// Specifies if the block size is fixed or variable.
	HasFixedBlockSize bool
	// Block size in inter-channel samples,
	// i.e. the number of audio samples in each subframe.
	BlockSize uint16
	// Sample rate in Hz; a 0 value implies unknown,
	// get sample rate from StreamInfo.
	SampleRate uint32
	// Specifies the number of channels (subframes) that exist in the frame,
	// their order and possible inter-channel decorrelation.
	Channels Channels
	// Sample size in bits-per-sample;
	// a 0 value implies unknown, get sample size from StreamInfo.
	BitsPerSample uint8
	// Specifies the frame number if the block size is fixed,
	// and the first sample number in the frame otherwise.
	// When using fixed block size,
	// the first sample number in the frame can be derived
	// by multiplying the frame number with the block size (in samples).
	Num uint64
}

// Frame contains the header and subframes of an audio frame.
// It holds the encoded samples from a block (a part) of the audio stream.
// Each subframe holding the samples from one of its channel.
type Frame struct {
	// Audio frame header.
	Header
	// One subframe per channel, containing encoded audio samples.
	Subframes []*Subframe
	// CRC-16 hash sum, calculated by read operations on hr.
	crc hashutil.Hash16
	// A bit reader, wrapping read operations to hr.
	br *bits.Reader
	// A CRC-16 hash reader, wrapping read operations to r.
	hr io.Reader
	// Underlying io.Reader.
	r io.Reader
}

// New creates a new Frame for accessing the audio samples of r.
// It reads and parses an audio frame header.
// It returns io.EOF to signal a graceful end of FLAC stream.
//
// Call Frame.Parse to parse the audio samples of its subframes.
func New(r io.Reader) (frame *Frame, err error) {
	// create a new CRC-16 hash reader which
	// adds the data from all read operations to a running hash.
	crc := crc16.NewIBM()
	hr := hashutil.NewReader(r, crc)
	frame = &Frame{crc: crc, hr: hr, r: r}
	if err = frame.parseHeader(); err != nil {
		return frame, err
	}

	frame.br = bits.NewReader(hr)
	return frame, nil
}

// Parse reads and parses the header, and the audio samples from each subframe of a frame.
// It returns io.EOF to signal a graceful end of FLAC stream.
func Parse(r io.Reader) (frame *Frame, err error) {
	// parse frame header.
	if frame, err = New(r); err != nil {
		return frame, err
	}

	// parse subframes.
	err = frame.Parse()
	return frame, err
}

// Parse reads and parses the audio samples from each subframe of the frame.
// If the samples are inter-channel decorrelated between the subframes,
// it correlates them.
// It returns an error if the frame footer does not match
// the CRC-16 checksum of the frame.
func (frame *Frame) Parse() error {
	if frame.BitsPerSample == 0 {
		return errors.New("frame.Frame.Parse: unknown sample size; set BitsPerSample from StreamInfo")
	}

	// parse subframes.
	frame.Subframes = make([]*Subframe, frame.Channels.Count())
	for channel := range frame.Subframes {
		// side channel requires an extra bit per sample when using inter-channel decorrelation.
		bps := uint(frame.BitsPerSample)
		switch frame.Channels {
		case ChannelsSideRight:
			// channel 0 is the side channel.
			if channel == 0 {
				bps++
			}
		case ChannelsLeftSide, ChannelsMidSide:
			// channel 1 is the side channel.
			if channel == 1 {
				bps++
			}
		}

		subframe, err := frame.parseSubframe(frame.br, bps)
		if err != nil {
			return err
		}
		frame.Subframes[channel] = subframe
	}

	// inter-channel correlation of subframe samples.
	frame.Correlate()

	// zero-padding to byte alignment.
	if pad := frame.br.Align(); pad != 0 {
		return fmt.Errorf("frame.Frame.Parse: non-zero padding (%#x) after last subframe", pad)
	}

	// 2 bytes: CRC-16 checksum.
	var want uint16
	if err := binary.Read(frame.r, binary.BigEndian, &want); err != nil {
		return unexpected(err)
	}

	if got := frame.crc.Sum16(); got != want {
		return fmt.Errorf("frame.Frame.Parse: CRC-16 checksum mismatch; expected 0x%04X, got 0x%04X: %w", want, got, ErrChecksum)
	}

	return nil
}

// Hash adds the decoded audio samples of the frame to a running MD5 hash.
// It can be used in conjunction with StreamInfo.MD5sum
// to verify the integrity of the decoded audio samples.
//
// Samples are hashed interleaved and little-endian,
// using the smallest whole number of bytes holding BitsPerSample bits.
func (frame *Frame) Hash(md5sum hash.Hash) {
	nbytes := (int(frame.BitsPerSample) + 7) / 8
	buf := make([]byte, 0, nbytes*len(frame.Subframes)*int(frame.BlockSize))
	for i := 0; i < int(frame.BlockSize); i++ {
		for _, subframe := range frame.Subframes {
			sample := subframe.Samples[i]
			for j := 0; j < nbytes; j++ {
				buf = append(buf, uint8(sample>>(8*j)))
			}
		}
	}
	md5sum.Write(buf)
}

// parseHeader reads and parses the header of an audio frame.
func (frame *Frame) parseHeader() error {
	// create a new CRC-8 hash reader which
	// adds the data from all read operations to a running hash.
	h := crc8.NewATM()
	hr := hashutil.NewReader(frame.hr, h)

	// 14 bits: sync-code (11111111111110)
	br := bits.NewReader(hr)
	x, err := br.Read(14)
	if err != nil {
		// this is the only place an audio frame may return io.EOF,
		// which signals a graceful end of a FLAC stream.
		return err
	}

	if x != SyncCode {
		return ErrInvalidSync
	}

	// 1 bit: reserved.
	if x, err = br.Read(1); err != nil {
		return unexpected(err)
	}

	if x != 0 {
		return errors.New("frame.Frame.parseHeader: non-zero reserved value")
	}

	// 1 bit: HasFixedBlockSize.
	if x, err = br.Read(1); err != nil {
		return unexpected(err)
	}

	if x == 0 {
		frame.HasFixedBlockSize = true
	}

	// 4 bits: BlockSize.
	// The block size parsing is simplified by deferring it to the end of the header.
	blockSize, err := br.Read(4)
	if err != nil {
		return unexpected(err)
	}

	// 4 bits: SampleRate.
	// The sample rate parsing is simplified by deferring it to the end of the header.
	sampleRate, err := br.Read(4)
	if err != nil {
		return unexpected(err)
	}

	// parse channels.
	if err = frame.parseChannels(br); err != nil {
		return err
	}

	// parse bits per sample.
	if err = frame.parseBitsPerSample(br); err != nil {
		return err
	}

	// 1 bit: reserved.
	if x, err = br.Read(1); err != nil {
		return unexpected(err)
	}

	if x != 0 {
		return errors.New("frame.Frame.parseHeader: non-zero reserved value")
	}

	// the byte boundary has been reached;
	// the "UTF-8" coded number is read byte-wise.
	//
	// (1-7 bytes): "UTF-8" coded frame number (fixed block size)
	// or sample number (variable block size).
	if frame.Num, err = utf8.Decode(hr); err != nil {
		return unexpected(err)
	}

	if frame.HasFixedBlockSize && frame.Num >= 1<<31 {
		return fmt.Errorf("frame.Frame.parseHeader: frame number (%d) exceeds 31 bits", frame.Num)
	}

	// parse block size.
	if err = frame.parseBlockSize(br, blockSize); err != nil {
		return err
	}

	// parse sample rate.
	if err = frame.parseSampleRate(br, sampleRate); err != nil {
		return err
	}

	// 1 byte: CRC-8 checksum.
	// Read past the CRC-8 hash reader, the checksum covers
	// every header byte but itself.
	want, err := readByte(frame.hr)
	if err != nil {
		return unexpected(err)
	}

	if got := h.Sum8(); got != want {
		return fmt.Errorf("frame.Frame.parseHeader: CRC-8 checksum mismatch; expected 0x%02X, got 0x%02X: %w", want, got, ErrChecksum)
	}

	return nil
}

// parseBitsPerSample parses the bits per sample of the header.
func (frame *Frame) parseBitsPerSample(br *bits.Reader) error {
	// 3 bits: BitsPerSample.
	x, err := br.Read(3)
	if err != nil {
		return unexpected(err)
	}

	// sample size.
	//    000: unknown sample size; get from StreamInfo.
	//    001: 8 bits-per-sample.
	//    010: 12 bits-per-sample.
	//    011: reserved.
	//    100: 16 bits-per-sample.
	//    101: 20 bits-per-sample.
	//    110: 24 bits-per-sample.
	//    111: 32 bits-per-sample.
	switch x {
	case 0x0:
		// 000: unknown bits-per-sample; get from StreamInfo.
	case 0x1:
		frame.BitsPerSample = 8
	case 0x2:
		frame.BitsPerSample = 12
	case 0x4:
		frame.BitsPerSample = 16
	case 0x5:
		frame.BitsPerSample = 20
	case 0x6:
		frame.BitsPerSample = 24
	case 0x7:
		frame.BitsPerSample = 32
	default:
		return fmt.Errorf("frame.Frame.parseHeader: reserved sample size bit pattern (%03b)", x)
	}

	return nil
}

// parseChannels parses the channels of the header.
func (frame *Frame) parseChannels(br *bits.Reader) error {
	// 4 bits: Channels.
	//
	// The 4 bits are used to specify the channels as follows:
	//    0000: (1 channel) mono.
	//    0001: (2 channels) left, right.
	//    0010: (3 channels) left, right, center.
	//    0011: (4 channels) left, right, left surround, right surround.
	//    0100: (5 channels) left, right, center, left surround, right surround.
	//    0101: (6 channels) left, right, center, LFE, left surround, right surround.
	//    0110: (7 channels) left, right, center, LFE, center surround, side left, side right.
	//    0111: (8 channels) left, right, center, LFE, left surround, right surround, side left, side right.
	//    1000: (2 channels) left, side; using inter-channel decorrelation.
	//    1001: (2 channels) side, right; using inter-channel decorrelation.
	//    1010: (2 channels) mid, side; using inter-channel decorrelation.
	//    1011: reserved.
	//    1100: reserved.
	//    1101: reserved.
	//    1111: reserved.
	x, err := br.Read(4)
	if err != nil {
		return unexpected(err)
	}

	if x >= 0xB {
		return fmt.Errorf("frame.Frame.parseHeader: reserved channels bit pattern (%04b)", x)
	}

	frame.Channels = Channels(x)
	return nil
}

// parseBlockSize parses the block size of the header.
func (frame *Frame) parseBlockSize(br *bits.Reader, blockSize uint64) error {
	// 4 bits: BlockSize.
	// The 4 bits are used to specify the block size as follows:
	//    0000: reserved.
	//    0001: 192 samples.
	//    0010-0101: 576 * 2^(n-2) samples.
	//    0110: get 8 bit (block size)-1 from the end of the header.
	//    0111: get 16 bit (block size)-1 from the end of the header.
	//    1000-1111: 256 * 2^(n-8) samples.
	n := blockSize
	switch {
	case n == 0x0:
		// 0000: reserved.
		return errors.New("frame.Frame.parseHeader: reserved block size bit pattern (0000)")
	case n == 0x1:
		// 0001: 192 samples.
		frame.BlockSize = 192
	case n >= 0x2 && n <= 0x5:
		// 0010-0101: 576 * 2^(n-2) samples.
		frame.BlockSize = 576 * (1 << (n - 2))
	case n == 0x6:
		// 0110: get 8 bit (block size)-1 from the end of the header.
		x, err := br.Read(8)
		if err != nil {
			return unexpected(err)
		}
		frame.BlockSize = uint16(x + 1)
	case n == 0x7:
		// 0111: get 16 bit (block size)-1 from the end of the header.
		x, err := br.Read(16)
		if err != nil {
			return unexpected(err)
		}

		if x == 0xFFFF {
			return errors.New("frame.Frame.parseHeader: invalid block size (65536)")
		}
		frame.BlockSize = uint16(x + 1)
	default:
		//    1000-1111: 256 * 2^(n-8) samples.
		frame.BlockSize = 256 * (1 << (n - 8))
	}

	return nil
}

// parseSampleRate parses the sample rate of the header.
func (frame *Frame) parseSampleRate(br *bits.Reader, sampleRate uint64) error {
	// 4 bits: SampleRate.
	// The 4 bits are used to specify the sample rate as follows:
	//    0000: unknown sample rate; get from StreamInfo.
	//    0001: 88.2 kHz.
	//    0010: 176.4 kHz.
	//    0011: 192 kHz.
	//    0100: 8 kHz.
	//    0101: 16 kHz.
	//    0110: 22.05 kHz.
	//    0111: 24 kHz.
	//    1000: 32 kHz.
	//    1001: 44.1 kHz.
	//    1010: 48 kHz.
	//    1011: 96 kHz.
	//    1100: get 8 bit sample rate (in kHz) from the end of the header.
	//    1101: get 16 bit sample rate (in Hz) from the end of the header.
	//    1110: get 16 bit sample rate (in daHz) from the end of the header.
	//    1111: invalid.
	switch sampleRate {
	case 0x0:
		// 0000: unknown sample rate; get from StreamInfo.
	case 0x1:
		frame.SampleRate = 88200
	case 0x2:
		frame.SampleRate = 176400
	case 0x3:
		frame.SampleRate = 192000
	case 0x4:
		frame.SampleRate = 8000
	case 0x5:
		frame.SampleRate = 16000
	case 0x6:
		frame.SampleRate = 22050
	case 0x7:
		frame.SampleRate = 24000
	case 0x8:
		frame.SampleRate = 32000
	case 0x9:
		frame.SampleRate = 44100
	case 0xA:
		frame.SampleRate = 48000
	case 0xB:
		frame.SampleRate = 96000
	case 0xC:
		// 1100: get 8 bit sample rate (in kHz) from the end of the header.
		x, err := br.Read(8)
		if err != nil {
			return unexpected(err)
		}
		frame.SampleRate = uint32(x * 1000)
	case 0xD:
		// 1101: get 16 bit sample rate (in Hz) from the end of the header.
		x, err := br.Read(16)
		if err != nil {
			return unexpected(err)
		}
		frame.SampleRate = uint32(x)
	case 0xE:
		// 1110: get 16 bit sample rate (in daHz) from the end of the header.
		x, err := br.Read(16)
		if err != nil {
			return unexpected(err)
		}
		frame.SampleRate = uint32(x * 10)
	default:
		// 1111: invalid.
		return errors.New("frame.Frame.parseHeader: invalid sample rate bit pattern (1111)")
	}

	return nil
}

// readByte reads a single byte from r.
func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// unexpected returns io.ErrUnexpectedEOF if error is io.EOF,
// and returns error otherwise.
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
