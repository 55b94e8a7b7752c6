package flacio

import (
	"bytes"
	"fmt"
	"math"

	"github.com/icza/bitio"
	"github.com/pchchv/flacio/frame"
	"github.com/pchchv/flacio/internal/hashutil/crc16"
	"github.com/pchchv/flacio/internal/hashutil/crc8"
	"github.com/pchchv/flacio/internal/utf8"
	"github.com/pchchv/flacio/meta"
)

// encodeFrameHeader encodes the given frame header, writing to bw.
// buf is the underlying buffer of bw, holding the frame from its first byte.
func encodeFrameHeader(bw *bitio.Writer, buf *bytes.Buffer, hdr frame.Header, info *meta.StreamInfo) error {
	// 14 bits: sync-code (11111111111110)
	if err := bw.WriteBits(frame.SyncCode, 14); err != nil {
		return err
	}

	// 1 bit: reserved
	if err := bw.WriteBool(false); err != nil {
		return err
	}

	// 1 bit: blocking strategy; 0 for fixed block size, 1 for variable
	if err := bw.WriteBool(!hdr.HasFixedBlockSize); err != nil {
		return err
	}

	// 4 bits: block size in inter-channel samples
	nblockSizeSuffixBits, err := encodeFrameHeaderBlockSize(bw, hdr.BlockSize)
	if err != nil {
		return err
	}

	// 4 bits: sample rate
	sampleRateSuffix, nsampleRateSuffixBits, err := encodeFrameHeaderSampleRate(bw, hdr.SampleRate, info.SampleRate)
	if err != nil {
		return err
	}

	// 4 bits: channel assignment
	if err := bw.WriteBits(uint64(hdr.Channels), 4); err != nil {
		return err
	}

	// 3 bits: sample size in bits
	if err := encodeFrameHeaderBitsPerSample(bw, hdr.BitsPerSample); err != nil {
		return err
	}

	// 1 bit: reserved
	if err := bw.WriteBool(false); err != nil {
		return err
	}

	// "UTF-8" coded frame number (fixed block size)
	// or sample number (variable block size)
	if err := utf8.Encode(bw, hdr.Num); err != nil {
		return err
	}

	// (0 or 8 or 16 bits): (blocksize-1)
	if nblockSizeSuffixBits > 0 {
		if err := bw.WriteBits(uint64(hdr.BlockSize-1), nblockSizeSuffixBits); err != nil {
			return err
		}
	}

	// (0 or 8 or 16 bits): sample rate
	if nsampleRateSuffixBits > 0 {
		if err := bw.WriteBits(sampleRateSuffix, nsampleRateSuffixBits); err != nil {
			return err
		}
	}

	// 8 bits: CRC-8 of the header
	if _, err := bw.Align(); err != nil {
		return err
	}

	return bw.WriteBits(uint64(crc8.ChecksumATM(buf.Bytes())), 8)
}

// encodeFrameFooter zero-pads the frame to a byte boundary and stores the
// CRC-16 checksum of the frame, writing to bw.
// buf is the underlying buffer of bw, holding the frame from its first byte.
func encodeFrameFooter(bw *bitio.Writer, buf *bytes.Buffer) error {
	// zero-padding to byte alignment
	if _, err := bw.Align(); err != nil {
		return err
	}

	// 16 bits: CRC-16 of the frame
	return bw.WriteBits(uint64(crc16.ChecksumIBM(buf.Bytes())), 16)
}

// encodeFrameHeaderSampleRate encodes the sample rate of the frame header,
// writing to bw. It returns the sample rate bits stored at the end of the
// frame header and their count.
func encodeFrameHeaderSampleRate(bw *bitio.Writer, sampleRate, streamSampleRate uint32) (suffix uint64, nsuffixBits uint8, err error) {
	// sample rate:
	//    0000 : get from STREAMINFO metadata block
	//    0001 : 88.2kHz
	//    0010 : 176.4kHz
	//    0011 : 192kHz
	//    0100 : 8kHz
	//    0101 : 16kHz
	//    0110 : 22.05kHz
	//    0111 : 24kHz
	//    1000 : 32kHz
	//    1001 : 44.1kHz
	//    1010 : 48kHz
	//    1011 : 96kHz
	//    1100 : get 8 bit sample rate (in kHz) from end of header
	//    1101 : get 16 bit sample rate (in Hz) from end of header
	//    1110 : get 16 bit sample rate (in tens of Hz) from end of header
	//    1111 : invalid, to prevent sync-fooling string of 1s
	var bits uint64
	switch sampleRate {
	case 88200:
		bits = 0x1
	case 176400:
		bits = 0x2
	case 192000:
		bits = 0x3
	case 8000:
		bits = 0x4
	case 16000:
		bits = 0x5
	case 22050:
		bits = 0x6
	case 24000:
		bits = 0x7
	case 32000:
		bits = 0x8
	case 44100:
		bits = 0x9
	case 48000:
		bits = 0xA
	case 96000:
		bits = 0xB
	default:
		switch {
		case sampleRate == 0:
			// 0000 : get from STREAMINFO metadata block
			bits = 0x0
		case sampleRate%1000 == 0 && sampleRate/1000 <= 0xFF:
			// 1100 : get 8 bit sample rate (in kHz) from end of header
			bits, suffix, nsuffixBits = 0xC, uint64(sampleRate/1000), 8
		case sampleRate <= 0xFFFF:
			// 1101 : get 16 bit sample rate (in Hz) from end of header
			bits, suffix, nsuffixBits = 0xD, uint64(sampleRate), 16
		case sampleRate%10 == 0 && sampleRate/10 <= 0xFFFF:
			// 1110 : get 16 bit sample rate (in tens of Hz) from end of header
			bits, suffix, nsuffixBits = 0xE, uint64(sampleRate/10), 16
		case sampleRate == streamSampleRate:
			// 0000 : get from STREAMINFO metadata block
			bits = 0x0
		default:
			return 0, 0, fmt.Errorf("flacio.encodeFrameHeaderSampleRate: sample rate %d differs from stream sample rate %d and has no frame header encoding", sampleRate, streamSampleRate)
		}
	}

	if err := bw.WriteBits(bits, 4); err != nil {
		return 0, 0, err
	}

	return suffix, nsuffixBits, nil
}

// encodeFrameHeaderBitsPerSample encodes the bits-per-sample of the frame header,
// writing to bw.
func encodeFrameHeaderBitsPerSample(bw *bitio.Writer, bps uint8) error {
	// sample size in bits:
	//    000 : get from STREAMINFO metadata block
	//    001 : 8 bits per sample
	//    010 : 12 bits per sample
	//    011 : reserved
	//    100 : 16 bits per sample
	//    101 : 20 bits per sample
	//    110 : 24 bits per sample
	//    111 : 32 bits per sample
	var bits uint64
	switch bps {
	case 0:
		// 000 : get from STREAMINFO metadata block
		bits = 0x0
	case 8:
		// 001 : 8 bits per sample
		bits = 0x1
	case 12:
		// 010 : 12 bits per sample
		bits = 0x2
	case 16:
		// 100 : 16 bits per sample
		bits = 0x4
	case 20:
		// 101 : 20 bits per sample
		bits = 0x5
	case 24:
		// 110 : 24 bits per sample
		bits = 0x6
	case 32:
		// 111 : 32 bits per sample
		bits = 0x7
	default:
		// 000 : get from STREAMINFO metadata block
		bits = 0x0
	}

	if err := bw.WriteBits(bits, 3); err != nil {
		return err
	}

	return nil
}

// encodeFrameHeaderBlockSize encodes the block size of the frame header,
// writing to bw.
// It returns the number of bits used to store block size after the frame header.
func encodeFrameHeaderBlockSize(bw *bitio.Writer, blockSize uint16) (nblockSizeSuffixBits byte, err error) {
	// block size in inter-channel samples:
	//    0000 : reserved
	//    0001 : 192 samples
	//    0010-0101 : 576 * (2^(n-2)) samples, i.e. 576/1152/2304/4608
	//    0110 : get 8 bit (blocksize-1) from end of header
	//    0111 : get 16 bit (blocksize-1) from end of header
	//    1000-1111 : 256 * (2^(n-8)) samples, i.e. 256/512/1024/2048/4096/8192/16384/32768
	var bits uint64
	switch blockSize {
	case 192:
		// 0001
		bits = 0x1
	case 576, 1152, 2304, 4608:
		// 0010-0101 : 576 * (2^(n-2)) samples, i.e. 576/1152/2304/4608
		bits = 0x2 + uint64(math.Log2(float64(blockSize/576)))
	case 256, 512, 1024, 2048, 4096, 8192, 16384, 32768:
		// 1000-1111 : 256 * (2^(n-8)) samples, i.e. 256/512/1024/2048/4096/8192/16384/32768
		bits = 0x8 + uint64(math.Log2(float64(blockSize/256)))
	default:
		if blockSize <= 256 {
			// 0110 : get 8 bit (blocksize-1) from end of header
			bits = 0x6
			nblockSizeSuffixBits = 8
		} else {
			// 0111 : get 16 bit (blocksize-1) from end of header
			bits = 0x7
			nblockSizeSuffixBits = 16
		}
	}

	if err := bw.WriteBits(bits, 4); err != nil {
		return 0, err
	}

	return nblockSizeSuffixBits, nil
}
