package flacio_test

import (
	"bytes"
	"crypto/md5"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/pchchv/flacio"
	"github.com/pchchv/flacio/frame"
	"github.com/pchchv/flacio/internal/ioutilx"
	"github.com/pchchv/flacio/meta"
)

// ramp returns n samples rising by step from start.
func ramp(n int, start, step int32) []int32 {
	samples := make([]int32, n)
	for i := range samples {
		samples[i] = start + int32(i)*step
	}
	return samples
}

// decodeAll returns the samples of every channel of stream, and the sample
// number of each frame.
func decodeAll(t *testing.T, stream *flacio.Stream) ([][]int32, []uint64) {
	t.Helper()
	samples := make([][]int32, stream.Info.NChannels)
	var nums []uint64
	for {
		f, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}

		nums = append(nums, stream.SampleNumber(f))
		for i, subframe := range f.Subframes {
			samples[i] = append(samples[i], subframe.Samples...)
		}
	}
	return samples, nums
}

func TestWriteFrame(t *testing.T) {
	info := &meta.StreamInfo{SampleRate: 48000, NChannels: 2, BitsPerSample: 24}
	out := new(ioutilx.Buffer)
	enc, err := flacio.NewEncoder(out, info)
	if err != nil {
		t.Fatal(err)
	}

	frames := []*frame.Frame{
		{
			Header: frame.Header{HasFixedBlockSize: true, BlockSize: 4096, Channels: frame.ChannelsLeftSide},
			Subframes: []*frame.Subframe{
				{SubHeader: frame.SubHeader{Pred: frame.PredFixed, Order: 2}, Samples: ramp(4096, -1000, 3)},
				{SubHeader: frame.SubHeader{Pred: frame.PredVerbatim}, Samples: ramp(4096, 5000, -7)},
			},
		},
		{
			Header: frame.Header{HasFixedBlockSize: true, BlockSize: 4096, Channels: frame.ChannelsLR},
			Subframes: []*frame.Subframe{
				{SubHeader: frame.SubHeader{Pred: frame.PredConstant}, Samples: ramp(4096, 42, 0)},
				{SubHeader: frame.SubHeader{Pred: frame.PredFIR, Order: 1, CoeffPrec: 12, CoeffShift: 0, Coeffs: []int32{1}}, Samples: ramp(4096, 0, 256)},
			},
		},
		{
			Header: frame.Header{HasFixedBlockSize: true, BlockSize: 100, Channels: frame.ChannelsMidSide},
			Subframes: []*frame.Subframe{
				{SubHeader: frame.SubHeader{Pred: frame.PredFixed, Order: 1, Wasted: 2}, Samples: ramp(100, 8, 16)},
				{SubHeader: frame.SubHeader{Pred: frame.PredFixed, Order: 1}, Samples: ramp(100, 0, 8)},
			},
		},
	}

	var want [2][]int32
	for _, f := range frames {
		for i, subframe := range f.Subframes {
			want[i] = append(want[i], subframe.Samples...)
		}
		if err := enc.WriteFrame(f); err != nil {
			t.Fatal(err)
		}
	}

	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}

	stream, err := flacio.New(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatal(err)
	}

	if stream.Info.NSamples != 8292 || stream.Info.BlockSizeMax != 4096 || stream.Info.FrameSizeMax == 0 {
		t.Errorf("unexpected stream info %+v", stream.Info)
	}

	got, nums := decodeAll(t, stream)
	if !reflect.DeepEqual(got, want[:]) {
		t.Errorf("decoded samples differ from encoded samples")
	}

	if want := []uint64{0, 4096, 8192}; !reflect.DeepEqual(nums, want) {
		t.Errorf("sample numbers mismatch; expected %v, got %v", want, nums)
	}
}

func TestVariableBlockSize(t *testing.T) {
	info := &meta.StreamInfo{SampleRate: 44100, NChannels: 1, BitsPerSample: 16}
	out := new(ioutilx.Buffer)
	enc, err := flacio.NewEncoder(out, info)
	if err != nil {
		t.Fatal(err)
	}

	var want []int32
	for _, n := range []int{1000, 3000, 500} {
		samples := ramp(n, int32(len(want)), 1)
		want = append(want, samples...)
		f := &frame.Frame{
			Header:    frame.Header{BlockSize: uint16(n), Channels: frame.ChannelsMono},
			Subframes: []*frame.Subframe{{SubHeader: frame.SubHeader{Pred: frame.PredFixed, Order: 2}, Samples: samples}},
		}
		if err := enc.WriteFrame(f); err != nil {
			t.Fatal(err)
		}
	}

	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}

	stream, err := flacio.NewSeek(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatal(err)
	}

	if stream.Info.BlockSizeMin != 1000 || stream.Info.BlockSizeMax != 3000 {
		t.Errorf("block size mismatch; expected 1000 to 3000, got %d to %d", stream.Info.BlockSizeMin, stream.Info.BlockSizeMax)
	}

	got, nums := decodeAll(t, stream)
	if !reflect.DeepEqual(got[0], want) {
		t.Errorf("decoded samples differ from encoded samples")
	}

	if want := []uint64{0, 1000, 4000}; !reflect.DeepEqual(nums, want) {
		t.Errorf("sample numbers mismatch; expected %v, got %v", want, nums)
	}

	if first, err := stream.Seek(2500); err != nil || first != 1000 {
		t.Errorf("Seek(2500); expected 1000, got %d (%v)", first, err)
	}
}

func TestEncoderNonSeekable(t *testing.T) {
	info := &meta.StreamInfo{SampleRate: 8000, NChannels: 1, BitsPerSample: 8}
	out := new(bytes.Buffer)
	enc, err := flacio.NewEncoder(out, info)
	if err != nil {
		t.Fatal(err)
	}

	want := make([]int32, 5000)
	for i := range want {
		want[i] = int32(i%200 - 100)
	}
	for start := 0; start < len(want); start += 4096 {
		if err := enc.WriteBlock([][]int32{want[start:min(start+4096, len(want))]}); err != nil {
			t.Fatal(err)
		}
	}

	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}

	if enc.Written() != 5000 {
		t.Errorf("expected 5000 samples written, got %d", enc.Written())
	}

	// the header is not revisited; the sample count stays unknown.
	stream, err := flacio.NewSeek(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatal(err)
	}

	if stream.Info.NSamples != 0 {
		t.Errorf("expected unknown sample count, got %d", stream.Info.NSamples)
	}

	if first, err := stream.Seek(4500); err != nil || first != 4096 {
		t.Errorf("Seek(4500); expected 4096, got %d (%v)", first, err)
	}

	var seekErr *flacio.SeekError
	if _, err := stream.Seek(5000); !errors.As(err, &seekErr) || seekErr.SampleNum != 5000 {
		t.Errorf("Seek(5000); expected seek error, got %v", err)
	}

	if err := stream.Rewind(); err != nil {
		t.Fatal(err)
	}

	got, _ := decodeAll(t, stream)
	if !reflect.DeepEqual(got[0], want) {
		t.Errorf("decoded samples differ from encoded samples")
	}
}

func TestCompressionLevels(t *testing.T) {
	data0, samples := encodeSineLevel(t, 0)
	data8, _ := encodeSineLevel(t, 8)
	if len(data8) > len(data0) {
		t.Errorf("level 8 (%d bytes) larger than level 0 (%d bytes)", len(data8), len(data0))
	}

	for _, data := range [][]byte{data0, data8} {
		stream, err := flacio.New(bytes.NewReader(data))
		if err != nil {
			t.Fatal(err)
		}

		got, _ := decodeAll(t, stream)
		if !reflect.DeepEqual(got, samples) {
			t.Errorf("decoded samples differ from encoded samples")
		}

		// MD5 of the decoded audio matches StreamInfo.
		stream, _ = flacio.New(bytes.NewReader(data))
		sum := md5.New()
		for {
			f, err := stream.ParseNext()
			if err != nil {
				break
			}
			f.Hash(sum)
		}
		if !bytes.Equal(sum.Sum(nil), stream.Info.MD5sum[:]) {
			t.Errorf("MD5 mismatch")
		}
	}
}

// encodeSineLevel returns 20000 stereo samples encoded at the given level.
func encodeSineLevel(t *testing.T, level int) ([]byte, [][]int32) {
	t.Helper()
	_, samples := encodeSine(t, 20000, 2)
	info := &meta.StreamInfo{SampleRate: 44100, NChannels: 2, BitsPerSample: 16, BlockSizeMax: flacio.BlockSize(level)}
	out := new(ioutilx.Buffer)
	enc, err := flacio.NewEncoder(out, info)
	if err != nil {
		t.Fatal(err)
	}
	enc.Level = level

	n := int(flacio.BlockSize(level))
	for start := 0; start < 20000; start += n {
		end := min(start+n, 20000)
		if err := enc.WriteBlock([][]int32{samples[0][start:end], samples[1][start:end]}); err != nil {
			t.Fatal(err)
		}
	}

	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return out.Bytes(), samples
}

func TestEncoderErrors(t *testing.T) {
	if _, err := flacio.NewEncoder(io.Discard, &meta.StreamInfo{SampleRate: 44100, NChannels: 9, BitsPerSample: 16}); err == nil {
		t.Error("expected error for 9 channels")
	}

	if _, err := flacio.NewEncoder(io.Discard, &meta.StreamInfo{SampleRate: 0, NChannels: 1, BitsPerSample: 16}); err == nil {
		t.Error("expected error for sample rate 0")
	}

	info := &meta.StreamInfo{SampleRate: 44100, NChannels: 2, BitsPerSample: 8}
	enc, err := flacio.NewEncoder(new(bytes.Buffer), info)
	if err != nil {
		t.Fatal(err)
	}

	golden := []struct {
		name     string
		channels [][]int32
	}{
		{name: "channel count", channels: [][]int32{ramp(10, 0, 1)}},
		{name: "length mismatch", channels: [][]int32{ramp(10, 0, 1), ramp(9, 0, 1)}},
		{name: "empty", channels: [][]int32{{}, {}}},
		{name: "overflow", channels: [][]int32{{128}, {0}}},
		{name: "block size", channels: [][]int32{make([]int32, 4097), make([]int32, 4097)}},
	}

	for _, g := range golden {
		if err := enc.WriteBlock(g.channels); err == nil {
			t.Errorf("%s: expected error", g.name)
		}
	}

	// a short frame ends a fixed block size stream.
	if err := enc.WriteBlock([][]int32{ramp(10, 0, 1), ramp(10, 0, 1)}); err != nil {
		t.Fatal(err)
	}
	if err := enc.WriteBlock([][]int32{ramp(10, 0, 1), ramp(10, 0, 1)}); err == nil {
		t.Error("expected error for frame after short frame")
	}

	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}

	if err := enc.WriteBlock([][]int32{{0}, {0}}); err != flacio.ErrEncoderClosed {
		t.Errorf("expected %v, got %v", flacio.ErrEncoderClosed, err)
	}

	if err := enc.Close(); err != flacio.ErrEncoderClosed {
		t.Errorf("expected %v, got %v", flacio.ErrEncoderClosed, err)
	}
}

func Test32BitStereo(t *testing.T) {
	info := &meta.StreamInfo{SampleRate: 44100, NChannels: 2, BitsPerSample: 32, BlockSizeMax: 1024}
	out := new(bytes.Buffer)
	enc, err := flacio.NewEncoder(out, info)
	if err != nil {
		t.Fatal(err)
	}

	// a side channel of these samples needs 33 bits.
	left := ramp(1000, -2000000000, 4000000)
	right := ramp(1000, 2000000000, -4000000)

	f := &frame.Frame{
		Header: frame.Header{HasFixedBlockSize: true, BlockSize: 1000, Channels: frame.ChannelsLeftSide},
		Subframes: []*frame.Subframe{
			{SubHeader: frame.SubHeader{Pred: frame.PredVerbatim}, Samples: left},
			{SubHeader: frame.SubHeader{Pred: frame.PredVerbatim}, Samples: right},
		},
	}
	if err := enc.WriteFrame(f); err == nil {
		t.Error("expected error for decorrelated 32-bit frame")
	}

	if err := enc.WriteBlock([][]int32{left, right}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}

	stream, err := flacio.New(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatal(err)
	}

	got, _ := decodeAll(t, stream)
	if !reflect.DeepEqual(got, [][]int32{left, right}) {
		t.Errorf("32-bit stereo samples differ after round trip")
	}
}
