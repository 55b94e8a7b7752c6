package pcm_test

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/mewkiz/flac"
	"github.com/pchchv/flacio"
	"github.com/pchchv/flacio/meta"
	"github.com/pchchv/flacio/pcm"
)

// sine returns n samples per channel of a sine wave, a different frequency per
// channel.
func sine(t testing.TB, n, channels, bps int) *pcm.Buffer {
	t.Helper()
	amp := 0.8 * float64(int64(1)<<(bps-1)-1)
	data := make([]int32, n*channels)
	for i := 0; i < n; i++ {
		for ch := 0; ch < channels; ch++ {
			freq := 440 * float64(ch+1)
			data[i*channels+ch] = int32(amp * math.Sin(2*math.Pi*freq*float64(i)/44100))
		}
	}

	buf, err := pcm.NewBuffer(data, channels, bps)
	if err != nil {
		t.Fatal(err)
	}
	return buf
}

// noise returns n samples per channel of white noise at full scale.
func noise(t testing.TB, n, channels, bps int) *pcm.Buffer {
	t.Helper()
	r := rand.New(rand.NewSource(int64(n*channels + bps)))
	data := make([]int32, n*channels)
	span := int64(1) << bps
	for i := range data {
		data[i] = int32(r.Int63n(span) - span/2)
	}

	buf, err := pcm.NewBuffer(data, channels, bps)
	if err != nil {
		t.Fatal(err)
	}
	return buf
}

// encode returns buf encoded as a FLAC stream.
func encode(t testing.TB, buf *pcm.Buffer, md *pcm.Metadata, opts *pcm.Options) []byte {
	t.Helper()
	if md == nil {
		md = pcm.NewMetadata(44100, buf.Channels, buf.BitsPerSample)
	}

	out := new(bytes.Buffer)
	if err := pcm.Write(out, buf, md, opts); err != nil {
		t.Fatal(err)
	}
	return out.Bytes()
}

// encodeStream returns buf encoded by a flacio.Encoder writing to a plain
// io.Writer. The stream has no metadata blocks besides StreamInfo, and its
// total sample count and MD5 signature are left unset.
func encodeStream(t testing.TB, buf *pcm.Buffer, blockSize int) []byte {
	t.Helper()
	out := new(bytes.Buffer)
	info := &meta.StreamInfo{
		SampleRate:    44100,
		NChannels:     uint8(buf.Channels),
		BitsPerSample: uint8(buf.BitsPerSample),
		BlockSizeMax:  uint16(blockSize),
	}
	enc, err := flacio.NewEncoder(out, info)
	if err != nil {
		t.Fatal(err)
	}

	n := buf.NumSamples()
	for i := 0; i < n; i += blockSize {
		j := min(i+blockSize, n)
		channels := make([][]int32, buf.Channels)
		for ch := range channels {
			channels[ch] = buf.Slice(i, j).Channel(ch)
		}
		if err := enc.WriteBlock(channels); err != nil {
			t.Fatal(err)
		}
	}

	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return out.Bytes()
}

// decode returns the decoded audio of a FLAC stream.
func decode(t testing.TB, data []byte) *pcm.Buffer {
	t.Helper()
	dec, err := pcm.NewDecoder(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	buf, err := dec.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return buf
}

func TestRoundTripLevels(t *testing.T) {
	for level := 0; level <= 8; level++ {
		for _, gen := range []func(testing.TB, int, int, int) *pcm.Buffer{sine, noise} {
			want := gen(t, 10000, 2, 16)
			got := decode(t, encode(t, want, nil, &pcm.Options{CompressionLevel: level}))
			if !reflect.DeepEqual(got, want) {
				t.Errorf("level %d: decoded audio differs from encoded audio", level)
			}
		}
	}
}

func TestRoundTripChannels(t *testing.T) {
	for channels := 1; channels <= pcm.MaxChannels; channels++ {
		want := sine(t, 5000, channels, 16)
		got := decode(t, encode(t, want, nil, nil))
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%d channels: decoded audio differs from encoded audio", channels)
		}
	}
}

func TestRoundTripBitsPerSample(t *testing.T) {
	for _, bps := range []int{8, 12, 16, 20, 24, 32} {
		for _, level := range []int{0, 5, 8} {
			for _, gen := range []func(testing.TB, int, int, int) *pcm.Buffer{sine, noise} {
				want := gen(t, 6000, 2, bps)
				got := decode(t, encode(t, want, nil, &pcm.Options{CompressionLevel: level}))
				if !reflect.DeepEqual(got, want) {
					t.Errorf("%d bits-per-sample, level %d: decoded audio differs from encoded audio", bps, level)
				}
			}
		}
	}
}

func TestRoundTripShort(t *testing.T) {
	for _, n := range []int{0, 1, 15, 16, 17, 1152, 4097} {
		want := sine(t, n, 2, 16)
		got := decode(t, encode(t, want, nil, nil))
		if got.NumSamples() != n || (n > 0 && !reflect.DeepEqual(got, want)) {
			t.Errorf("%d samples: decoded audio differs from encoded audio", n)
		}
	}
}

func TestRoundTripSilence(t *testing.T) {
	want, err := pcm.MakeBuffer(9000, 2, 24)
	if err != nil {
		t.Fatal(err)
	}

	data := encode(t, want, nil, nil)
	if got := decode(t, data); !reflect.DeepEqual(got, want) {
		t.Errorf("decoded audio differs from encoded audio")
	}

	// constant subframes.
	if len(data) > 200 {
		t.Errorf("silence encoded in %d bytes", len(data))
	}
}

func TestSaveLoad(t *testing.T) {
	// 2 seconds of stereo 16-bit audio at 44.1 kHz.
	want := sine(t, 88200, 2, 16)
	md := pcm.NewMetadata(44100, 2, 16)
	if err := md.Comments.Set("TITLE", "Test"); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "test.flac")
	if err := pcm.Save(path, want, 44100, md, nil); err != nil {
		t.Fatal(err)
	}

	res, err := pcm.Load(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	if res.SampleRate != 44100 || res.BitsPerSample != 16 {
		t.Errorf("format mismatch; expected 44100 Hz 16 bits, got %d Hz %d bits", res.SampleRate, res.BitsPerSample)
	}

	if res.Audio.NumSamples() != 88200 || res.Audio.Channels != 2 {
		t.Errorf("shape mismatch; expected 88200x2, got %dx%d", res.Audio.NumSamples(), res.Audio.Channels)
	}

	if !reflect.DeepEqual(res.Audio, want) {
		t.Errorf("decoded audio differs from saved audio")
	}

	if title, _ := res.Metadata.Comments.Get("TITLE"); title != "Test" {
		t.Errorf("TITLE mismatch; expected %q, got %q", "Test", title)
	}

	if res.Metadata.Vendor != pcm.DefaultVendor {
		t.Errorf("vendor mismatch; expected %q, got %q", pcm.DefaultVendor, res.Metadata.Vendor)
	}

	if res.Metadata.TotalSamples != 88200 {
		t.Errorf("total samples mismatch; expected 88200, got %d", res.Metadata.TotalSamples)
	}

	part, err := pcm.Load(path, &pcm.LoadOptions{Range: &pcm.Range{Start: 22050, Length: 11025}})
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(part.Audio, want.Slice(22050, 33075)) {
		t.Errorf("range mismatch")
	}

	info, err := pcm.Load(path, &pcm.LoadOptions{MetadataOnly: true})
	if err != nil {
		t.Fatal(err)
	}

	if info.Audio != nil || info.Metadata.Channels != 2 || info.Metadata.BlockSizeMax != 4096 {
		t.Errorf("unexpected metadata-only result %+v", info.Metadata)
	}

	// no temporary files are left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 file in output directory, got %d", len(entries))
	}
}

func TestWriteFileMode(t *testing.T) {
	buf := sine(t, 1000, 1, 16)
	md := pcm.NewMetadata(44100, 1, 16)
	dir := t.TempDir()

	golden := []struct {
		name string
		mode os.FileMode // mode of the existing file; 0 for none
		want os.FileMode
	}{
		{name: "new.flac", want: 0o644},
		{name: "private.flac", mode: 0o600, want: 0o600},
		{name: "shared.flac", mode: 0o664, want: 0o664},
	}

	for _, g := range golden {
		path := filepath.Join(dir, g.name)
		if g.mode != 0 {
			if err := os.WriteFile(path, nil, g.mode); err != nil {
				t.Fatal(err)
			}
			// os.WriteFile is subject to the umask.
			if err := os.Chmod(path, g.mode); err != nil {
				t.Fatal(err)
			}
		}

		if err := pcm.WriteFile(path, buf, md, nil); err != nil {
			t.Fatalf("%s: %v", g.name, err)
		}

		fi, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if got := fi.Mode().Perm(); got != g.want {
			t.Errorf("%s: mode mismatch; expected %v, got %v", g.name, g.want, got)
		}
	}
}

func TestSaveFormatMismatch(t *testing.T) {
	buf := sine(t, 100, 2, 16)
	path := filepath.Join(t.TempDir(), "test.flac")
	md := pcm.NewMetadata(48000, 2, 16)
	if err := pcm.Save(path, buf, 44100, md, nil); !errors.Is(err, pcm.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file created for invalid input")
	}
}

func TestReadRange(t *testing.T) {
	want := sine(t, 20000, 2, 16)
	for _, seekTable := range []bool{false, true} {
		data := encode(t, want, nil, &pcm.Options{CompressionLevel: 1, SeekTable: seekTable})
		dec, err := pcm.NewDecoder(bytes.NewReader(data))
		if err != nil {
			t.Fatal(err)
		}

		golden := []struct {
			start, n  uint64
			wantStart int
			wantEnd   int
		}{
			{start: 0, n: 10, wantStart: 0, wantEnd: 10},
			{start: 1151, n: 2, wantStart: 1151, wantEnd: 1153},
			{start: 1152, n: 1152, wantStart: 1152, wantEnd: 2304},
			{start: 5000, n: 3000, wantStart: 5000, wantEnd: 8000},
			{start: 19990, n: 100, wantStart: 19990, wantEnd: 20000},
			{start: 19999, n: 1, wantStart: 19999, wantEnd: 20000},
			{start: 20000, n: 10, wantStart: 0, wantEnd: 0},
			{start: 50000, n: 10, wantStart: 0, wantEnd: 0},
			{start: 100, n: 0, wantStart: 0, wantEnd: 0},
			{start: 0, n: math.MaxUint64, wantStart: 0, wantEnd: 20000},
		}

		// in reverse as well, the result of a range does not depend on
		// preceding reads.
		for pass := 0; pass < 2; pass++ {
			for i := range golden {
				g := golden[i]
				if pass == 1 {
					g = golden[len(golden)-1-i]
				}

				got, err := dec.ReadRange(g.start, g.n)
				if err != nil {
					t.Fatalf("ReadRange(%d, %d): %v", g.start, g.n, err)
				}

				if w := want.Slice(g.wantStart, g.wantEnd); !reflect.DeepEqual(got.Data, w.Data) {
					t.Errorf("ReadRange(%d, %d) mismatch; expected %d samples, got %d", g.start, g.n, w.NumSamples(), got.NumSamples())
				}
			}
		}

		all, err := dec.ReadAll()
		if err != nil {
			t.Fatal(err)
		}

		if !reflect.DeepEqual(all, want) {
			t.Errorf("ReadAll after ReadRange mismatch")
		}
		dec.Close()
	}
}

func TestSeekPointInterval(t *testing.T) {
	want := sine(t, 30000, 1, 16)
	data := encode(t, want, nil, &pcm.Options{CompressionLevel: 5, SeekTable: true, SeekPointInterval: 10000})
	dec, err := pcm.NewDecoder(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	got, err := dec.ReadRange(25000, 1000)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(got, want.Slice(25000, 26000)) {
		t.Errorf("range mismatch")
	}
}

func TestTruncated(t *testing.T) {
	data := encode(t, sine(t, 20000, 2, 16), nil, nil)
	for _, cut := range []int{len(data) - 1, len(data) / 2} {
		dec, err := pcm.NewDecoder(bytes.NewReader(data[:cut]))
		if err != nil {
			t.Fatal(err)
		}

		if md := dec.Metadata(); md.TotalSamples != 20000 {
			t.Errorf("total samples mismatch; expected 20000, got %d", md.TotalSamples)
		}

		_, err = dec.ReadAll()
		if !errors.Is(err, pcm.ErrTruncated) {
			t.Fatalf("cut at %d: expected truncation error, got %v", cut, err)
		}

		// the decoder stays failed.
		if _, err2 := dec.ReadRange(0, 10); err2 != err {
			t.Errorf("expected sticky error %v, got %v", err, err2)
		}
	}
}

func TestTruncatedHeader(t *testing.T) {
	data := encode(t, sine(t, 100, 1, 16), nil, nil)
	for _, cut := range []int{0, 3, 4, 10, 41} {
		_, err := pcm.NewDecoder(bytes.NewReader(data[:cut]))
		if !errors.Is(err, pcm.ErrFormat) {
			t.Errorf("cut at %d: expected format error, got %v", cut, err)
		}
	}
}

func TestInvalidSignature(t *testing.T) {
	_, err := pcm.NewDecoder(bytes.NewReader([]byte("RIFF\x24\x00\x00\x00WAVEfmt ")))
	if !errors.Is(err, pcm.ErrFormat) {
		t.Fatalf("expected format error, got %v", err)
	}

	var e *pcm.Error
	if !errors.As(err, &e) || e.Op != "open" {
		t.Errorf("expected open error, got %#v", err)
	}
}

func TestCorruptFrame(t *testing.T) {
	want := sine(t, 20000, 2, 16)
	md := pcm.NewMetadata(44100, 2, 16)
	md.Comments.Set("ARTIST", "someone")
	data := encode(t, want, md, nil)

	// invalidate the CRC-16 of the last frame.
	data[len(data)-1] ^= 0xFF

	dec, err := pcm.NewDecoder(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	if artist, _ := dec.Metadata().Comments.Get("ARTIST"); artist != "someone" {
		t.Errorf("ARTIST mismatch; expected %q, got %q", "someone", artist)
	}

	if _, err := dec.ReadAll(); !errors.Is(err, pcm.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestMD5Mismatch(t *testing.T) {
	data := encode(t, sine(t, 5000, 1, 16), nil, nil)

	// the MD5 signature occupies the last 16 bytes of StreamInfo.
	data[4+4+18] ^= 0x01

	dec, err := pcm.NewDecoder(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	if _, err := dec.ReadAll(); !errors.Is(err, pcm.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestClosed(t *testing.T) {
	dec, err := pcm.NewDecoder(bytes.NewReader(encode(t, sine(t, 100, 1, 16), nil, nil)))
	if err != nil {
		t.Fatal(err)
	}

	if err := dec.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := dec.ReadAll(); !errors.Is(err, pcm.ErrClosed) {
		t.Errorf("expected closed error, got %v", err)
	}

	if _, err := dec.ReadRange(0, 1); !errors.Is(err, pcm.ErrClosed) {
		t.Errorf("expected closed error, got %v", err)
	}
}

func TestWriteValidation(t *testing.T) {
	buf := sine(t, 100, 2, 16)
	golden := []struct {
		name string
		md   *pcm.Metadata
		opts *pcm.Options
	}{
		{name: "bps override", md: pcm.NewMetadata(44100, 2, 16), opts: &pcm.Options{CompressionLevel: 5, BitsPerSample: 24}},
		{name: "level", md: pcm.NewMetadata(44100, 2, 16), opts: &pcm.Options{CompressionLevel: 9}},
		{name: "negative level", md: pcm.NewMetadata(44100, 2, 16), opts: &pcm.Options{CompressionLevel: -1}},
		{name: "channels", md: pcm.NewMetadata(44100, 1, 16), opts: nil},
		{name: "bps", md: pcm.NewMetadata(44100, 2, 24), opts: nil},
		{name: "sample rate", md: pcm.NewMetadata(0, 2, 16), opts: nil},
		{name: "padding", md: pcm.NewMetadata(44100, 2, 16), opts: &pcm.Options{Padding: 1 << 24}},
	}

	for _, g := range golden {
		out := new(bytes.Buffer)
		err := pcm.Write(out, buf, g.md, g.opts)
		if !errors.Is(err, pcm.ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", g.name, err)
		}

		if out.Len() != 0 {
			t.Errorf("%s: %d bytes written for invalid input", g.name, out.Len())
		}
	}

	// the buffer is checked even when modified after creation.
	bad := sine(t, 100, 2, 16)
	bad.Data[7] = 1 << 20
	if err := pcm.Write(io.Discard, bad, pcm.NewMetadata(44100, 2, 16), nil); !errors.Is(err, pcm.ErrValidation) {
		t.Errorf("expected validation error for out of range sample, got %v", err)
	}
}

// failWriter fails every write past limit bytes.
type failWriter struct {
	limit int
	n     int
}

var errDiskFull = errors.New("disk full")

func (w *failWriter) Write(p []byte) (int, error) {
	if w.n+len(p) > w.limit {
		n := w.limit - w.n
		w.n = w.limit
		return n, errDiskFull
	}
	w.n += len(p)
	return len(p), nil
}

func TestWriteIOError(t *testing.T) {
	err := pcm.Write(&failWriter{limit: 100}, sine(t, 1000, 2, 16), pcm.NewMetadata(44100, 2, 16), nil)
	if !errors.Is(err, pcm.ErrIO) || !errors.Is(err, errDiskFull) {
		t.Fatalf("expected i/o error, got %v", err)
	}

	var e *pcm.Error
	if !errors.As(err, &e) || e.Offset != 100 {
		t.Errorf("expected failure at offset 100, got %#v", err)
	}
}

// failReader fails every read past limit bytes.
type failReader struct {
	*bytes.Reader
	limit int64
}

var errDisconnected = errors.New("disconnected")

func (r *failReader) Read(p []byte) (int, error) {
	pos, _ := r.Seek(0, io.SeekCurrent)
	if pos >= r.limit {
		return 0, errDisconnected
	}
	if int64(len(p)) > r.limit-pos {
		p = p[:r.limit-pos]
	}
	return r.Reader.Read(p)
}

func TestReadIOError(t *testing.T) {
	data := encode(t, sine(t, 20000, 2, 16), nil, nil)

	_, err := pcm.NewDecoder(&failReader{Reader: bytes.NewReader(data), limit: 20})
	if !errors.Is(err, pcm.ErrIO) || !errors.Is(err, errDisconnected) {
		t.Fatalf("expected i/o error on open, got %v", err)
	}

	dec, err := pcm.NewDecoder(&failReader{Reader: bytes.NewReader(data), limit: int64(len(data) / 2)})
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	_, err = dec.ReadAll()
	if !errors.Is(err, pcm.ErrIO) {
		t.Fatalf("expected i/o error, got %v", err)
	}

	var e *pcm.Error
	if !errors.As(err, &e) || e.Offset != int64(len(data)/2) {
		t.Errorf("expected failure at offset %d, got %#v", len(data)/2, err)
	}
}

func TestPictures(t *testing.T) {
	buf := sine(t, 1000, 1, 16)
	md := pcm.NewMetadata(8000, 1, 16)
	md.Vendor = "test vendor"
	md.Pictures = append(md.Pictures, testPicture())

	dec, err := pcm.NewDecoder(bytes.NewReader(encode(t, buf, md, &pcm.Options{CompressionLevel: 5, Padding: 1024})))
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	got := dec.Metadata()
	if got.Vendor != "test vendor" || got.SampleRate != 8000 {
		t.Errorf("metadata mismatch; got vendor %q, sample rate %d", got.Vendor, got.SampleRate)
	}

	if len(got.Pictures) != 1 || !reflect.DeepEqual(got.Pictures[0], md.Pictures[0]) {
		t.Errorf("picture mismatch; expected %+v, got %+v", md.Pictures, got.Pictures)
	}
}

func testPicture() *meta.Picture {
	return &meta.Picture{
		Type:   meta.PictureFrontCover,
		MIME:   "image/png",
		Desc:   "cover",
		Width:  1,
		Height: 1,
		Depth:  24,
		Data:   []byte("\x89PNG\r\n\x1a\n"),
	}
}

// TestInterop decodes encoded streams with an independent FLAC decoder.
func TestInterop(t *testing.T) {
	for _, level := range []int{0, 2, 5, 8} {
		for _, bps := range []int{8, 16, 24} {
			want := sine(t, 10000, 2, bps)
			data := encode(t, want, nil, &pcm.Options{CompressionLevel: level, SeekTable: true})

			stream, err := flac.New(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("level %d, %d bits: %v", level, bps, err)
			}

			if stream.Info.NSamples != 10000 || int(stream.Info.BitsPerSample) != bps {
				t.Errorf("level %d, %d bits: unexpected stream info %+v", level, bps, *stream.Info)
			}

			var got []int32
			for {
				f, err := stream.ParseNext()
				if err == io.EOF {
					break
				}
				if err != nil {
					t.Fatalf("level %d, %d bits: %v", level, bps, err)
				}

				for i := 0; i < int(f.BlockSize); i++ {
					for _, subframe := range f.Subframes {
						got = append(got, subframe.Samples[i])
					}
				}
			}

			if !reflect.DeepEqual(got, want.Data) {
				t.Errorf("level %d, %d bits: decoded audio differs from encoded audio", level, bps)
			}
		}
	}
}

func TestErrorMessage(t *testing.T) {
	err := &pcm.Error{Kind: pcm.ErrIO, Op: "write", Offset: 42, Err: errDiskFull}
	if got, want := err.Error(), "pcm: i/o failure: write at offset 42: disk full"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	err = &pcm.Error{Kind: pcm.ErrClosed, Op: "read", Offset: -1}
	if got, want := err.Error(), "pcm: decoder closed: read"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	if !errors.Is(fmt.Errorf("wrapped: %w", err), pcm.ErrClosed) {
		t.Errorf("wrapped error does not match its kind")
	}
}

func TestUnknownLength(t *testing.T) {
	want := sine(t, 30001, 2, 16)
	data := encodeStream(t, want, 4096)

	dec, err := pcm.NewDecoder(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	if md := dec.Metadata(); md.TotalSamples != 0 {
		t.Fatalf("expected unknown total samples, got %d", md.TotalSamples)
	}

	all, err := dec.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(all, want) {
		t.Fatalf("ReadAll mismatch; expected %d samples, got %d", want.NumSamples(), all.NumSamples())
	}

	golden := []struct {
		start, n  uint64
		wantStart int
		wantEnd   int
	}{
		{start: 0, n: 100, wantStart: 0, wantEnd: 100},
		{start: 4095, n: 2, wantStart: 4095, wantEnd: 4097},
		{start: 29000, n: 5000, wantStart: 29000, wantEnd: 30001},
		{start: 30000, n: 1, wantStart: 30000, wantEnd: 30001},
		{start: 30001, n: 1, wantStart: 0, wantEnd: 0},
		{start: 40000, n: 5, wantStart: 0, wantEnd: 0},
	}

	for _, g := range golden {
		got, err := dec.ReadRange(g.start, g.n)
		if err != nil {
			t.Fatalf("ReadRange(%d, %d): %v", g.start, g.n, err)
		}

		w := want.Slice(g.wantStart, g.wantEnd)
		if got.NumSamples() != w.NumSamples() {
			t.Errorf("ReadRange(%d, %d); expected %d samples, got %d", g.start, g.n, w.NumSamples(), got.NumSamples())
			continue
		}
		if w.NumSamples() > 0 && !reflect.DeepEqual(got.Data, w.Data) {
			t.Errorf("ReadRange(%d, %d) sample mismatch", g.start, g.n)
		}
	}
}

func TestNoCommentBlock(t *testing.T) {
	data := encodeStream(t, sine(t, 1000, 1, 16), 256)
	dec, err := pcm.NewDecoder(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	md := dec.Metadata()
	if md.Comments == nil {
		t.Fatal("expected empty comments, got nil")
	}
	if n := md.Comments.Len(); n != 0 {
		t.Errorf("expected no comments, got %d", n)
	}

	if err := md.Comments.Set("TITLE", "x"); err != nil {
		t.Fatal(err)
	}
	if v, ok := md.Comments.Get("title"); !ok || v != "x" {
		t.Errorf("expected TITLE=x, got %q (%v)", v, ok)
	}

	// the decoder keeps its own copy.
	if dec.Metadata().Comments.Len() != 0 {
		t.Errorf("modifying returned comments altered the decoder metadata")
	}
}
