package pcm_test

import (
	"bytes"
	"fmt"
	"log"

	"github.com/pchchv/flacio/pcm"
)

func ExampleWrite() {
	// 1 second of a 16-bit mono ramp at 8 kHz.
	buf, err := pcm.MakeBuffer(8000, 1, 16)
	if err != nil {
		log.Fatal(err)
	}
	for i := 0; i < buf.NumSamples(); i++ {
		buf.Data[i] = int32(i%256) - 128
	}

	md := pcm.NewMetadata(8000, 1, 16)
	md.Comments.Set("TITLE", "ramp")

	out := new(bytes.Buffer)
	if err := pcm.Write(out, buf, md, nil); err != nil {
		log.Fatal(err)
	}

	dec, err := pcm.NewDecoder(bytes.NewReader(out.Bytes()))
	if err != nil {
		log.Fatal(err)
	}
	defer dec.Close()

	got := dec.Metadata()
	title, _ := got.Comments.Get("title")
	fmt.Printf("%d Hz, %d bits, %d samples, title %q\n", got.SampleRate, got.BitsPerSample, got.TotalSamples, title)
	// Output:
	// 8000 Hz, 16 bits, 8000 samples, title "ramp"
}

func ExampleDecoder_ReadRange() {
	buf, err := pcm.NewBuffer([]int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, 2, 8)
	if err != nil {
		log.Fatal(err)
	}

	out := new(bytes.Buffer)
	if err := pcm.Write(out, buf, pcm.NewMetadata(44100, 2, 8), nil); err != nil {
		log.Fatal(err)
	}

	dec, err := pcm.NewDecoder(bytes.NewReader(out.Bytes()))
	if err != nil {
		log.Fatal(err)
	}
	defer dec.Close()

	// samples 2 to 3; the range is truncated at the end of the stream.
	part, err := dec.ReadRange(2, 2)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(part.Data)

	part, err = dec.ReadRange(5, 100)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(part.Data)
	// Output:
	// [4 5 6 7]
	// [10 11]
}
