package tiff

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// encodeToFile round-trips an Image through Encode and Parse.
func encodeToFile(t *testing.T, img *Image) *File {
	t.Helper()

	var buf bytes.Buffer
	if err := Encode(&buf, img); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	f, err := Parse(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return f
}

// ramp returns n values 0, 1, 2, ...
func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func fullRegion(shape []int) (start, stop, step []int) {
	start = make([]int, len(shape))
	stop = append([]int(nil), shape...)
	step = make([]int, len(shape))
	for i := range step {
		step[i] = 1
	}
	return start, stop, step
}

func TestRoundTripSinglePage(t *testing.T) {
	img := &Image{Height: 4, Width: 5, Type: Uint8, Data: ramp(20)}
	f := encodeToFile(t, img)

	if diff := cmp.Diff([]int{4, 5}, f.Shape()); diff != "" {
		t.Errorf("Shape mismatch (-want +got):\n%s", diff)
	}
	if f.SampleType() != Uint8 {
		t.Errorf("SampleType = %v, want Uint8", f.SampleType())
	}

	data, shape, err := f.ReadRegion(fullRegion(f.Shape()))
	if err != nil {
		t.Fatalf("ReadRegion failed: %v", err)
	}
	if diff := cmp.Diff([]int{4, 5}, shape); diff != "" {
		t.Errorf("region shape mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(img.Data, data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTripMultiPage(t *testing.T) {
	img := &Image{Pages: 3, Height: 4, Width: 4, Type: Uint16, Data: ramp(48)}
	f := encodeToFile(t, img)

	if diff := cmp.Diff([]int{3, 4, 4}, f.Shape()); diff != "" {
		t.Fatalf("Shape mismatch (-want +got):\n%s", diff)
	}

	// Pages 1..2 only
	data, shape, err := f.ReadRegion([]int{1, 0, 0}, []int{3, 4, 4}, []int{1, 1, 1})
	if err != nil {
		t.Fatalf("ReadRegion failed: %v", err)
	}
	if diff := cmp.Diff([]int{2, 4, 4}, shape); diff != "" {
		t.Errorf("region shape mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(img.Data[16:], data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTripMultiSample(t *testing.T) {
	// Three samples exercise the out-of-line BitsPerSample/SampleFormat
	// value path.
	img := &Image{Height: 4, Width: 4, Samples: 3, Type: Float32, Data: ramp(48)}
	f := encodeToFile(t, img)

	if diff := cmp.Diff([]int{4, 4, 3}, f.Shape()); diff != "" {
		t.Fatalf("Shape mismatch (-want +got):\n%s", diff)
	}

	// Sample 1 of every pixel
	data, shape, err := f.ReadRegion([]int{0, 0, 1}, []int{4, 4, 2}, []int{1, 1, 1})
	if err != nil {
		t.Fatalf("ReadRegion failed: %v", err)
	}
	if diff := cmp.Diff([]int{4, 4, 1}, shape); diff != "" {
		t.Errorf("region shape mismatch (-want +got):\n%s", diff)
	}
	want := make([]float64, 0, 16)
	for i := 0; i < 16; i++ {
		want = append(want, float64(i*3+1))
	}
	if diff := cmp.Diff(want, data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestNegativeValues(t *testing.T) {
	img := &Image{Height: 2, Width: 3, Type: Int16, Data: []float64{-5, -1, 0, 1, 300, -300}}
	f := encodeToFile(t, img)

	data, _, err := f.ReadRegion(fullRegion(f.Shape()))
	if err != nil {
		t.Fatalf("ReadRegion failed: %v", err)
	}
	if diff := cmp.Diff(img.Data, data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestFloat64Values(t *testing.T) {
	img := &Image{Height: 2, Width: 2, Type: Float64, Data: []float64{0.25, -1.5, 3.75, 1e-9}}
	f := encodeToFile(t, img)

	data, _, err := f.ReadRegion(fullRegion(f.Shape()))
	if err != nil {
		t.Fatalf("ReadRegion failed: %v", err)
	}
	if diff := cmp.Diff(img.Data, data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestStridedRead(t *testing.T) {
	img := &Image{Height: 6, Width: 6, Type: Uint8, Data: ramp(36)}
	f := encodeToFile(t, img)

	data, shape, err := f.ReadRegion([]int{0, 0}, []int{6, 6}, []int{2, 3})
	if err != nil {
		t.Fatalf("ReadRegion failed: %v", err)
	}
	if diff := cmp.Diff([]int{3, 2}, shape); diff != "" {
		t.Fatalf("region shape mismatch (-want +got):\n%s", diff)
	}
	want := []float64{0, 3, 12, 15, 24, 27}
	if diff := cmp.Diff(want, data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestRegionBounds(t *testing.T) {
	img := &Image{Height: 4, Width: 4, Type: Uint8, Data: ramp(16)}
	f := encodeToFile(t, img)

	if _, _, err := f.ReadRegion([]int{0, 0}, []int{5, 4}, []int{1, 1}); err == nil {
		t.Error("expected error for stop beyond extent")
	}
	if _, _, err := f.ReadRegion([]int{-1, 0}, []int{4, 4}, []int{1, 1}); err == nil {
		t.Error("expected error for negative start")
	}
	if _, _, err := f.ReadRegion([]int{0}, []int{4}, []int{1}); err == nil {
		t.Error("expected error for rank mismatch")
	}
}

func TestBigEndianRead(t *testing.T) {
	// Hand-built big-endian file: 2x2 uint8, single strip at offset 8,
	// IFD at 12.
	var buf bytes.Buffer
	buf.WriteString("MM")
	buf.Write([]byte{0, 42})       // magic
	buf.Write([]byte{0, 0, 0, 12}) // first IFD offset
	buf.Write([]byte{10, 20, 30, 40})

	entry := func(tag, typ uint16, count, value uint32) {
		buf.Write([]byte{byte(tag >> 8), byte(tag)})
		buf.Write([]byte{byte(typ >> 8), byte(typ)})
		buf.Write([]byte{byte(count >> 24), byte(count >> 16), byte(count >> 8), byte(count)})
		switch typ {
		case typeShort:
			buf.Write([]byte{byte(value >> 8), byte(value), 0, 0})
		default:
			buf.Write([]byte{byte(value >> 24), byte(value >> 16), byte(value >> 8), byte(value)})
		}
	}

	buf.Write([]byte{0, 7}) // entry count
	entry(tagImageWidth, typeLong, 1, 2)
	entry(tagImageLength, typeLong, 1, 2)
	entry(tagBitsPerSample, typeShort, 1, 8)
	entry(tagCompression, typeShort, 1, 1)
	entry(tagStripOffsets, typeLong, 1, 8)
	entry(tagRowsPerStrip, typeLong, 1, 2)
	entry(tagStripByteCounts, typeLong, 1, 4)
	buf.Write([]byte{0, 0, 0, 0}) // no next IFD

	f, err := Parse(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	data, _, err := f.ReadRegion(fullRegion(f.Shape()))
	if err != nil {
		t.Fatalf("ReadRegion failed: %v", err)
	}
	if diff := cmp.Diff([]float64{10, 20, 30, 40}, data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	t.Run("NotTIFF", func(t *testing.T) {
		_, err := Parse(bytes.NewReader([]byte("GIF89a..")))
		if !errors.Is(err, ErrNotTIFF) {
			t.Errorf("got %v, want ErrNotTIFF", err)
		}
	})

	t.Run("UnsupportedCompression", func(t *testing.T) {
		var buf bytes.Buffer
		img := &Image{Height: 2, Width: 2, Type: Uint8, Data: ramp(4)}
		if err := Encode(&buf, img); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		// Patch the Compression entry (4th entry of the IFD) to LZW.
		raw := buf.Bytes()
		stripSize := 4
		compValue := 8 + stripSize + 2 + 3*12 + 8
		raw[compValue] = 5
		_, err := Parse(bytes.NewReader(raw))
		if !errors.Is(err, ErrUnsupported) {
			t.Errorf("got %v, want ErrUnsupported", err)
		}
	})

	t.Run("EncodeLengthMismatch", func(t *testing.T) {
		err := Encode(&bytes.Buffer{}, &Image{Height: 2, Width: 2, Type: Uint8, Data: ramp(3)})
		if err == nil {
			t.Error("expected error for short data")
		}
	})
}
