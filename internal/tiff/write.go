package tiff

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Image describes pixel data to be encoded. Data is row-major over
// (page, row, column, sample); Pages and Samples default to 1 when zero.
type Image struct {
	Pages   int
	Height  int
	Width   int
	Samples int
	Type    SampleType
	Data    []float64
}

// Encode writes img as a little-endian classic TIFF with one uncompressed
// strip per page. Integer sample types truncate the float64 values toward
// zero. The output is readable by Parse and by common TIFF tooling.
func Encode(w io.Writer, img *Image) error {
	pages, samples := img.Pages, img.Samples
	if pages == 0 {
		pages = 1
	}
	if samples == 0 {
		samples = 1
	}
	if img.Height <= 0 || img.Width <= 0 || pages < 1 || samples < 1 {
		return fmt.Errorf("invalid image dimensions %dx%dx%dx%d", pages, img.Height, img.Width, samples)
	}
	if want := pages * img.Height * img.Width * samples; len(img.Data) != want {
		return fmt.Errorf("data length %d does not match dimensions (want %d)", len(img.Data), want)
	}

	const numEntries = 11
	const ifdSize = 2 + numEntries*12 + 4

	bytesPer := img.Type.Bits() / 8
	stripSize := img.Height * img.Width * samples * bytesPer

	// BitsPerSample and SampleFormat have one value per sample; more than
	// two shorts no longer fit the inline value field and spill into an
	// overflow area placed directly after the IFD.
	overflow := 0
	if samples > 2 {
		overflow = 4 * samples
	}
	pageBlock := stripSize + ifdSize + overflow

	le := binary.LittleEndian
	var hdr [8]byte
	hdr[0], hdr[1] = 'I', 'I'
	le.PutUint16(hdr[2:], 42)
	// The first IFD sits directly after the first page's strip.
	le.PutUint32(hdr[4:], uint32(8+stripSize))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	block := make([]byte, pageBlock)
	perPage := img.Height * img.Width * samples
	for pg := 0; pg < pages; pg++ {
		dataOff := 8 + pg*pageBlock
		ifdOff := dataOff + stripSize
		overflowOff := ifdOff + ifdSize

		encodeSamples(block[:stripSize], img.Data[pg*perPage:(pg+1)*perPage], img.Type)

		ifd := block[stripSize:]
		le.PutUint16(ifd, numEntries)
		e := ifd[2:]
		put := func(tag, typ uint16, count, value uint32) {
			le.PutUint16(e, tag)
			le.PutUint16(e[2:], typ)
			le.PutUint32(e[4:], count)
			le.PutUint32(e[8:], value)
			e = e[12:]
		}
		perSample := func(v int, off int) uint32 {
			switch samples {
			case 1:
				return uint32(v)
			case 2:
				return uint32(v) | uint32(v)<<16
			default:
				return uint32(off)
			}
		}

		put(tagImageWidth, typeLong, 1, uint32(img.Width))
		put(tagImageLength, typeLong, 1, uint32(img.Height))
		put(tagBitsPerSample, typeShort, uint32(samples), perSample(img.Type.Bits(), overflowOff))
		put(tagCompression, typeShort, 1, 1)
		put(tagPhotometric, typeShort, 1, 1)
		put(tagStripOffsets, typeLong, 1, uint32(dataOff))
		put(tagSamplesPerPixel, typeShort, 1, uint32(samples))
		put(tagRowsPerStrip, typeLong, 1, uint32(img.Height))
		put(tagStripByteCounts, typeLong, 1, uint32(stripSize))
		put(tagPlanarConfig, typeShort, 1, 1)
		put(tagSampleFormat, typeShort, uint32(samples), perSample(img.Type.format(), overflowOff+2*samples))

		next := uint32(0)
		if pg < pages-1 {
			next = uint32(8 + (pg+1)*pageBlock + stripSize)
		}
		le.PutUint32(ifd[2+numEntries*12:], next)

		if overflow > 0 {
			ov := block[stripSize+ifdSize:]
			for s := 0; s < samples; s++ {
				le.PutUint16(ov[s*2:], uint16(img.Type.Bits()))
				le.PutUint16(ov[2*samples+s*2:], uint16(img.Type.format()))
			}
		}

		if _, err := w.Write(block); err != nil {
			return err
		}
	}
	return nil
}

func encodeSamples(dst []byte, src []float64, t SampleType) {
	le := binary.LittleEndian
	switch t {
	case Uint8:
		for i, v := range src {
			dst[i] = uint8(v)
		}
	case Int8:
		for i, v := range src {
			dst[i] = uint8(int8(v))
		}
	case Uint16:
		for i, v := range src {
			le.PutUint16(dst[i*2:], uint16(v))
		}
	case Int16:
		for i, v := range src {
			le.PutUint16(dst[i*2:], uint16(int16(v)))
		}
	case Uint32:
		for i, v := range src {
			le.PutUint32(dst[i*4:], uint32(v))
		}
	case Int32:
		for i, v := range src {
			le.PutUint32(dst[i*4:], uint32(int32(v)))
		}
	case Float32:
		for i, v := range src {
			le.PutUint32(dst[i*4:], math.Float32bits(float32(v)))
		}
	case Float64:
		for i, v := range src {
			le.PutUint64(dst[i*8:], math.Float64bits(v))
		}
	}
}
