// Package tiff implements a minimal reader and writer for baseline TIFF
// containers, restricted to the subset needed for random region access:
// uncompressed, chunky (PlanarConfiguration=1), strip-organized images with
// integer or floating point samples. Multi-page files are exposed as an
// extra leading axis, and multi-sample pixels as an extra trailing axis, so
// a file maps onto an N-dimensional array of up to rank 4:
// (page, row, column, sample).
//
// The point of the restriction is that every supported layout admits a
// closed-form byte offset for any element, which is what allows region
// reads proportional to the region rather than to the file.
package tiff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Common errors
var (
	ErrNotTIFF     = errors.New("not a TIFF file")
	ErrUnsupported = errors.New("unsupported TIFF feature")
	ErrCorrupt     = errors.New("corrupt TIFF structure")
)

// TIFF tag numbers used by this package.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagSampleFormat    = 339
)

// IFD entry field types.
const (
	typeByte  = 1
	typeShort = 3
	typeLong  = 4
)

// maxPages bounds the IFD chain walk so that a cyclic next-IFD pointer
// cannot loop forever.
const maxPages = 1 << 16

// SampleType identifies the per-element encoding of pixel data.
type SampleType int

const (
	Uint8 SampleType = iota
	Uint16
	Uint32
	Int8
	Int16
	Int32
	Float32
	Float64
)

// Bits returns the number of bits per sample for the type.
func (t SampleType) Bits() int {
	switch t {
	case Uint8, Int8:
		return 8
	case Uint16, Int16:
		return 16
	case Uint32, Int32, Float32:
		return 32
	case Float64:
		return 64
	}
	return 0
}

// format returns the TIFF SampleFormat value (1=uint, 2=int, 3=float).
func (t SampleType) format() int {
	switch t {
	case Uint8, Uint16, Uint32:
		return 1
	case Int8, Int16, Int32:
		return 2
	default:
		return 3
	}
}

func sampleTypeOf(bits, format int) (SampleType, error) {
	switch format {
	case 1:
		switch bits {
		case 8:
			return Uint8, nil
		case 16:
			return Uint16, nil
		case 32:
			return Uint32, nil
		}
	case 2:
		switch bits {
		case 8:
			return Int8, nil
		case 16:
			return Int16, nil
		case 32:
			return Int32, nil
		}
	case 3:
		switch bits {
		case 32:
			return Float32, nil
		case 64:
			return Float64, nil
		}
	}
	return 0, fmt.Errorf("%w: %d-bit samples with format %d", ErrUnsupported, bits, format)
}

// page holds the decoded layout of a single IFD.
type page struct {
	width, height   int
	samples         int
	sampleType      SampleType
	rowsPerStrip    int
	stripOffsets    []int64
	stripByteCounts []int64
}

// File is a parsed TIFF container backed by an io.ReaderAt. It holds only
// layout metadata; pixel bytes are fetched on demand by ReadRegion.
type File struct {
	r     io.ReaderAt
	order binary.ByteOrder
	pages []page
}

// Parse reads the header and all IFDs from r. The reader is retained for
// later region reads and must stay valid for the lifetime of the File.
func Parse(r io.ReaderAt) (*File, error) {
	var hdr [8]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrNotTIFF, err)
	}

	var order binary.ByteOrder
	switch {
	case hdr[0] == 'I' && hdr[1] == 'I':
		order = binary.LittleEndian
	case hdr[0] == 'M' && hdr[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad byte-order mark %q", ErrNotTIFF, hdr[0:2])
	}

	switch magic := order.Uint16(hdr[2:4]); magic {
	case 42:
		// classic TIFF
	case 43:
		return nil, fmt.Errorf("%w: BigTIFF", ErrUnsupported)
	default:
		return nil, fmt.Errorf("%w: bad magic %d", ErrNotTIFF, magic)
	}

	f := &File{r: r, order: order}
	next := int64(order.Uint32(hdr[4:8]))
	for next != 0 {
		if len(f.pages) >= maxPages {
			return nil, fmt.Errorf("%w: IFD chain exceeds %d pages", ErrCorrupt, maxPages)
		}
		p, n, err := f.parseIFD(next)
		if err != nil {
			return nil, err
		}
		f.pages = append(f.pages, p)
		next = n
	}
	if len(f.pages) == 0 {
		return nil, fmt.Errorf("%w: no IFDs", ErrCorrupt)
	}

	// A multi-page file only maps onto a regular array if every page has
	// the same layout.
	first := f.pages[0]
	for i, p := range f.pages[1:] {
		if p.width != first.width || p.height != first.height ||
			p.samples != first.samples || p.sampleType != first.sampleType {
			return nil, fmt.Errorf("%w: page %d layout differs from page 0", ErrUnsupported, i+1)
		}
	}
	return f, nil
}

// ifdEntry is a raw 12-byte IFD entry.
type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	value [4]byte
}

func (f *File) parseIFD(off int64) (page, int64, error) {
	var cntBuf [2]byte
	if _, err := f.r.ReadAt(cntBuf[:], off); err != nil {
		return page{}, 0, fmt.Errorf("%w: reading IFD at %d: %v", ErrCorrupt, off, err)
	}
	count := int(f.order.Uint16(cntBuf[:]))

	raw := make([]byte, count*12+4)
	if _, err := f.r.ReadAt(raw, off+2); err != nil {
		return page{}, 0, fmt.Errorf("%w: reading %d IFD entries at %d: %v", ErrCorrupt, count, off, err)
	}

	p := page{
		samples:      1,
		rowsPerStrip: 0,
	}
	bits := []uint64{1}
	format := []uint64{1}
	compression := uint64(1)
	planar := uint64(1)

	for i := 0; i < count; i++ {
		e := ifdEntry{
			tag:   f.order.Uint16(raw[i*12:]),
			typ:   f.order.Uint16(raw[i*12+2:]),
			count: f.order.Uint32(raw[i*12+4:]),
		}
		copy(e.value[:], raw[i*12+8:i*12+12])

		switch e.tag {
		case tagImageWidth, tagImageLength, tagCompression, tagSamplesPerPixel,
			tagRowsPerStrip, tagPlanarConfig:
			v, err := f.entryUints(e)
			if err != nil {
				return page{}, 0, err
			}
			if len(v) != 1 {
				return page{}, 0, fmt.Errorf("%w: tag %d has count %d", ErrCorrupt, e.tag, e.count)
			}
			switch e.tag {
			case tagImageWidth:
				p.width = int(v[0])
			case tagImageLength:
				p.height = int(v[0])
			case tagCompression:
				compression = v[0]
			case tagSamplesPerPixel:
				p.samples = int(v[0])
			case tagRowsPerStrip:
				p.rowsPerStrip = int(v[0])
			case tagPlanarConfig:
				planar = v[0]
			}
		case tagBitsPerSample:
			v, err := f.entryUints(e)
			if err != nil {
				return page{}, 0, err
			}
			bits = v
		case tagSampleFormat:
			v, err := f.entryUints(e)
			if err != nil {
				return page{}, 0, err
			}
			format = v
		case tagStripOffsets:
			v, err := f.entryUints(e)
			if err != nil {
				return page{}, 0, err
			}
			p.stripOffsets = toInt64(v)
		case tagStripByteCounts:
			v, err := f.entryUints(e)
			if err != nil {
				return page{}, 0, err
			}
			p.stripByteCounts = toInt64(v)
		default:
			// Tags outside the supported subset (photometric, resolution,
			// descriptions...) do not affect element addressing.
		}
	}

	if compression != 1 {
		return page{}, 0, fmt.Errorf("%w: compression %d", ErrUnsupported, compression)
	}
	if planar != 1 {
		return page{}, 0, fmt.Errorf("%w: planar configuration %d", ErrUnsupported, planar)
	}
	if p.width <= 0 || p.height <= 0 {
		return page{}, 0, fmt.Errorf("%w: missing or zero image dimensions", ErrCorrupt)
	}
	if len(p.stripOffsets) == 0 {
		return page{}, 0, fmt.Errorf("%w: missing strip offsets", ErrCorrupt)
	}
	if p.samples < 1 {
		return page{}, 0, fmt.Errorf("%w: SamplesPerPixel %d", ErrCorrupt, p.samples)
	}

	// BitsPerSample and SampleFormat must agree across all samples of a
	// pixel; mixed-type pixels cannot map onto a single-dtype array.
	for _, b := range bits[1:] {
		if b != bits[0] {
			return page{}, 0, fmt.Errorf("%w: mixed bits per sample", ErrUnsupported)
		}
	}
	for _, fm := range format[1:] {
		if fm != format[0] {
			return page{}, 0, fmt.Errorf("%w: mixed sample formats", ErrUnsupported)
		}
	}
	st, err := sampleTypeOf(int(bits[0]), int(format[0]))
	if err != nil {
		return page{}, 0, err
	}
	p.sampleType = st

	if p.rowsPerStrip <= 0 || p.rowsPerStrip > p.height {
		p.rowsPerStrip = p.height
	}
	wantStrips := (p.height + p.rowsPerStrip - 1) / p.rowsPerStrip
	if len(p.stripOffsets) != wantStrips {
		return page{}, 0, fmt.Errorf("%w: %d strips for %d rows at %d rows/strip",
			ErrCorrupt, len(p.stripOffsets), p.height, p.rowsPerStrip)
	}

	next := int64(f.order.Uint32(raw[count*12:]))
	return p, next, nil
}

// entryUints decodes an entry's values as unsigned integers, following the
// inline-or-offset rule for the 4-byte value field.
func (f *File) entryUints(e ifdEntry) ([]uint64, error) {
	var size int
	switch e.typ {
	case typeByte:
		size = 1
	case typeShort:
		size = 2
	case typeLong:
		size = 4
	default:
		return nil, fmt.Errorf("%w: tag %d has field type %d", ErrUnsupported, e.tag, e.typ)
	}

	total := size * int(e.count)
	var raw []byte
	if total <= 4 {
		raw = e.value[:total]
	} else {
		raw = make([]byte, total)
		off := int64(f.order.Uint32(e.value[:]))
		if _, err := f.r.ReadAt(raw, off); err != nil {
			return nil, fmt.Errorf("%w: reading tag %d values at %d: %v", ErrCorrupt, e.tag, off, err)
		}
	}

	out := make([]uint64, e.count)
	for i := range out {
		switch size {
		case 1:
			out[i] = uint64(raw[i])
		case 2:
			out[i] = uint64(f.order.Uint16(raw[i*2:]))
		case 4:
			out[i] = uint64(f.order.Uint32(raw[i*4:]))
		}
	}
	return out, nil
}

func toInt64(v []uint64) []int64 {
	out := make([]int64, len(v))
	for i, x := range v {
		out[i] = int64(x)
	}
	return out
}

// Shape returns the array dimensions the file maps onto. Pages beyond the
// first contribute a leading axis; samples beyond the first a trailing one.
func (f *File) Shape() []int {
	p := f.pages[0]
	dims := []int{p.height, p.width}
	if p.samples > 1 {
		dims = append(dims, p.samples)
	}
	if len(f.pages) > 1 {
		dims = append([]int{len(f.pages)}, dims...)
	}
	return dims
}

// SampleType returns the element encoding shared by all pages.
func (f *File) SampleType() SampleType {
	return f.pages[0].sampleType
}

// ReadRegion reads the hyper-rectangular, optionally strided region
// [start[i], stop[i]) step[i] on each axis of Shape, decoding samples to
// float64 in row-major order. A step below 1 means 1. Only the bytes of
// the addressed rows are read.
func (f *File) ReadRegion(start, stop, step []int) ([]float64, []int, error) {
	shape := f.Shape()
	if len(start) != len(shape) || len(stop) != len(shape) || len(step) != len(shape) {
		return nil, nil, fmt.Errorf("region rank %d does not match file rank %d", len(start), len(shape))
	}

	outShape := make([]int, len(shape))
	total := 1
	for i := range shape {
		st := step[i]
		if st < 1 {
			st = 1
		}
		if start[i] < 0 || stop[i] < start[i] || stop[i] > shape[i] {
			return nil, nil, fmt.Errorf("region [%d,%d) out of bounds for axis %d of extent %d",
				start[i], stop[i], i, shape[i])
		}
		outShape[i] = (stop[i] - start[i] + st - 1) / st
		total *= outShape[i]
	}

	// Axis positions within shape.
	p := f.pages[0]
	axPage, axSample := -1, -1
	axRow, axCol := 0, 1
	if len(f.pages) > 1 {
		axPage, axRow, axCol = 0, 1, 2
	}
	if p.samples > 1 {
		axSample = axCol + 1
	}

	get := func(ax, def int) (lo, hi, st int) {
		if ax < 0 {
			return 0, def, 1
		}
		st = step[ax]
		if st < 1 {
			st = 1
		}
		return start[ax], stop[ax], st
	}
	pg0, pg1, pgStep := get(axPage, 1)
	r0, r1, rStep := get(axRow, 0)
	c0, c1, cStep := get(axCol, 0)
	s0, s1, sStep := get(axSample, 1)

	out := make([]float64, 0, total)
	if total == 0 {
		return out, outShape, nil
	}

	bytesPer := p.sampleType.Bits() / 8
	rowBytes := p.width * p.samples * bytesPer
	buf := make([]byte, (c1-c0)*p.samples*bytesPer)

	for pg := pg0; pg < pg1; pg += pgStep {
		pp := f.pages[pg]
		for r := r0; r < r1; r += rStep {
			strip := r / pp.rowsPerStrip
			off := pp.stripOffsets[strip] +
				int64((r-strip*pp.rowsPerStrip)*rowBytes) +
				int64(c0*pp.samples*bytesPer)
			if _, err := f.r.ReadAt(buf, off); err != nil {
				return nil, nil, fmt.Errorf("reading page %d row %d: %w", pg, r, err)
			}
			for c := c0; c < c1; c += cStep {
				base := (c - c0) * pp.samples * bytesPer
				for s := s0; s < s1; s += sStep {
					out = append(out, f.decode(buf[base+s*bytesPer:]))
				}
			}
		}
	}
	return out, outShape, nil
}

func (f *File) decode(b []byte) float64 {
	p := f.pages[0]
	switch p.sampleType {
	case Uint8:
		return float64(b[0])
	case Int8:
		return float64(int8(b[0]))
	case Uint16:
		return float64(f.order.Uint16(b))
	case Int16:
		return float64(int16(f.order.Uint16(b)))
	case Uint32:
		return float64(f.order.Uint32(b))
	case Int32:
		return float64(int32(f.order.Uint32(b)))
	case Float32:
		return float64(math.Float32frombits(f.order.Uint32(b)))
	case Float64:
		return math.Float64frombits(f.order.Uint64(b))
	}
	return 0
}
