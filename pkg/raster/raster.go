// Package raster opens N-dimensional raster files as randomly-sliceable
// arrays without loading them whole. A Handle retains only the file path
// and the array shape; every region read memory-maps the file, reads the
// requested bytes, and unmaps again, so no file descriptor outlives a call
// and peak memory is proportional to the region read, not to the file.
package raster

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/mmap"

	"rastertile/internal/tiff"
)

// Common errors
var (
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrNotFile         = errors.New("not a regular file")
)

// Range selects [Start, Stop) with the given step along one axis. A Step
// below 1 means 1.
type Range struct {
	Start int
	Stop  int
	Step  int
}

// Len returns the number of indices the range selects.
func (r Range) Len() int {
	step := r.Step
	if step < 1 {
		step = 1
	}
	if r.Stop <= r.Start {
		return 0
	}
	return (r.Stop - r.Start + step - 1) / step
}

// Full returns a range covering [0, n) contiguously.
func Full(n int) Range {
	return Range{Start: 0, Stop: n, Step: 1}
}

// Handle is a reference to a raster file on disk. It is safe for
// concurrent readers: no state is mutated after Open.
type Handle struct {
	path  string
	shape []int
}

// Open validates path and determines the raster's shape. The file must
// exist, be a regular file, and carry a recognized raster extension
// (.tif or .tiff). The file is opened only long enough to parse its
// layout; the returned Handle holds no descriptor.
func Open(path string) (*Handle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("opening raster: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("opening raster %s: %w", path, ErrNotFile)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
	default:
		return nil, fmt.Errorf("opening raster %s: %w", path, ErrUnsupportedFile)
	}

	h := &Handle{path: path}
	if err := h.withFile(func(f *tiff.File) error {
		h.shape = f.Shape()
		return nil
	}); err != nil {
		return nil, err
	}
	return h, nil
}

// withFile maps the backing file, parses its layout, runs fn, and unmaps.
func (h *Handle) withFile(fn func(*tiff.File) error) error {
	r, err := mmap.Open(h.path)
	if err != nil {
		return fmt.Errorf("mapping %s: %w", h.path, err)
	}
	defer r.Close()

	f, err := tiff.Parse(r)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", h.path, err)
	}
	return fn(f)
}

// Path returns the backing file path.
func (h *Handle) Path() string {
	return h.path
}

// Shape returns the array dimensions, one extent per axis.
func (h *Handle) Shape() []int {
	out := make([]int, len(h.shape))
	copy(out, h.shape)
	return out
}

// ReadRegion reads the axis-aligned region selected by one Range per axis
// and returns it as an owned in-memory array. The file is mapped for the
// duration of this call only.
func (h *Handle) ReadRegion(region []Range) (*Array, error) {
	if len(region) != len(h.shape) {
		return nil, fmt.Errorf("region rank %d does not match raster rank %d", len(region), len(h.shape))
	}
	start := make([]int, len(region))
	stop := make([]int, len(region))
	step := make([]int, len(region))
	for i, r := range region {
		start[i], stop[i], step[i] = r.Start, r.Stop, r.Step
	}

	var arr *Array
	err := h.withFile(func(f *tiff.File) error {
		data, shape, err := f.ReadRegion(start, stop, step)
		if err != nil {
			return err
		}
		arr = &Array{Shape: shape, Data: data}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading region from %s: %w", h.path, err)
	}
	return arr, nil
}

// ReadAll reads the entire raster. Intended for small files and tests;
// tile-based access should go through ReadRegion.
func (h *Handle) ReadAll() (*Array, error) {
	region := make([]Range, len(h.shape))
	for i, n := range h.shape {
		region[i] = Full(n)
	}
	return h.ReadRegion(region)
}
