// Package export renders tiles of a tiled raster as 2-D image files, for
// inspection of a tiling plan and of the normalization bounds applied to
// it. Tiles are written as 16-bit grayscale PNG or TIFF images.
package export

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	xtiff "golang.org/x/image/tiff"

	"rastertile/pkg/raster"
	"rastertile/pkg/tiling"
)

// Format selects the encoding of saved tile images.
type Format int

const (
	PNG Format = iota
	TIFF
)

// ParseFormat maps a format name ("png", "tif", "tiff") to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "png":
		return PNG, nil
	case "tif", "tiff":
		return TIFF, nil
	}
	return 0, fmt.Errorf("unknown image format %q", s)
}

// Ext returns the file extension for the format, including the dot.
func (f Format) Ext() string {
	if f == TIFF {
		return ".tif"
	}
	return ".png"
}

// TileImage renders the plane of arr spanned by rowAxis and colAxis as a
// 16-bit grayscale image, taking index 0 along every other axis. Values
// are expected in [0, 1] (normalize first); anything outside is clamped
// to the representable range.
func TileImage(arr *raster.Array, rowAxis, colAxis int) (image.Image, error) {
	rank := len(arr.Shape)
	if rowAxis < 0 || rowAxis >= rank || colAxis < 0 || colAxis >= rank {
		return nil, fmt.Errorf("plane axes (%d, %d) out of range for rank %d", rowAxis, colAxis, rank)
	}
	if rowAxis == colAxis {
		return nil, fmt.Errorf("plane axes must differ, got %d twice", rowAxis)
	}

	strides := arr.Strides()
	height := arr.Shape[rowAxis]
	width := arr.Shape[colAxis]

	img := image.NewGray16(image.Rect(0, 0, width, height))
	for r := 0; r < height; r++ {
		for c := 0; c < width; c++ {
			idx := r*strides[rowAxis] + c*strides[colAxis]
			value := uint16(math.Max(0, math.Min(65535, arr.Data[idx]*65535)))
			img.SetGray16(c, r, color.Gray16{Y: value})
		}
	}
	return img, nil
}

// SaveTile renders and writes a single tile image.
func SaveTile(arr *raster.Array, rowAxis, colAxis int, format Format, filename string) error {
	img, err := TileImage(arr, rowAxis, colAxis)
	if err != nil {
		return err
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	switch format {
	case TIFF:
		return xtiff.Encode(file, img, &xtiff.Options{Compression: xtiff.Uncompressed})
	default:
		return png.Encode(file, img)
	}
}

// planeAxes picks the two axes spanning the exported image plane: the
// first two tiled axes, or the single tiled axis paired with the last
// untiled one.
func planeAxes(t *tiling.Tiler) (int, int, error) {
	axes := t.TileAxes
	if len(axes) >= 2 {
		return axes[0], axes[1], nil
	}
	rank := len(t.Shape())
	for other := rank - 1; other >= 0; other-- {
		if other != axes[0] {
			return axes[0], other, nil
		}
	}
	return 0, 0, fmt.Errorf("rank-%d raster has no second axis to span an image plane", rank)
}

// SaveAll normalizes every tile of t and writes it into dir as
// tile_NNNN with the format's extension. The tile plane is spanned by
// the tiled axes; higher axes are collapsed to their first index.
func SaveAll(t *tiling.Tiler, format Format, dir string, trim bool) error {
	rowAxis, colAxis, err := planeAxes(t)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	it := t.Tiles()
	for it.Next() {
		tile := it.Tile()
		if err := t.Normalize(tile, trim); err != nil {
			return fmt.Errorf("normalizing tile %d: %w", it.Index(), err)
		}
		filename := filepath.Join(dir, fmt.Sprintf("tile_%04d%s", it.Index(), format.Ext()))
		if err := SaveTile(tile, rowAxis, colAxis, format, filename); err != nil {
			return fmt.Errorf("saving tile %d: %w", it.Index(), err)
		}
	}
	return it.Err()
}
