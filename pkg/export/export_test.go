package export

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	xtiff "golang.org/x/image/tiff"

	"rastertile/internal/tiff"
	"rastertile/pkg/raster"
	"rastertile/pkg/tiling"
)

// newTiler builds a file-backed tiler over a 16x16 ramp that splits 2x2.
func newTiler(t *testing.T) *tiling.Tiler {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ramp.tif")
	data := make([]float64, 256)
	for i := range data {
		data[i] = float64(i)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := tiff.Encode(f, &tiff.Image{Height: 16, Width: 16, Type: tiff.Uint16, Data: data}); err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}
	f.Close()

	h, err := raster.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	tl, err := tiling.New(h, tiling.Options{TileAxes: []int{0, 1}, PixelMax: 64})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return tl
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"png": PNG, "PNG": PNG, "tif": TIFF, "tiff": TIFF}
	for name, want := range cases {
		got, err := ParseFormat(name)
		if err != nil {
			t.Errorf("ParseFormat(%q) failed: %v", name, err)
			continue
		}
		if got != want {
			t.Errorf("ParseFormat(%q) = %v, want %v", name, got, want)
		}
	}
	if _, err := ParseFormat("bmp"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestTileImage(t *testing.T) {
	arr := &raster.Array{Shape: []int{2, 3, 4}, Data: make([]float64, 24)}
	arr.Data[1*4+2] = 1 // plane 0, row 1, col 2

	img, err := TileImage(arr, 1, 2)
	if err != nil {
		t.Fatalf("TileImage failed: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 4 || b.Dy() != 3 {
		t.Fatalf("image is %dx%d, want 4x3", b.Dx(), b.Dy())
	}
	if r, _, _, _ := img.At(2, 1).RGBA(); r != 65535 {
		t.Errorf("pixel (2,1) = %d, want 65535", r)
	}
	if r, _, _, _ := img.At(0, 0).RGBA(); r != 0 {
		t.Errorf("pixel (0,0) = %d, want 0", r)
	}
}

func TestTileImageErrors(t *testing.T) {
	arr := &raster.Array{Shape: []int{3, 4}, Data: make([]float64, 12)}
	if _, err := TileImage(arr, 0, 0); err == nil {
		t.Error("expected error for identical axes")
	}
	if _, err := TileImage(arr, 0, 5); err == nil {
		t.Error("expected error for out-of-range axis")
	}
}

func TestSaveAllPNG(t *testing.T) {
	tl := newTiler(t)
	dir := filepath.Join(t.TempDir(), "tiles")

	if err := SaveAll(tl, PNG, dir, true); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}

	for i := 0; i < tl.Count(); i++ {
		name := filepath.Join(dir, fmt.Sprintf("tile_%04d.png", i))
		f, err := os.Open(name)
		if err != nil {
			t.Fatalf("missing exported tile: %v", err)
		}
		img, err := png.Decode(f)
		f.Close()
		if err != nil {
			t.Fatalf("decoding %s: %v", name, err)
		}

		off, err := tl.Offset(i)
		if err != nil {
			t.Fatal(err)
		}
		wantW := off[1].Stop - off[1].Start
		wantH := off[0].Stop - off[0].Start
		if b := img.Bounds(); b.Dx() != wantW || b.Dy() != wantH {
			t.Errorf("tile %d image is %dx%d, want %dx%d", i, b.Dx(), b.Dy(), wantW, wantH)
		}
	}
}

func TestSaveTileTIFF(t *testing.T) {
	tl := newTiler(t)
	tile, err := tl.Tile(0)
	if err != nil {
		t.Fatalf("Tile failed: %v", err)
	}
	if err := tl.Normalize(tile, true); err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "tile.tif")
	if err := SaveTile(tile, 0, 1, TIFF, path); err != nil {
		t.Fatalf("SaveTile failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := xtiff.Decode(f)
	if err != nil {
		t.Fatalf("decoding exported TIFF: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 8 {
		t.Errorf("image is %dx%d, want 8x8", b.Dx(), b.Dy())
	}
}
