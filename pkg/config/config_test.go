package config

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if diff := cmp.Diff([]int{-2, -1}, cfg.Tiling.TileAxes); diff != "" {
		t.Errorf("default tile axes mismatch (-want +got):\n%s", diff)
	}
	if cfg.Tiling.ChannelAxis != nil {
		t.Errorf("default channel axis = %v, want none", *cfg.Tiling.ChannelAxis)
	}
	if cfg.Tiling.PixelMax != 16e6 {
		t.Errorf("default pixelMax = %v, want 16e6", cfg.Tiling.PixelMax)
	}
	if cfg.Tiling.ScaleQuantile != 0.005 {
		t.Errorf("default scaleQuantile = %v, want 0.005", cfg.Tiling.ScaleQuantile)
	}
	if cfg.Export.Format != "png" {
		t.Errorf("default export format = %q, want png", cfg.Export.Format)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("missing file should yield defaults (-want +got):\n%s", diff)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "rastertile.yaml")

	cfg := DefaultConfig()
	cfg.Tiling.TileAxes = []int{1, 2}
	ch := 0
	cfg.Tiling.ChannelAxis = &ch
	cfg.Tiling.PixelMax = 250000
	cfg.Tiling.Overlap = 0.25
	cfg.Export.Format = "tiff"
	cfg.Export.Trim = false

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("CreateDefaultConfigFile failed: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), loaded); diff != "" {
		t.Errorf("default file mismatch (-want +got):\n%s", diff)
	}
}
