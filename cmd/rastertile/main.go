package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"rastertile/pkg/config"
	"rastertile/pkg/export"
	"rastertile/pkg/raster"
	"rastertile/pkg/tiling"
)

func main() {
	// Parse command line arguments
	inputFile := flag.String("input", "", "Raster file to tile (.tif/.tiff)")
	configPath := flag.String("config", "rastertile.yaml", "Optional YAML configuration file")
	tileAxes := flag.String("tile-axes", "", "Comma-separated axes to tile over, e.g. -2,-1")
	channelAxis := flag.String("channel-axis", "", "Channel axis for per-channel normalization (empty: none)")
	pixelMax := flag.Float64("pixel-max", 0, "Maximum elements per tile before overlap expansion")
	overlap := flag.Float64("overlap", -1, "Fractional area overlap between neighboring tiles")
	quantile := flag.Float64("quantile", -1, "Symmetric quantile for normalization bounds, in [0, 0.5)")
	doExport := flag.Bool("export", false, "Export all tiles as images")
	outDir := flag.String("out-dir", "", "Directory for exported tiles")
	format := flag.String("format", "", "Exported image format: png or tiff")
	flag.Parse()

	// Validate inputs
	if *inputFile == "" {
		flag.Usage()
		os.Exit(1)
	}

	// Load configuration, then let explicit flags override it
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *tileAxes != "" {
		axes, err := parseAxes(*tileAxes)
		if err != nil {
			log.Fatalf("Invalid -tile-axes: %v", err)
		}
		cfg.Tiling.TileAxes = axes
	}
	if *channelAxis != "" {
		ch, err := strconv.Atoi(*channelAxis)
		if err != nil {
			log.Fatalf("Invalid -channel-axis: %v", err)
		}
		cfg.Tiling.ChannelAxis = &ch
	}
	if *pixelMax > 0 {
		cfg.Tiling.PixelMax = *pixelMax
	}
	if *overlap >= 0 {
		cfg.Tiling.Overlap = *overlap
	}
	if *quantile >= 0 {
		cfg.Tiling.ScaleQuantile = *quantile
	}
	if *outDir != "" {
		cfg.Export.OutputDir = *outDir
	}
	if *format != "" {
		cfg.Export.Format = *format
	}

	// Open the raster and build the tiling plan
	handle, err := raster.Open(*inputFile)
	if err != nil {
		log.Fatalf("Failed to open raster: %v", err)
	}

	tiler, err := tiling.New(handle, tiling.Options{
		TileAxes:      cfg.Tiling.TileAxes,
		ChannelAxis:   cfg.Tiling.ChannelAxis,
		PixelMax:      cfg.Tiling.PixelMax,
		Overlap:       cfg.Tiling.Overlap,
		ScaleQuantile: tiling.Quantile(cfg.Tiling.ScaleQuantile),
	})
	if err != nil {
		log.Fatalf("Failed to compute tiling plan: %v", err)
	}

	fmt.Println("================================")
	fmt.Printf("Raster: %s\n", handle.Path())
	fmt.Printf("Shape:  %v\n", handle.Shape())
	fmt.Println("================================")
	fmt.Printf("Tile axes:    %v\n", tiler.TileAxes)
	fmt.Printf("Pixel budget: %.0f (overlap %.2f)\n", tiler.PixelMax, tiler.Overlap)
	fmt.Printf("Split factor: %d\n", tiler.SplitFactor())
	fmt.Printf("Tile count:   %d\n", tiler.Count())

	if cfg.Output.Verbose {
		fmt.Println("\nTile offsets:")
		it := tiler.Offsets()
		for it.Next() {
			fmt.Printf("  tile %4d: %s\n", it.Index(), formatOffset(it.Offset()))
		}
		if err := it.Err(); err != nil {
			log.Fatalf("Failed to enumerate offsets: %v", err)
		}

		bounds := tiler.Bounds()
		if bounds.PerChannel {
			fmt.Println("\nNormalization bounds per channel:")
			for ch := range bounds.Min {
				fmt.Printf("  channel %d: [%g, %g]\n", ch, bounds.Min[ch], bounds.Max[ch])
			}
		} else {
			fmt.Printf("\nNormalization bounds: [%g, %g]\n", bounds.Min[0], bounds.Max[0])
		}
	}

	// Export tiles if requested
	if *doExport {
		f, err := export.ParseFormat(cfg.Export.Format)
		if err != nil {
			log.Fatalf("Invalid export format: %v", err)
		}
		fmt.Printf("\nExporting %d tiles to %s...\n", tiler.Count(), cfg.Export.OutputDir)
		if err := export.SaveAll(tiler, f, cfg.Export.OutputDir, cfg.Export.Trim); err != nil {
			log.Fatalf("Export failed: %v", err)
		}
		fmt.Println("Export completed!")
	}
}

// parseAxes parses a comma-separated list of signed axis indices.
func parseAxes(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	axes := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("bad axis %q: %w", p, err)
		}
		axes = append(axes, v)
	}
	return axes, nil
}

// formatOffset renders a slice specification as [start:stop, ...].
func formatOffset(spec []raster.Range) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, r := range spec {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d:%d", r.Start, r.Stop)
	}
	b.WriteByte(']')
	return b.String()
}
