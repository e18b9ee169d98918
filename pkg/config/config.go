// Package config provides configuration loading and management for
// rastertile. It handles loading configuration from YAML files and
// provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Tiling parameters
	Tiling struct {
		// TileAxes lists the axes to tile over; negative values count
		// from the last axis
		TileAxes []int `yaml:"tileAxes"`

		// ChannelAxis designates the channel axis used for per-channel
		// normalization; omit for global normalization
		ChannelAxis *int `yaml:"channelAxis"`

		// PixelMax is the maximum number of elements per tile before
		// overlap expansion
		PixelMax float64 `yaml:"pixelMax"`

		// Overlap is the fractional area expansion applied jointly
		// across the tiled axes
		Overlap float64 `yaml:"overlap"`

		// ScaleQuantile is the symmetric quantile used for the
		// normalization bounds
		ScaleQuantile float64 `yaml:"scaleQuantile"`
	} `yaml:"tiling"`

	// Export parameters
	Export struct {
		// Format is the image format for exported tiles ("png" or "tiff")
		Format string `yaml:"format"`

		// OutputDir is the directory exported tiles are written to
		OutputDir string `yaml:"outputDir"`

		// Trim clamps normalized values into [0,1] before export
		Trim bool `yaml:"trim"`
	} `yaml:"export"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default tiling parameters
	cfg.Tiling.TileAxes = []int{-2, -1}
	cfg.Tiling.ChannelAxis = nil
	cfg.Tiling.PixelMax = 16e6
	cfg.Tiling.Overlap = 0.0
	cfg.Tiling.ScaleQuantile = 0.005

	// Set default export parameters
	cfg.Export.Format = "png"
	cfg.Export.OutputDir = "tiles"
	cfg.Export.Trim = true

	// Set default output parameters
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
