// Package config provides configuration loading and management for atlastransform.
// It handles loading configuration from YAML or TOML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"atlastransform/internal/apperr"
	"atlastransform/pkg/logging"
	"atlastransform/pkg/region"
	"atlastransform/pkg/table"
)

// Config represents the application configuration loaded from YAML or TOML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumWorkers is how many images are processed at the same time
		NumWorkers int `yaml:"numWorkers" toml:"numWorkers"`

		// IncludeBackground keeps label 0 as a region of its own
		IncludeBackground bool `yaml:"includeBackground" toml:"includeBackground"`

		// Strategy names the per-region reduction: "mean" or "errprop"
		Strategy string `yaml:"strategy" toml:"strategy"`
	} `yaml:"processing" toml:"processing"`

	// Atlas parameters
	Atlas struct {
		// DataDir holds the atlas assets; a local directory or gs:// prefix
		DataDir string `yaml:"dataDir" toml:"dataDir"`

		// SphereRadius is the radius in mm of coordinate-atlas spheres
		SphereRadius float64 `yaml:"sphereRadius" toml:"sphereRadius"`

		// SmoothingFWHM is the Gaussian kernel width in mm applied before
		// sphere extraction; 0 disables smoothing
		SmoothingFWHM float64 `yaml:"smoothingFWHM" toml:"smoothingFWHM"`
	} `yaml:"atlas" toml:"atlas"`

	// Output parameters
	Output struct {
		// Dir is where CSV files are written
		Dir string `yaml:"dir" toml:"dir"`

		// SeriesSuffix is "ts" or "_ts", appended to the atlas token for 4D input
		SeriesSuffix string `yaml:"seriesSuffix" toml:"seriesSuffix"`

		// WriteResampled also saves the atlas resampled to each subject grid
		WriteResampled bool `yaml:"writeResampled" toml:"writeResampled"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose" toml:"verbose"`
	} `yaml:"output" toml:"output"`

	// Log file settings
	Log logging.Config `yaml:"log" toml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.NumWorkers = runtime.NumCPU()
	cfg.Processing.IncludeBackground = false
	cfg.Processing.Strategy = region.MeanName

	// Set default atlas parameters
	cfg.Atlas.DataDir = "data"
	cfg.Atlas.SphereRadius = 5.0
	cfg.Atlas.SmoothingFWHM = 0

	// Set default output parameters
	cfg.Output.Dir = "."
	cfg.Output.SeriesSuffix = string(table.Joined)
	cfg.Output.WriteResampled = false
	cfg.Output.Verbose = false

	return cfg
}

func isTOML(configPath string) bool {
	return strings.EqualFold(filepath.Ext(configPath), ".toml")
}

// LoadConfig loads configuration from a YAML file, or a TOML file when the
// name ends in .toml. If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.Config, "config.LoadConfig", fmt.Errorf("error reading config file: %w", err))
	}

	if isTOML(configPath) {
		_, err = toml.Decode(string(data), cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Config, "config.LoadConfig", fmt.Errorf("error parsing config file %s: %w", configPath, err))
	}

	return cfg, nil
}

// Validate checks every setting that can be checked without touching files
func (c *Config) Validate() error {
	const op = "config.Validate"

	if c.Processing.NumWorkers < 1 {
		return apperr.New(apperr.Config, op, "processing.numWorkers must be at least 1, got %d", c.Processing.NumWorkers)
	}
	if _, err := region.GetStrategy(c.Processing.Strategy); err != nil {
		return err
	}
	if c.Atlas.DataDir == "" {
		return apperr.New(apperr.Config, op, "atlas.dataDir must be set")
	}
	if c.Atlas.SphereRadius <= 0 {
		return apperr.New(apperr.Config, op, "atlas.sphereRadius must be positive, got %g", c.Atlas.SphereRadius)
	}
	if c.Atlas.SmoothingFWHM < 0 {
		return apperr.New(apperr.Config, op, "atlas.smoothingFWHM must not be negative, got %g", c.Atlas.SmoothingFWHM)
	}
	if _, err := table.ParseSeriesStyle(c.Output.SeriesSuffix); err != nil {
		return err
	}

	return nil
}

// SaveConfig saves the configuration to a YAML or TOML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	defer f.Close()

	if isTOML(configPath) {
		err = toml.NewEncoder(f).Encode(cfg)
	} else {
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		err = enc.Encode(cfg)
		if err == nil {
			err = enc.Close()
		}
	}
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	return f.Close()
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
