// Package config loads the analysis configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"cytosort/pkg/errdefs"

	"gopkg.in/yaml.v3"
)

// Config holds the full analysis configuration.
type Config struct {
	Extraction   ExtractionConfig   `yaml:"extraction"`
	Clustering   ClusteringConfig   `yaml:"clustering"`
	Segmentation SegmentationConfig `yaml:"segmentation"`
	Workers      int                `yaml:"workers"` // 0 = number of CPUs
	Logging      LoggingConfig      `yaml:"logging"`
}

// ExtractionConfig holds embedding model settings.
type ExtractionConfig struct {
	Model      string       `yaml:"model"`
	WeightsDir string       `yaml:"weights_dir"`
	Target     string       `yaml:"target"` // cpu (default) or cuda
	Models     []ModelEntry `yaml:"models"` // extra registry entries
}

// ModelEntry registers an additional embedding model.
type ModelEntry struct {
	Name      string `yaml:"name"`
	Weights   string `yaml:"weights"`
	Dim       int    `yaml:"dim"`
	InputSize int    `yaml:"input_size"` // 0 = default for the model family
}

// ClusteringConfig holds k-means hyperparameters.
type ClusteringConfig struct {
	K             int     `yaml:"k"`
	MaxIterations int     `yaml:"max_iterations"`
	Restarts      int     `yaml:"restarts"`
	AutoK         bool    `yaml:"auto_k"`
	MaxK          int     `yaml:"max_k"`
	Variance      float64 `yaml:"variance"` // PCA variance fraction to retain
}

// SegmentationConfig holds the default segmentation method and parameters.
type SegmentationConfig struct {
	Method       string  `yaml:"method"`
	Param1       float64 `yaml:"param1"`
	Param2       float64 `yaml:"param2"`
	MinAreaRatio float64 `yaml:"min_area_ratio"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Extraction: ExtractionConfig{
			Model:      "dinov2s",
			WeightsDir: "resources",
			Target:     "cpu",
		},
		Clustering: ClusteringConfig{
			K:             10,
			MaxIterations: 300,
			Restarts:      5,
			MaxK:          20,
			Variance:      0.95,
		},
		Segmentation: SegmentationConfig{
			Method:       "otsu",
			Param1:       0.3,
			Param2:       10,
			MinAreaRatio: 0.05,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a YAML configuration file, filling unset fields from the
// defaults, and validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges on the loaded values.
func (c Config) Validate() error {
	if c.Extraction.Model == "" {
		return errdefs.NewConfigError("extraction.model", "model name is required")
	}
	if c.Clustering.K < 1 {
		return errdefs.NewConfigError("clustering.k", fmt.Sprintf("must be positive, got %d", c.Clustering.K))
	}
	if c.Clustering.MaxIterations < 1 {
		return errdefs.NewConfigError("clustering.max_iterations", fmt.Sprintf("must be positive, got %d", c.Clustering.MaxIterations))
	}
	if c.Clustering.Restarts < 1 {
		return errdefs.NewConfigError("clustering.restarts", fmt.Sprintf("must be positive, got %d", c.Clustering.Restarts))
	}
	if c.Clustering.AutoK && c.Clustering.MaxK < 1 {
		return errdefs.NewConfigError("clustering.max_k", fmt.Sprintf("must be positive, got %d", c.Clustering.MaxK))
	}
	if c.Clustering.Variance <= 0 || c.Clustering.Variance > 1 {
		return errdefs.NewConfigError("clustering.variance", fmt.Sprintf("%v outside (0, 1]", c.Clustering.Variance))
	}
	if c.Segmentation.MinAreaRatio < 0 || c.Segmentation.MinAreaRatio >= 1 {
		return errdefs.NewConfigError("segmentation.min_area_ratio", fmt.Sprintf("%v outside [0, 1)", c.Segmentation.MinAreaRatio))
	}
	if c.Workers < 0 {
		return errdefs.NewConfigError("workers", fmt.Sprintf("must not be negative, got %d", c.Workers))
	}
	for _, m := range c.Extraction.Models {
		if m.Name == "" || m.Weights == "" || m.Dim < 1 {
			return errdefs.NewConfigError("extraction.models", "entries need name, weights and a positive dim")
		}
	}
	return nil
}
