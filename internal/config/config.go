// internal/config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	PDFSourceDir       string `yaml:"pdf_source_dir"`
	OutputDir          string `yaml:"output_dir"`
	DPI                int    `yaml:"dpi"`
	Model              string `yaml:"model"`
	SaveProcessedScans bool   `yaml:"save_processed_scans"`
	ClearOutput        bool   `yaml:"clear_output"`
}

// Load reads an optional yaml config file. A missing file is not an
// error; defaults are applied either way so callers always get a usable
// config. Flags override these values in main.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.PDFSourceDir == "" {
		cfg.PDFSourceDir = "pdfs"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "output"
	}
	if cfg.DPI == 0 {
		cfg.DPI = 300
	}

	return &cfg, nil
}
