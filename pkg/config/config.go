// Package config holds the settings of a capture run.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/root4loot/sitesnap/pkg/gallery"
	"github.com/root4loot/sitesnap/pkg/screener"
	"gopkg.in/yaml.v3"
)

const (
	DefaultInput       = "sites.json"
	DefaultOutDir      = "dist"
	DefaultShotsDir    = "screenshots"
	DefaultTemplateDir = "src"
	DefaultMaxParallel = 6
)

// Config is the complete configuration of a run.
type Config struct {
	Input       string `toml:"input" yaml:"input"`               // Work list (JSON array or .txt)
	OutDir      string `toml:"outdir" yaml:"outdir"`             // Site output folder
	ShotsDir    string `toml:"shots_dir" yaml:"shots_dir"`       // Screenshot folder inside OutDir
	TemplateDir string `toml:"template" yaml:"template"`         // Static site copied into OutDir
	MaxParallel int    `toml:"max_parallel" yaml:"max_parallel"` // Captures per wave
	Ext         string `toml:"ext" yaml:"ext"`                   // Image file extension
	Gallery     string `toml:"gallery" yaml:"gallery"`           // Selector of the gallery element in index.html
	HistoryDB   string `toml:"history" yaml:"history"`           // Optional SQLite run history

	Capture screener.Options `toml:"capture" yaml:"capture"`
}

// Error reports an unusable configuration.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid configuration: %v", e.Err)
	}
	return fmt.Sprintf("invalid configuration %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Input:       DefaultInput,
		OutDir:      DefaultOutDir,
		ShotsDir:    DefaultShotsDir,
		TemplateDir: DefaultTemplateDir,
		MaxParallel: DefaultMaxParallel,
		Ext:         screener.DefaultExt,
		Gallery:     gallery.DefaultSelector,
		Capture:     screener.NewOptions(),
	}
}

// Load reads path on top of the defaults. The format is picked from the
// extension: .toml, .yaml or .yml.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, &Error{Path: path, Err: err}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err = toml.Decode(string(data), &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return cfg, &Error{Path: path, Err: err}
	}

	return cfg, nil
}

// ApplyEnv overrides cfg from SITESNAP_* environment variables.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv("SITESNAP_INPUT"); v != "" {
		cfg.Input = v
	}
	if v := os.Getenv("SITESNAP_OUTDIR"); v != "" {
		cfg.OutDir = v
	}
	if v := os.Getenv("SITESNAP_PARALLEL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &Error{Err: fmt.Errorf("SITESNAP_PARALLEL: %w", err)}
		}
		cfg.MaxParallel = n
	}
	return nil
}

// Validate checks that the configuration can drive a run.
func (c Config) Validate() error {
	var errs []error

	if c.Input == "" {
		errs = append(errs, errors.New("input is required"))
	}
	if c.OutDir == "" {
		errs = append(errs, errors.New("outdir is required"))
	}
	if c.MaxParallel < 1 {
		errs = append(errs, fmt.Errorf("max_parallel must be at least 1, got %d", c.MaxParallel))
	}

	capture := c.Capture
	if capture.CaptureWidth <= 0 || capture.CaptureHeight <= 0 {
		errs = append(errs, fmt.Errorf("capture size must be positive, got %dx%d", capture.CaptureWidth, capture.CaptureHeight))
	}
	if capture.ScaleFactor <= 0 {
		errs = append(errs, fmt.Errorf("scale_factor must be positive, got %v", capture.ScaleFactor))
	}
	if capture.Timeout < 0 || capture.DelayBeforeCapture < 0 {
		errs = append(errs, errors.New("timeout and delay cannot be negative"))
	}
	if capture.AvoidDuplicates && (capture.DuplicateThreshold < 1 || capture.DuplicateThreshold > 100) {
		errs = append(errs, fmt.Errorf("duplicate_threshold must be between 1 and 100, got %d", capture.DuplicateThreshold))
	}
	switch capture.Engine {
	case screener.EngineRod, screener.EngineChromedp:
	default:
		errs = append(errs, fmt.Errorf("unknown engine %q", capture.Engine))
	}

	if len(errs) > 0 {
		return &Error{Err: errors.Join(errs...)}
	}
	return nil
}
