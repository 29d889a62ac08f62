// ============================================================================
// LSSEFT Config - run configuration
// ============================================================================
//
// Package: internal/config
// File: config.go
// Purpose: Load, default and validate the configuration of one run.
//
// Format:
//   YAML by default. A file ending in .toml is read as TOML.
//
//   store:     driver (sqlite|mysql|postgres), dsn, pool sizes
//   workers:   count, idle_timeout
//   transport: mode (local|grpc), listen, master
//   model:     name, omega_m, omega_cc, h, tolerance
//   grid:      wavenumbers, uv_cutoffs, ir_cutoffs, ir_resummation,
//              redshifts; each a list or {min, max, count, log}
//   spectrum:  path
//   log:       level, format, output, rotation
//   metrics:   enabled, listen
//
// Example:
//   workers:
//     count: 4
//   grid:
//     wavenumbers: {min: 0.01, max: 0.3, count: 30, log: true}
//     redshifts: [0, 0.5, 1]
//
// ============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/LBJ-Wade/LSSEFT-sub001/internal/logger"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/store"
	"github.com/LBJ-Wade/LSSEFT-sub001/pkg/types"
)

var (
	ErrNoStore       = errors.New("no store configured")
	ErrNoSpectrum    = errors.New("no power spectrum configured")
	ErrNoWorkers     = errors.New("worker count must be positive")
	ErrEmptyGrid     = errors.New("grid axis is empty")
	ErrBadModel      = errors.New("invalid cosmological model")
	ErrUnknownMode   = errors.New("unknown transport mode")
	ErrNoMasterAddr  = errors.New("no master address configured")
	ErrBadAxisFormat = errors.New("grid axis must be a list or a range")
)

// Transport modes.
const (
	ModeLocal = "local"
	ModeGRPC  = "grpc"
)

// Config is the complete configuration of a run.
type Config struct {
	Store     store.Config    `yaml:"store" toml:"store"`
	Workers   WorkersConfig   `yaml:"workers" toml:"workers"`
	Transport TransportConfig `yaml:"transport" toml:"transport"`
	Model     ModelConfig     `yaml:"model" toml:"model"`
	Grid      GridConfig      `yaml:"grid" toml:"grid"`
	Spectrum  SpectrumConfig  `yaml:"spectrum" toml:"spectrum"`
	Log       logger.Config   `yaml:"log" toml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

type WorkersConfig struct {
	Count int `yaml:"count" toml:"count"`
	// IdleTimeout fails a phase when no worker reports for this long. Zero waits forever.
	IdleTimeout time.Duration `yaml:"idle_timeout" toml:"idle_timeout"`
}

type TransportConfig struct {
	Mode   string `yaml:"mode" toml:"mode"`
	Listen string `yaml:"listen" toml:"listen"`
	Master string `yaml:"master" toml:"master"`
}

type ModelConfig struct {
	Name    string  `yaml:"name" toml:"name"`
	OmegaM  float64 `yaml:"omega_m" toml:"omega_m"`
	OmegaCC float64 `yaml:"omega_cc" toml:"omega_cc"`
	H       float64 `yaml:"h" toml:"h"`
	// Tolerance is the relative tolerance for matching stored values.
	Tolerance float64 `yaml:"tolerance" toml:"tolerance"`
}

// Params returns the cosmological parameters.
func (m ModelConfig) Params() types.Model {
	return types.Model{Name: m.Name, OmegaM: m.OmegaM, OmegaCC: m.OmegaCC, H: m.H}
}

type GridConfig struct {
	Wavenumbers   Axis `yaml:"wavenumbers" toml:"wavenumbers"`
	UVCutoffs     Axis `yaml:"uv_cutoffs" toml:"uv_cutoffs"`
	IRCutoffs     Axis `yaml:"ir_cutoffs" toml:"ir_cutoffs"`
	IRResummation Axis `yaml:"ir_resummation" toml:"ir_resummation"`
	Redshifts     Axis `yaml:"redshifts" toml:"redshifts"`
}

// Axes returns every axis keyed by its dimension.
func (g *GridConfig) Axes() map[types.Dimension]*Axis {
	return map[types.Dimension]*Axis{
		types.DimWavenumber: &g.Wavenumbers,
		types.DimUVCutoff:   &g.UVCutoffs,
		types.DimIRCutoff:   &g.IRCutoffs,
		types.DimResum:      &g.IRResummation,
		types.DimRedshift:   &g.Redshifts,
	}
}

type SpectrumConfig struct {
	Path string `yaml:"path" toml:"path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Listen  string `yaml:"listen" toml:"listen"`
}

// Load reads path, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read parses path and applies defaults without validating.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Tolerance == 0 {
		c.Store.Tolerance = c.Model.Tolerance
	}
	if c.Transport.Mode == "" {
		c.Transport.Mode = ModeLocal
	}
	if c.Transport.Listen == "" {
		c.Transport.Listen = ":50051"
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9090"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Model.Name == "" {
		c.Model.Name = "default"
	}
}

// Validate rejects configurations a run cannot start from.
func (c *Config) Validate() error {
	if c.Store.DSN == "" {
		return ErrNoStore
	}
	if c.Spectrum.Path == "" {
		return ErrNoSpectrum
	}
	if c.Workers.Count < 1 {
		return fmt.Errorf("%w: %d", ErrNoWorkers, c.Workers.Count)
	}
	if c.Workers.IdleTimeout < 0 {
		return fmt.Errorf("negative idle timeout %s", c.Workers.IdleTimeout)
	}
	switch c.Transport.Mode {
	case ModeLocal, ModeGRPC:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, c.Transport.Mode)
	}
	if c.Model.OmegaM <= 0 || c.Model.OmegaCC < 0 || c.Model.H <= 0 {
		return fmt.Errorf("%w: omega_m=%g omega_cc=%g h=%g", ErrBadModel, c.Model.OmegaM, c.Model.OmegaCC, c.Model.H)
	}
	for _, dim := range types.Dimensions {
		values, err := c.Grid.Axes()[dim].Values()
		if err != nil {
			return fmt.Errorf("grid %s: %w", dim, err)
		}
		if len(values) == 0 {
			return fmt.Errorf("%w: %s", ErrEmptyGrid, dim)
		}
	}
	return nil
}

// ValidateWorker checks only what a remote worker needs.
func (c *Config) ValidateWorker() error {
	if c.Transport.Master == "" {
		return ErrNoMasterAddr
	}
	return nil
}
