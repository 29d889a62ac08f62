package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
store:
  dsn: cache.db
workers:
  count: 4
  idle_timeout: 30s
model:
  name: planck
  omega_m: 0.31
  omega_cc: 0.69
  h: 0.68
  tolerance: 0.000001
grid:
  wavenumbers: {min: 0.01, max: 1, count: 3, log: true}
  uv_cutoffs: [1.4]
  ir_cutoffs: [0.001, 0.01]
  ir_resummation: 0.2
  redshifts: {min: 0, max: 1, count: 5}
spectrum:
  path: linear.dat
metrics:
  enabled: true
`

const validTOML = `
[store]
driver = "postgres"
dsn = "host=db user=lsseft"

[workers]
count = 2
idle_timeout = "1m"

[transport]
mode = "grpc"
listen = ":7000"

[model]
omega_m = 0.3
omega_cc = 0.7
h = 0.7

[grid]
wavenumbers = [0.05, 0.1]
uv_cutoffs = [1]
ir_cutoffs = { min = 0.001, max = 0.01, count = 2 }
ir_resummation = [0.2, 0.5]
redshifts = 0

[spectrum]
path = "linear.dat"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "run.yaml", validYAML))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 1e-6, cfg.Store.Tolerance, "model tolerance feeds the store")
	assert.Equal(t, 4, cfg.Workers.Count)
	assert.Equal(t, 30*time.Second, cfg.Workers.IdleTimeout)
	assert.Equal(t, ModeLocal, cfg.Transport.Mode)
	assert.Equal(t, "planck", cfg.Model.Params().Name)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9090", cfg.Metrics.Listen)
	assert.Equal(t, "info", cfg.Log.Level)

	k, err := cfg.Grid.Wavenumbers.Values()
	require.NoError(t, err)
	require.Len(t, k, 3)
	assert.Equal(t, 0.01, k[0])
	assert.InDelta(t, 0.1, k[1], 1e-12)
	assert.Equal(t, 1.0, k[2])

	z, err := cfg.Grid.Redshifts.Values()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1}, z)

	resum, err := cfg.Grid.IRResummation.Values()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.2}, resum)
}

func TestLoadTOML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "run.toml", validTOML))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 2, cfg.Workers.Count)
	assert.Equal(t, time.Minute, cfg.Workers.IdleTimeout)
	assert.Equal(t, ModeGRPC, cfg.Transport.Mode)
	assert.Equal(t, ":7000", cfg.Transport.Listen)

	ir, err := cfg.Grid.IRCutoffs.Values()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.001, 0.01}, ir)

	uv, err := cfg.Grid.UVCutoffs.Values()
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, uv)

	z, err := cfg.Grid.Redshifts.Values()
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, z)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("/nonexistent/run.yaml")
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeConfig(t, "bad.yaml", "workers: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse config YAML")

	_, err = Load(writeConfig(t, "bad.toml", "[workers\ncount = 1"))
	assert.ErrorContains(t, err, "failed to parse config TOML")

	_, err = Load(writeConfig(t, "axis.yaml", "grid:\n  redshifts: !!binary AAAA\n"))
	assert.Error(t, err)
}

func validConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := Load(writeConfig(t, "run.yaml", validYAML))
	require.NoError(t, err)
	return *cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"no store", func(c *Config) { c.Store.DSN = "" }, ErrNoStore},
		{"no spectrum", func(c *Config) { c.Spectrum.Path = "" }, ErrNoSpectrum},
		{"no workers", func(c *Config) { c.Workers.Count = 0 }, ErrNoWorkers},
		{"bad mode", func(c *Config) { c.Transport.Mode = "mpi" }, ErrUnknownMode},
		{"bad model", func(c *Config) { c.Model.OmegaM = 0 }, ErrBadModel},
		{"empty grid", func(c *Config) { c.Grid.UVCutoffs = Axis{} }, ErrEmptyGrid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}

	cfg := validConfig(t)
	cfg.Grid.Redshifts = Axis{Range: &Range{Min: 1, Max: 0, Count: 2}}
	assert.Error(t, cfg.Validate())
}

func TestValidateWorker(t *testing.T) {
	var cfg Config
	assert.ErrorIs(t, cfg.ValidateWorker(), ErrNoMasterAddr)
	cfg.Transport.Master = "master:50051"
	assert.NoError(t, cfg.ValidateWorker())
}

func TestRangeValues(t *testing.T) {
	tests := []struct {
		name    string
		r       Range
		want    []float64
		wantErr bool
	}{
		{"single point", Range{Min: 2, Max: 5, Count: 1}, []float64{2}, false},
		{"linear", Range{Min: 0, Max: 2, Count: 3}, []float64{0, 1, 2}, false},
		{"log endpoints exact", Range{Min: 0.001, Max: 10, Count: 2, Log: true}, []float64{0.001, 10}, false},
		{"zero count", Range{Min: 0, Max: 1}, nil, true},
		{"reversed", Range{Min: 1, Max: 0, Count: 2}, nil, true},
		{"log of zero", Range{Min: 0, Max: 1, Count: 2, Log: true}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.r.Values()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadSkipsValidation(t *testing.T) {
	cfg, err := Read(writeConfig(t, "worker.yaml", "transport:\n  master: master:50051\n"))
	require.NoError(t, err)
	assert.NoError(t, cfg.ValidateWorker())
	assert.ErrorIs(t, cfg.Validate(), ErrNoStore)
}
