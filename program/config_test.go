package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keilerkonzept/serialplot/internal/framing"
	"github.com/keilerkonzept/serialplot/internal/series"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "line", cfg.Framing)
	assert.Equal(t, 500, cfg.RangeX)
	assert.Equal(t, 9600, cfg.BaudRate)

	pc := cfg.pipelineConfig()
	assert.Equal(t, framing.ModeLine, pc.Mode)
	assert.Equal(t, byte(':'), pc.Delimiter)
	assert.Equal(t, 500, pc.Capacity)
	assert.Equal(t, 1.0, pc.Margin)
	assert.Equal(t, series.RangeHistory, pc.RangePolicy)
}

func TestLoadConfigFlags(t *testing.T) {
	cfg, err := loadConfig([]string{
		"--framing=delim", "--delimiter", ";", "--range-x", "3",
		"--margin", "0.5", "--range-policy", "window", "--pace", "5ms",
	})
	require.NoError(t, err)

	pc := cfg.pipelineConfig()
	assert.Equal(t, framing.ModeDelimited, pc.Mode)
	assert.Equal(t, byte(';'), pc.Delimiter)
	assert.Equal(t, 3, pc.Capacity)
	assert.Equal(t, 0.5, pc.Margin)
	assert.Equal(t, series.RangeWindow, pc.RangePolicy)
	assert.Equal(t, 5*time.Millisecond, cfg.Pace)
}

func TestLoadConfigTabDelimiter(t *testing.T) {
	cfg, err := loadConfig([]string{"--framing=delim", `--delimiter=\t`})
	require.NoError(t, err)
	assert.Equal(t, byte('\t'), cfg.pipelineConfig().Delimiter)

	cfg, err = loadConfig([]string{"--framing=delim", "--delimiter= "})
	require.NoError(t, err)
	assert.Equal(t, byte(' '), cfg.pipelineConfig().Delimiter)
}

func TestLoadConfigFileUnderFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serialplot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
framing: delim
delimiter: "|"
range_x: 1000
pace: 20ms
log_level: debug
`), 0o644))

	cfg, err := loadConfig([]string{"--config", path, "--range-x", "250"})
	require.NoError(t, err)
	assert.Equal(t, "delim", cfg.Framing)
	assert.Equal(t, "|", cfg.Delimiter)
	assert.Equal(t, 250, cfg.RangeX, "flag wins over file")
	assert.Equal(t, 20*time.Millisecond, cfg.Pace)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 20, cfg.K, "unset keys keep defaults")
}

func TestLoadConfigFileErrors(t *testing.T) {
	_, err := loadConfig([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.ErrorContains(t, err, "read config")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("range_x: [1, 2"), 0o644))
	_, err = loadConfig([]string{"--config", path})
	assert.ErrorContains(t, err, "parse config")
}

func TestLoadConfigHelp(t *testing.T) {
	_, err := loadConfig([]string{"--help"})
	assert.ErrorIs(t, err, pflag.ErrHelp)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"framing", func(c *Config) { c.Framing = "csv" }, "--framing"},
		{"delimiter", func(c *Config) { c.Delimiter = "::" }, "--delimiter"},
		{"empty delimiter", func(c *Config) { c.Delimiter = "" }, "--delimiter"},
		{"range-x", func(c *Config) { c.RangeX = 0 }, "--range-x"},
		{"margin", func(c *Config) { c.Margin = -1 }, "--margin"},
		{"range policy", func(c *Config) { c.RangePolicy = "visible" }, "--range-policy"},
		{"device and file", func(c *Config) { c.Device, c.InputPath = "/dev/ttyACM0", "x.txt" }, "choose only one"},
		{"baud", func(c *Config) { c.Device, c.BaudRate = "/dev/ttyACM0", 1234 }, "--baud"},
		{"chunk size", func(c *Config) { c.ChunkSize = 0 }, "--chunk-size"},
		{"window multiple", func(c *Config) { c.WindowSize = 1500 * time.Millisecond }, "multiple of --tick"},
		{"decimals", func(c *Config) { c.ReadingDecimals = 12 }, "--reading-decimals"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "--log-level"},
		{"raw bytes", func(c *Config) { c.RawBytes = 0 }, "--raw-bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(&cfg)
			assert.ErrorContains(t, validateAndNormalizeConfig(&cfg), tt.want)
		})
	}
}

func TestValidateNormalizes(t *testing.T) {
	cfg := defaultConfig()
	cfg.ViewSplit = 95
	cfg.StatsWindow = 2
	require.NoError(t, validateAndNormalizeConfig(&cfg))
	assert.Equal(t, 80, cfg.ViewSplit)
	assert.Equal(t, 16, cfg.StatsWindow)
}
