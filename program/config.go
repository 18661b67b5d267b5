package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/keilerkonzept/serialplot/internal/framing"
	"github.com/keilerkonzept/serialplot/internal/pipeline"
	"github.com/keilerkonzept/serialplot/internal/serialport"
	"github.com/keilerkonzept/serialplot/internal/series"
)

type Config struct {
	ConfigPath  string `yaml:"-"`
	ListDevices bool   `yaml:"-"`

	// framing and window
	Framing     string  `yaml:"framing"`
	Delimiter   string  `yaml:"delimiter"`
	RangeX      int     `yaml:"range_x"`
	Margin      float64 `yaml:"margin"`
	RangePolicy string  `yaml:"range_policy"`

	// input
	Device     string        `yaml:"device"`
	BaudRate   int           `yaml:"baud_rate"`
	InputPath  string        `yaml:"input"`
	ChunkSize  int           `yaml:"chunk_size"`
	MaxRecords int           `yaml:"max_records"`
	Pace       time.Duration `yaml:"pace"`

	// frequent readings sketch
	K               int           `yaml:"k"`
	Width           int           `yaml:"width"`
	Depth           int           `yaml:"depth"`
	Decay           float64       `yaml:"decay"`
	DecayLUTSize    int           `yaml:"decay_lut_size"`
	TickSize        time.Duration `yaml:"tick"`
	WindowSize      time.Duration `yaml:"window"`
	ReadingDecimals int           `yaml:"reading_decimals"`
	FullRefresh     time.Duration `yaml:"full_refresh"`
	PartialSize     int           `yaml:"partial_size"`

	// render
	Plain         bool `yaml:"plain"`
	PlotFPS       int  `yaml:"plot_fps"`
	ItemsFPS      int  `yaml:"items_fps"`
	TrackSelected bool `yaml:"track_selected"`
	ViewSplit     int  `yaml:"view_split"`
	AltScreen     bool `yaml:"alt_screen"`
	StatsEnabled  bool `yaml:"stats"`
	StatsWindow   int  `yaml:"stats_window"`
	ShowRaw       bool `yaml:"show_raw"`
	RawBytes      int  `yaml:"raw_bytes"`

	// output
	ExportPath  string `yaml:"export"`
	SnapshotDir string `yaml:"snapshot_dir"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogFile     string `yaml:"log_file"`
	LogLevel    string `yaml:"log_level"`
}

func defaultConfig() Config {
	return Config{
		Framing:     "line",
		Delimiter:   string(framing.DefaultDelimiter),
		RangeX:      500,
		Margin:      series.DefaultMargin,
		RangePolicy: "history",

		BaudRate:  serialport.DefaultBaudRate,
		ChunkSize: 4096,

		K:               20,
		Width:           1024,
		Depth:           3,
		Decay:           0.9,
		DecayLUTSize:    8192,
		TickSize:        time.Second,
		WindowSize:      30 * time.Second,
		ReadingDecimals: 1,
		FullRefresh:     2 * time.Second,

		PlotFPS:      20,
		ItemsFPS:     2,
		ViewSplit:    30,
		AltScreen:    true,
		StatsEnabled: true,
		StatsWindow:  256,
		RawBytes:     4096,

		SnapshotDir: ".",
		LogLevel:    "info",
	}
}

func newFlagSet(cfg *Config) *pflag.FlagSet {
	fs := pflag.NewFlagSet("serialplot", pflag.ContinueOnError)
	fs.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "Load settings from this YAML file (flags override it)")
	fs.BoolVar(&cfg.ListDevices, "list-devices", cfg.ListDevices, "List available serial devices and exit")

	fs.StringVar(&cfg.Framing, "framing", cfg.Framing, "Record framing: line (newline-terminated) or delim (single delimiter byte)")
	fs.StringVar(&cfg.Delimiter, "delimiter", cfg.Delimiter, "Delimiter byte for --framing=delim (\\t for tab)")
	fs.IntVar(&cfg.RangeX, "range-x", cfg.RangeX, "Number of samples kept in the scrolling window")
	fs.Float64Var(&cfg.Margin, "margin", cfg.Margin, "Padding added above and below observed values on the y axis")
	fs.StringVar(&cfg.RangePolicy, "range-policy", cfg.RangePolicy, "Y range policy: history (only widens) or window (fits visible samples)")

	fs.StringVar(&cfg.Device, "device", cfg.Device, "Read from this serial device (e.g. /dev/ttyACM0)")
	fs.IntVar(&cfg.BaudRate, "baud", cfg.BaudRate, "Serial baud rate ("+serialport.FormatBaudRates()+")")
	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Read input from this file instead of stdin")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "Maximum bytes per read from the input")
	fs.IntVar(&cfg.MaxRecords, "max-records", cfg.MaxRecords, "Stop reading once this many samples were accepted (0 = unlimited)")
	fs.DurationVar(&cfg.Pace, "pace", cfg.Pace, "Sleep between reads (e.g. 5ms, 50ms)")

	fs.IntVar(&cfg.K, "k", cfg.K, "Track the K most frequent readings")
	fs.IntVar(&cfg.Width, "width", cfg.Width, "Sketch width")
	fs.IntVar(&cfg.Depth, "depth", cfg.Depth, "Sketch depth")
	fs.Float64Var(&cfg.Decay, "decay", cfg.Decay, "Counter decay probability on collisions")
	fs.IntVar(&cfg.DecayLUTSize, "decay-lut-size", cfg.DecayLUTSize, "Sketch decay look-up table size")
	fs.DurationVar(&cfg.TickSize, "tick", cfg.TickSize, "Sliding window tick size (time bucket precision)")
	fs.DurationVar(&cfg.WindowSize, "window", cfg.WindowSize, "Time window for frequent readings")
	fs.IntVar(&cfg.ReadingDecimals, "reading-decimals", cfg.ReadingDecimals, "Round readings to this many decimals before counting")
	fs.DurationVar(&cfg.FullRefresh, "full-refresh", cfg.FullRefresh, "How often to do a full ranking refresh (0 = always)")
	fs.IntVar(&cfg.PartialSize, "partial-size", cfg.PartialSize, "How many readings to re-sort per partial refresh (0 = all)")

	fs.BoolVar(&cfg.Plain, "plain", cfg.Plain, "Print step and value per sample instead of starting the terminal UI")
	fs.IntVar(&cfg.PlotFPS, "plot-fps", cfg.PlotFPS, "Plot refresh rate (frames per second)")
	fs.IntVar(&cfg.ItemsFPS, "items-fps", cfg.ItemsFPS, "Readings list refresh rate (frames per second)")
	fs.BoolVar(&cfg.TrackSelected, "track-selected", cfg.TrackSelected, "Keep the selected reading focused")
	fs.IntVar(&cfg.ViewSplit, "view-split", cfg.ViewSplit, "Split the view at this % of the total screen width [20,80]")
	fs.BoolVar(&cfg.AltScreen, "alt-screen", cfg.AltScreen, "Use the terminal alternate screen buffer")
	fs.BoolVar(&cfg.StatsEnabled, "stats", cfg.StatsEnabled, "Show stream statistics")
	fs.IntVar(&cfg.StatsWindow, "stats-window", cfg.StatsWindow, "Number of recent feed latencies kept")
	fs.BoolVar(&cfg.ShowRaw, "show-raw", cfg.ShowRaw, "Start with the raw input pane instead of the plot")
	fs.IntVar(&cfg.RawBytes, "raw-bytes", cfg.RawBytes, "Keep this many of the most recent input bytes for the raw pane")

	fs.StringVar(&cfg.ExportPath, "export", cfg.ExportPath, "Append \"timestamp;value\" records to this file")
	fs.StringVar(&cfg.SnapshotDir, "snapshot-dir", cfg.SnapshotDir, "Directory for PNG snapshots of the window")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve Prometheus metrics on this address (e.g. :9100)")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Write JSON log records to this file")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	return fs
}

// loadConfig parses args over the defaults. When --config names a file,
// the file is applied over the defaults and args are parsed again so
// explicit flags win.
func loadConfig(args []string) (Config, error) {
	cfg := defaultConfig()
	if err := newFlagSet(&cfg).Parse(args); err != nil {
		return cfg, err
	}
	if cfg.ConfigPath != "" {
		path := cfg.ConfigPath
		cfg = defaultConfig()
		if err := loadConfigFile(path, &cfg); err != nil {
			return cfg, err
		}
		if err := newFlagSet(&cfg).Parse(args); err != nil {
			return cfg, err
		}
	}
	if err := validateAndNormalizeConfig(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func validateAndNormalizeConfig(cfg *Config) error {
	if _, err := framing.ParseMode(cfg.Framing); err != nil {
		return fmt.Errorf("--framing: %w", err)
	}
	if cfg.Delimiter == `\t` {
		cfg.Delimiter = "\t"
	}
	if len(cfg.Delimiter) != 1 {
		return fmt.Errorf("--delimiter must be exactly one byte (got %q)", cfg.Delimiter)
	}
	if cfg.RangeX < 1 {
		return fmt.Errorf("--range-x must be >= 1")
	}
	if cfg.Margin < 0 {
		return fmt.Errorf("--margin must be >= 0")
	}
	if _, err := series.ParseRangePolicy(cfg.RangePolicy); err != nil {
		return fmt.Errorf("--range-policy: %w", err)
	}
	if cfg.Device != "" && cfg.InputPath != "" {
		return fmt.Errorf("choose only one: --device or --in")
	}
	if cfg.Device != "" {
		if err := (serialport.Config{Device: cfg.Device, BaudRate: cfg.BaudRate}).Validate(); err != nil {
			return fmt.Errorf("--baud: %w", err)
		}
	}
	if cfg.ChunkSize < 1 {
		return fmt.Errorf("--chunk-size must be >= 1")
	}
	if cfg.MaxRecords < 0 {
		return fmt.Errorf("--max-records must be >= 0")
	}
	if cfg.Pace < 0 {
		return fmt.Errorf("--pace must be >= 0")
	}
	if cfg.K < 1 {
		return fmt.Errorf("--k must be >= 1")
	}
	if cfg.Width < 1 {
		return fmt.Errorf("--width must be >= 1")
	}
	if cfg.Depth < 1 {
		return fmt.Errorf("--depth must be >= 1")
	}
	if cfg.Decay < 0 || cfg.Decay > 1 {
		return fmt.Errorf("--decay must be in [0,1]")
	}
	if cfg.DecayLUTSize < 1 {
		return fmt.Errorf("--decay-lut-size must be >= 1")
	}
	if cfg.TickSize <= 0 {
		return fmt.Errorf("--tick must be > 0")
	}
	if cfg.WindowSize < cfg.TickSize {
		return fmt.Errorf("--window must be >= --tick")
	}
	if cfg.WindowSize%cfg.TickSize != 0 {
		return fmt.Errorf("--window must be a multiple of --tick (got window=%s tick=%s)", cfg.WindowSize, cfg.TickSize)
	}
	if cfg.ReadingDecimals < 0 || cfg.ReadingDecimals > 9 {
		return fmt.Errorf("--reading-decimals must be in [0,9]")
	}
	if cfg.FullRefresh < 0 {
		return fmt.Errorf("--full-refresh must be >= 0")
	}
	if cfg.PartialSize < 0 {
		return fmt.Errorf("--partial-size must be >= 0")
	}
	if cfg.PlotFPS < 1 {
		return fmt.Errorf("--plot-fps must be >= 1")
	}
	if cfg.ItemsFPS < 1 {
		return fmt.Errorf("--items-fps must be >= 1")
	}
	if cfg.RawBytes < 1 {
		return fmt.Errorf("--raw-bytes must be >= 1")
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}

	cfg.ViewSplit = min(80, max(20, cfg.ViewSplit))
	cfg.StatsWindow = max(16, cfg.StatsWindow)
	return nil
}

// pipelineConfig maps the validated CLI settings onto the session.
func (c Config) pipelineConfig() pipeline.Config {
	mode, _ := framing.ParseMode(c.Framing)
	policy, _ := series.ParseRangePolicy(c.RangePolicy)
	return pipeline.Config{
		Mode:        mode,
		Delimiter:   c.Delimiter[0],
		Capacity:    c.RangeX,
		Margin:      c.Margin,
		RangePolicy: policy,
	}
}

func (c Config) logLevel() slog.Level {
	var level slog.Level
	_ = level.UnmarshalText([]byte(c.LogLevel))
	return level
}
