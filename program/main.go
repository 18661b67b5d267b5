package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tui "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/keilerkonzept/serialplot/internal/export"
	"github.com/keilerkonzept/serialplot/internal/pipeline"
	"github.com/keilerkonzept/serialplot/internal/serialport"
	"github.com/keilerkonzept/serialplot/internal/telemetry"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := loadConfig(args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	if cfg.ListDevices {
		devices, err := serialport.Devices()
		if err != nil {
			return err
		}
		for _, d := range devices {
			fmt.Println(d)
		}
		return nil
	}

	logger, closeLog, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := telemetry.New("serialplot")
	if cfg.MetricsAddr != "" {
		go func() {
			if err := collector.Serve(ctx, cfg.MetricsAddr); err != nil {
				logger.Error("metrics server stopped", "addr", cfg.MetricsAddr, "err", err)
			}
		}()
	}

	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if cfg.ExportPath != "" {
		exporter, err := export.Create(cfg.ExportPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := exporter.Close(); err != nil {
				logger.Error("closing export file", "path", cfg.ExportPath, "err", err)
			}
		}()
		opts = append(opts, pipeline.WithExporter(exporter))
	}

	in, source, ok, err := openInput(cfg)
	if err != nil {
		return err
	}
	if ok {
		defer in.Close()
		logger.Info("session started", sessionAttrs(cfg, source)...)
		defer logger.Info("session stopped", "source", source)
	}

	if cfg.Plain {
		if !ok {
			return errNoInput
		}
		go func() {
			<-ctx.Done()
			in.Close()
		}()
		session, err := pipeline.NewSession(cfg.pipelineConfig(),
			append(opts, pipeline.WithObserver(collector))...)
		if err != nil {
			return err
		}
		return runPlain(session, in, cfg, os.Stdout)
	}

	m, err := newModel(cfg, collector, opts...)
	if err != nil {
		return err
	}
	if ok {
		m.input = in
	} else {
		m.err = errNoInput
	}
	progOpts := []tui.ProgramOption{tui.WithInputTTY(), tui.WithContext(ctx)}
	if cfg.AltScreen {
		progOpts = append(progOpts, tui.WithAltScreen())
	}
	if _, err := tui.NewProgram(m, progOpts...).Run(); err != nil && !errors.Is(err, tui.ErrProgramKilled) {
		return err
	}
	return nil
}

func sessionAttrs(cfg Config, source string) []any {
	attrs := []any{"source", source}
	if cfg.Device != "" {
		attrs = append(attrs, "baud", cfg.BaudRate)
	}
	return append(attrs, "framing", cfg.Framing, "range_x", cfg.RangeX)
}

// newLogger writes JSON records to --log-file when set. Otherwise plain
// mode logs text to stderr and the terminal UI discards logs so they do
// not corrupt the screen.
func newLogger(cfg Config, stderr io.Writer) (*slog.Logger, func(), error) {
	opts := &slog.HandlerOptions{Level: cfg.logLevel()}
	switch {
	case cfg.LogFile != "":
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return slog.New(slog.NewJSONHandler(f, opts)), func() { f.Close() }, nil
	case cfg.Plain:
		return slog.New(slog.NewTextHandler(stderr, opts)), func() {}, nil
	}
	return slog.New(slog.NewTextHandler(io.Discard, opts)), func() {}, nil
}

// runPlain prints one "step<TAB>value" line per accepted sample.
func runPlain(session *pipeline.Session, in io.Reader, cfg Config, out io.Writer) error {
	var werr error
	err := pump(in, pumpOptions{
		chunkSize:  cfg.ChunkSize,
		maxRecords: cfg.MaxRecords,
		pace:       cfg.Pace,
	}, func(chunk []byte) int {
		res := session.Deliver(chunk)
		for _, s := range res.Accepted {
			if werr == nil {
				_, werr = fmt.Fprintf(out, "%d\t%g\n", s.Step, s.Value)
			}
		}
		return len(res.Accepted)
	})
	if err != nil {
		return err
	}
	return werr
}
