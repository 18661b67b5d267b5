package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/x/term"

	"github.com/keilerkonzept/serialplot/internal/serialport"
)

var errNoInput = errors.New("no input: use --device, --in, or pipe data to stdin")

// openInput picks the byte source: a serial device, a file, or piped
// stdin. ok is false when stdin is an interactive terminal.
func openInput(cfg Config) (r io.ReadCloser, name string, ok bool, err error) {
	switch {
	case cfg.Device != "":
		port, err := serialport.Open(serialport.Config{Device: cfg.Device, BaudRate: cfg.BaudRate})
		if err != nil {
			return nil, "", false, err
		}
		return port, cfg.Device, true, nil
	case cfg.InputPath != "":
		f, err := os.Open(cfg.InputPath)
		if err != nil {
			return nil, "", false, err
		}
		return f, cfg.InputPath, true, nil
	}
	if term.IsTerminal(os.Stdin.Fd()) {
		return nil, "", false, nil
	}
	return io.NopCloser(os.Stdin), "stdin", true, nil
}

type pumpOptions struct {
	chunkSize  int
	maxRecords int
	pace       time.Duration
	// wait blocks while ingestion is paused. May be nil.
	wait func()
}

// pump reads r chunk by chunk and hands each chunk to deliver, which
// reports how many samples it accepted. It returns nil on EOF or once
// maxRecords samples were accepted. deliver must not retain the chunk.
func pump(r io.Reader, opts pumpOptions, deliver func(chunk []byte) int) error {
	buf := make([]byte, max(1, opts.chunkSize))
	accepted := 0
	for {
		if opts.wait != nil {
			opts.wait()
		}
		n, err := r.Read(buf)
		if n > 0 {
			accepted += deliver(buf[:n])
			if opts.maxRecords > 0 && accepted >= opts.maxRecords {
				return nil
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if opts.pace > 0 {
			time.Sleep(opts.pace)
		}
	}
}
