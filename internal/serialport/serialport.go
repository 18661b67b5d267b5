// Package serialport opens instrument serial devices as byte streams.
package serialport

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"go.bug.st/serial"
)

// BaudRates lists the supported line speeds, ascending.
var BaudRates = []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200}

const DefaultBaudRate = 9600

type Config struct {
	Device   string
	BaudRate int
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Device) == "" {
		return fmt.Errorf("serial device is required")
	}
	if !slices.Contains(BaudRates, c.BaudRate) {
		return fmt.Errorf("unsupported baud rate %d (want one of %s)", c.BaudRate, FormatBaudRates())
	}
	return nil
}

// FormatBaudRates renders BaudRates as a comma-separated list.
func FormatBaudRates() string {
	parts := make([]string, len(BaudRates))
	for i, b := range BaudRates {
		parts[i] = strconv.Itoa(b)
	}
	return strings.Join(parts, ",")
}

// Open opens the device as 8N1 at the configured rate. Reads block until
// at least one byte arrives or the port is closed.
func Open(cfg Config) (io.ReadCloser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	port, err := serial.Open(cfg.Device, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}
	return port, nil
}

// Devices lists serial ports present on the system.
func Devices() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	slices.Sort(ports)
	return ports, nil
}
