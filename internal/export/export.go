// Package export writes accepted samples as timestamped text records.
//
// Each record is "<timestamp>;<value>\n" where the value uses ',' as the
// decimal separator. The substitution happens only here; parsing always
// expects '.'.
package export

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/keilerkonzept/serialplot/internal/series"
)

// DefaultLayout renders timestamps as dd.MM.yyyy hh:mm:ss.
const DefaultLayout = "02.01.2006 15:04:05"

type Option func(*Writer)

func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

func WithLayout(layout string) Option {
	return func(w *Writer) { w.layout = layout }
}

// Writer emits one unbuffered write per record, so a failed write loses
// only that record.
type Writer struct {
	out    io.Writer
	buf    []byte
	closer io.Closer
	now    func() time.Time
	layout string
	lines  uint64
}

func NewWriter(w io.Writer, opts ...Option) *Writer {
	ew := &Writer{
		out:    w,
		now:    time.Now,
		layout: DefaultLayout,
	}
	for _, opt := range opts {
		opt(ew)
	}
	return ew
}

// Create opens path for appending and returns a Writer that owns it.
func Create(path string, opts ...Option) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open export file: %w", err)
	}
	w := NewWriter(f, opts...)
	w.closer = f
	return w, nil
}

// FormatValue renders v in its shortest decimal form with ',' as the
// decimal separator.
func FormatValue(v float64) string {
	return strings.Replace(strconv.FormatFloat(v, 'f', -1, 64), ".", ",", 1)
}

// Write emits one record for smp.
func (w *Writer) Write(smp series.Sample) error {
	w.buf = w.now().AppendFormat(w.buf[:0], w.layout)
	w.buf = append(w.buf, ';')
	w.buf = append(w.buf, FormatValue(smp.Value)...)
	w.buf = append(w.buf, '\n')
	if _, err := w.out.Write(w.buf); err != nil {
		return fmt.Errorf("export sample %d: %w", smp.Step, err)
	}
	w.lines++
	return nil
}

// Lines reports how many records were written successfully.
func (w *Writer) Lines() uint64 { return w.lines }

func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}
