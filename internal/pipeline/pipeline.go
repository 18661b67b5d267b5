// Package pipeline drives the framing and series stages for one
// acquisition session.
//
// A Session is owned by a single goroutine: each delivered chunk is fed
// to the extractor and every resulting record is appended before Deliver
// returns. Callers that read snapshots from other goroutines must
// serialize access themselves.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/keilerkonzept/serialplot/internal/export"
	"github.com/keilerkonzept/serialplot/internal/framing"
	"github.com/keilerkonzept/serialplot/internal/series"
)

type Config struct {
	Mode        framing.Mode
	Delimiter   byte
	Capacity    int
	Margin      float64
	RangePolicy series.RangePolicy
}

func DefaultConfig() Config {
	return Config{
		Mode:        framing.ModeLine,
		Delimiter:   framing.DefaultDelimiter,
		Capacity:    500,
		Margin:      series.DefaultMargin,
		RangePolicy: series.RangeHistory,
	}
}

func (c Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("window capacity must be >= 1 (got %d)", c.Capacity)
	}
	if c.Margin < 0 {
		return fmt.Errorf("range margin must be >= 0 (got %g)", c.Margin)
	}
	return nil
}

// Result is what one delivery produced.
type Result struct {
	Accepted []series.Sample
	Rejected []error
}

// View is a copy of the session state for rendering.
type View struct {
	Samples  []series.Sample
	Range    series.DisplayRange
	HasRange bool
	Buffered int
	Capacity int
	NextStep int64
}

type Option func(*Session)

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithExporter writes one record per accepted sample to w.
func WithExporter(w *export.Writer) Option {
	return func(s *Session) { s.exporter = w }
}

type Session struct {
	cfg       Config
	extractor *framing.Extractor
	series    *series.Series
	exporter  *export.Writer
	observer  Observer
	logger    *slog.Logger

	rejected uint64
}

func NewSession(cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		cfg: cfg,
		extractor: framing.New(cfg.Mode,
			framing.WithDelimiter(cfg.Delimiter),
		),
		series: series.New(cfg.Capacity,
			series.WithMargin(cfg.Margin),
			series.WithRangePolicy(cfg.RangePolicy),
		),
		observer: nopObserver{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Session) Config() Config { return s.cfg }

// Deliver processes one chunk from the transport.
func (s *Session) Deliver(chunk []byte) Result {
	var res Result
	s.observer.ObserveChunk(len(chunk))
	for _, rec := range s.extractor.Feed(chunk) {
		smp, err := s.series.Append(rec)
		if err != nil {
			s.reject(rec, err)
			res.Rejected = append(res.Rejected, err)
			continue
		}
		res.Accepted = append(res.Accepted, smp)
		rng, _ := s.series.Range()
		s.observer.ObserveSample(smp, rng)
		s.export(smp)
	}
	return res
}

func (s *Session) reject(rec framing.Record, err error) {
	s.rejected++
	s.observer.ObserveReject(err)
	var convErr *series.ConversionError
	if errors.As(err, &convErr) {
		s.logger.Warn("dropping record", "record", convErr.Record, "err", convErr.Err)
		return
	}
	s.logger.Warn("dropping record", "record", rec.String(), "err", err)
}

func (s *Session) export(smp series.Sample) {
	if s.exporter == nil {
		return
	}
	if err := s.exporter.Write(smp); err != nil {
		s.logger.Error("export failed", "step", smp.Step, "err", err)
	}
}

// Rejected counts records dropped since the session started or was reset.
func (s *Session) Rejected() uint64 { return s.rejected }

func (s *Session) Snapshot() View {
	rng, ok := s.series.Range()
	return View{
		Samples:  s.series.Window(),
		Range:    rng,
		HasRange: ok,
		Buffered: s.extractor.Buffered(),
		Capacity: s.series.Cap(),
		NextStep: s.series.NextStep(),
	}
}

// Buffered reports the bytes held back waiting for a delimiter.
func (s *Session) Buffered() int { return s.extractor.Buffered() }

// Values fills dst for fixed-width plotting; see series.Series.Values.
func (s *Session) Values(dst []float64, fill float64) { s.series.Values(dst, fill) }

// Range returns the current display range.
func (s *Session) Range() (series.DisplayRange, bool) { return s.series.Range() }

// Reset discards buffered bytes and all samples and restarts the step
// counter.
func (s *Session) Reset() {
	s.extractor.Reset()
	s.series.Reset()
	s.rejected = 0
	s.observer.ObserveReset()
	s.logger.Info("session reset")
}
