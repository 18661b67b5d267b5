// Package series keeps a fixed-capacity, scrolling window of numeric
// samples together with the display range needed to plot it.
//
// Samples are numbered by a step counter that starts at 0 and advances
// once per accepted sample. When the window is full the oldest sample is
// evicted first. Records that do not parse as numbers are rejected with a
// *ConversionError and consume no step.
//
// The y range follows a ratchet: it starts at value±margin on the first
// sample and only ever widens (RangeHistory). RangeWindow recomputes it
// from the retained samples instead, so it shrinks as extremes scroll out.
package series

import (
	"fmt"
	"math"
)

// Sample is one accepted value. Samples are immutable once created.
type Sample struct {
	Step  int64
	Value float64
}

// DisplayRange is the plot extent derived from the window.
type DisplayRange struct {
	XMin, XMax int64
	YMin, YMax float64
}

// RangePolicy selects how the y range reacts to evictions.
type RangePolicy int

const (
	// RangeHistory widens the y range monotonically over the session.
	RangeHistory RangePolicy = iota
	// RangeWindow fits the y range to the samples currently retained.
	RangeWindow
)

func (p RangePolicy) String() string {
	switch p {
	case RangeHistory:
		return "history"
	case RangeWindow:
		return "window"
	}
	return fmt.Sprintf("RangePolicy(%d)", int(p))
}

func ParseRangePolicy(s string) (RangePolicy, error) {
	switch s {
	case "history", "":
		return RangeHistory, nil
	case "window":
		return RangeWindow, nil
	}
	return 0, fmt.Errorf("unknown range policy %q (want history or window)", s)
}

// DefaultMargin is the padding added around observed extremes.
const DefaultMargin = 1.0

type Option func(*Series)

// WithMargin sets the y padding. Negative values are treated as 0.
func WithMargin(m float64) Option {
	return func(s *Series) { s.margin = math.Max(0, m) }
}

func WithRangePolicy(p RangePolicy) Option {
	return func(s *Series) { s.policy = p }
}

// Series is the windowed sample store. It is not safe for concurrent use.
type Series struct {
	margin float64
	policy RangePolicy

	buf   []Sample
	head  int // index of the oldest sample
	count int

	next  int64
	rng   DisplayRange
	ready bool
}

// New returns an empty series holding at most capacity samples.
// Capacities below 1 are raised to 1.
func New(capacity int, opts ...Option) *Series {
	if capacity < 1 {
		capacity = 1
	}
	s := &Series{
		margin: DefaultMargin,
		buf:    make([]Sample, capacity),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Series) Cap() int                 { return len(s.buf) }
func (s *Series) Len() int                 { return s.count }
func (s *Series) Empty() bool              { return s.count == 0 }
func (s *Series) Margin() float64          { return s.margin }
func (s *Series) RangePolicy() RangePolicy { return s.policy }

// NextStep is the step the next accepted sample will receive.
func (s *Series) NextStep() int64 { return s.next }

// Append parses record and adds it to the window. On a parse failure
// the window, range, and step counter are left untouched.
func (s *Series) Append(record []byte) (Sample, error) {
	v, err := Parse(record)
	if err != nil {
		return Sample{}, err
	}
	return s.push(v), nil
}

// AppendValue adds an already-numeric value. NaN and infinities are
// rejected like unparsable records.
func (s *Series) AppendValue(v float64) (Sample, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Sample{}, &ConversionError{Record: fmt.Sprint(v), Err: errNotFinite}
	}
	return s.push(v), nil
}

func (s *Series) push(v float64) Sample {
	smp := Sample{Step: s.next, Value: v}
	s.next++

	if s.count == len(s.buf) {
		s.buf[s.head] = smp
		s.head = (s.head + 1) % len(s.buf)
	} else {
		s.buf[(s.head+s.count)%len(s.buf)] = smp
		s.count++
	}
	if s.count > len(s.buf) {
		panic(fmt.Sprintf("series: window holds %d samples, capacity %d", s.count, len(s.buf)))
	}

	s.updateRange(smp)
	return smp
}

func (s *Series) updateRange(smp Sample) {
	oldest := s.buf[s.head].Step
	s.rng.XMax = smp.Step
	s.rng.XMin = max(smp.Step-int64(len(s.buf))+1, oldest)

	v := smp.Value
	switch {
	case s.policy == RangeWindow:
		lo, hi := v, v
		for i := 0; i < s.count; i++ {
			x := s.buf[(s.head+i)%len(s.buf)].Value
			lo = math.Min(lo, x)
			hi = math.Max(hi, x)
		}
		s.rng.YMin, s.rng.YMax = lo-s.margin, hi+s.margin
	case !s.ready:
		s.rng.YMin, s.rng.YMax = v-s.margin, v+s.margin
	default:
		if v > s.rng.YMax-s.margin {
			s.rng.YMax = v + s.margin
		}
		if v < s.rng.YMin+s.margin {
			s.rng.YMin = v - s.margin
		}
	}
	s.ready = true
}

// Range returns the display range. ok is false until the first sample.
func (s *Series) Range() (r DisplayRange, ok bool) {
	return s.rng, s.ready
}

// Last returns the newest sample.
func (s *Series) Last() (Sample, bool) {
	if s.count == 0 {
		return Sample{}, false
	}
	return s.buf[(s.head+s.count-1)%len(s.buf)], true
}

// Window returns a copy of the retained samples, oldest first.
func (s *Series) Window() []Sample {
	out := make([]Sample, s.count)
	for i := range out {
		out[i] = s.buf[(s.head+i)%len(s.buf)]
	}
	return out
}

// Values writes the retained values right-aligned into dst, newest last,
// filling unused leading slots with fill. Samples that do not fit are
// dropped from the old end.
func (s *Series) Values(dst []float64, fill float64) {
	n := min(len(dst), s.count)
	pad := len(dst) - n
	for i := 0; i < pad; i++ {
		dst[i] = fill
	}
	skip := s.count - n
	for i := 0; i < n; i++ {
		dst[pad+i] = s.buf[(s.head+skip+i)%len(s.buf)].Value
	}
}

// Reset clears the window and range and restarts the step counter.
func (s *Series) Reset() {
	clear(s.buf)
	s.head, s.count = 0, 0
	s.next = 0
	s.rng = DisplayRange{}
	s.ready = false
}
