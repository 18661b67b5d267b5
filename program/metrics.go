package main

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/keilerkonzept/serialplot/internal/series"
)

type durationRing struct {
	buf   []time.Duration
	idx   int
	count int
}

func newDurationRing(n int) *durationRing {
	if n < 1 {
		n = 1
	}
	return &durationRing{buf: make([]time.Duration, n)}
}

func (r *durationRing) add(d time.Duration) {
	r.buf[r.idx] = d
	r.idx = (r.idx + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

type durationStats struct {
	last time.Duration
	max  time.Duration
	avg  time.Duration
	n    int
}

func (r *durationRing) snapshot() durationStats {
	if r.count == 0 {
		return durationStats{}
	}
	var sum, longest time.Duration
	for i := 0; i < r.count; i++ {
		d := r.buf[i]
		sum += d
		longest = max(longest, d)
	}
	lastIdx := (r.idx - 1 + len(r.buf)) % len(r.buf)
	return durationStats{
		last: r.buf[lastIdx],
		max:  longest,
		avg:  sum / time.Duration(r.count),
		n:    r.count,
	}
}

// streamMetrics implements pipeline.Observer for the stats block. The
// counters are read from the render goroutine while the input goroutine
// writes them.
type streamMetrics struct {
	enabled atomic.Bool

	startedNs     atomic.Int64
	bytes         atomic.Uint64
	accepted      atomic.Uint64
	rejected      atomic.Uint64
	firstSampleNs atomic.Int64
	lastSampleNs  atomic.Int64

	mu         sync.Mutex
	feed       *durationRing
	lastReject string
}

func newStreamMetrics(window int) *streamMetrics {
	m := &streamMetrics{feed: newDurationRing(window)}
	m.startedNs.Store(time.Now().UnixNano())
	return m
}

func (m *streamMetrics) setEnabled(v bool) { m.enabled.Store(v) }
func (m *streamMetrics) isEnabled() bool   { return m.enabled.Load() }

func (m *streamMetrics) ObserveChunk(n int) { m.bytes.Add(uint64(n)) }

func (m *streamMetrics) ObserveSample(series.Sample, series.DisplayRange) {
	m.accepted.Add(1)
	if !m.isEnabled() {
		return
	}
	nowNs := time.Now().UnixNano()
	m.firstSampleNs.CompareAndSwap(0, nowNs)
	m.lastSampleNs.Store(nowNs)
}

func (m *streamMetrics) ObserveReject(err error) {
	m.rejected.Add(1)
	m.mu.Lock()
	m.lastReject = err.Error()
	m.mu.Unlock()
}

func (m *streamMetrics) ObserveReset() {
	m.accepted.Store(0)
	m.rejected.Store(0)
	m.firstSampleNs.Store(0)
	m.lastSampleNs.Store(0)
	m.mu.Lock()
	m.lastReject = ""
	m.mu.Unlock()
}

// observeFeed records how long one chunk took to frame and append.
func (m *streamMetrics) observeFeed(d time.Duration) {
	if !m.isEnabled() {
		return
	}
	m.mu.Lock()
	m.feed.add(d)
	m.mu.Unlock()
}

type snapshot struct {
	started    time.Time
	bytes      uint64
	records    uint64
	rejected   uint64
	avgRps     uint64
	feed       durationStats
	lastReject string
}

func (m *streamMetrics) snapshot() snapshot {
	s := snapshot{
		bytes:    m.bytes.Load(),
		records:  m.accepted.Load(),
		rejected: m.rejected.Load(),
	}
	if startedNs := m.startedNs.Load(); startedNs != 0 {
		s.started = time.Unix(0, startedNs)
	}

	first, last := m.firstSampleNs.Load(), m.lastSampleNs.Load()
	if first != 0 && last > first {
		active := time.Duration(last - first)
		s.avgRps = uint64(float64(s.records)/active.Seconds() + 0.5)
	}

	m.mu.Lock()
	s.feed = m.feed.snapshot()
	s.lastReject = m.lastReject
	m.mu.Unlock()
	return s
}
