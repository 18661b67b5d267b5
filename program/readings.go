package main

import (
	"strconv"
	"sync"
	"time"

	"github.com/keilerkonzept/topk/heap"
	"github.com/keilerkonzept/topk/sliding"
)

// readingKey buckets a value for frequency counting.
func readingKey(v float64, decimals int) string {
	return strconv.FormatFloat(v, 'f', decimals, 64)
}

// readingCounter wraps the sliding top-K sketch of rounded readings.
type readingCounter struct {
	cfg Config

	mu     sync.Mutex
	sketch *sliding.Sketch
	last   time.Time
}

func newReadingCounter(cfg Config) *readingCounter {
	c := &readingCounter{cfg: cfg}
	c.sketch = c.newSketch()
	return c
}

func (c *readingCounter) newSketch() *sliding.Sketch {
	return sliding.New(c.cfg.K,
		int(c.cfg.WindowSize/c.cfg.TickSize),
		sliding.WithWidth(c.cfg.Width),
		sliding.WithDepth(c.cfg.Depth),
		sliding.WithDecay(float32(c.cfg.Decay)),
		sliding.WithDecayLUTSize(c.cfg.DecayLUTSize),
	)
}

func (c *readingCounter) observe(v float64) {
	key := readingKey(v, c.cfg.ReadingDecimals)
	c.mu.Lock()
	c.sketch.Incr(key)
	c.mu.Unlock()
}

// tick advances the sketch by however many whole ticks elapsed since the
// previous call.
func (c *readingCounter) tick(t time.Time) {
	t = t.Truncate(c.cfg.TickSize)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last.IsZero() {
		c.last = t
		return
	}
	if ticks := int(t.Sub(c.last) / c.cfg.TickSize); ticks > 0 {
		c.sketch.Ticks(ticks)
		c.last = t
	}
}

func (c *readingCounter) sorted() []heap.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sketch.SortedSlice()
}

func (c *readingCounter) updateCounts(items []heap.Item, limit int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < limit; i++ {
		items[i].Count = c.sketch.Count(items[i].Item)
	}
}

func (c *readingCounter) reset() {
	c.mu.Lock()
	c.sketch = c.newSketch()
	c.last = time.Time{}
	c.mu.Unlock()
}
