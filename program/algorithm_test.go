package main

import (
	"testing"
	"time"

	"github.com/keilerkonzept/topk/heap"
	"github.com/stretchr/testify/assert"
)

func TestRankerFullThenPartial(t *testing.T) {
	r := newReadingRanker(2, time.Minute, 0)
	start := time.Unix(1000, 0)

	sortedCalls := 0
	sorted := func() []heap.Item {
		sortedCalls++
		return []heap.Item{{Item: "7.0", Count: 9}, {Item: "6.5", Count: 4}, {Item: "1.0", Count: 1}}
	}
	counts := map[string]uint32{"7.0": 2, "6.5": 5}
	update := func(items []heap.Item, limit int) {
		for i := 0; i < limit; i++ {
			items[i].Count = counts[items[i].Item]
		}
	}

	items, full := r.refresh(start, sorted, update)
	assert.True(t, full)
	assert.Len(t, items, 2, "trimmed to k")
	assert.Equal(t, "7.0", items[0].Item)

	items, full = r.refresh(start.Add(time.Second), sorted, update)
	assert.False(t, full)
	assert.Equal(t, 1, sortedCalls)
	assert.Equal(t, "6.5", items[0].Item, "re-sorted by refreshed counts")

	_, full = r.refresh(start.Add(2*time.Minute), sorted, update)
	assert.True(t, full)
	assert.Equal(t, 2, sortedCalls)
}

func TestRankerReset(t *testing.T) {
	r := newReadingRanker(5, time.Hour, 0)
	sorted := func() []heap.Item { return []heap.Item{{Item: "1", Count: 1}} }
	_, full := r.refresh(time.Now(), sorted, func([]heap.Item, int) {})
	assert.True(t, full)
	r.reset()
	_, full = r.refresh(time.Now(), sorted, func([]heap.Item, int) {})
	assert.True(t, full)
}

func TestRankBeforeTieBreaksNumerically(t *testing.T) {
	assert.True(t, rankBefore(heap.Item{Item: "9.5", Count: 3}, heap.Item{Item: "10.0", Count: 3}))
	assert.False(t, rankBefore(heap.Item{Item: "10.0", Count: 3}, heap.Item{Item: "9.5", Count: 3}))
	assert.True(t, rankBefore(heap.Item{Item: "10.0", Count: 4}, heap.Item{Item: "9.5", Count: 3}))
}

func TestReadingKey(t *testing.T) {
	assert.Equal(t, "21.8", readingKey(21.75, 1))
	assert.Equal(t, "22", readingKey(21.75, 0))
	assert.Equal(t, "-3.000", readingKey(-3, 3))
}

func TestDurationRing(t *testing.T) {
	r := newDurationRing(3)
	assert.Equal(t, durationStats{}, r.snapshot())
	for _, d := range []time.Duration{1, 5, 3, 7} {
		r.add(d * time.Millisecond)
	}
	s := r.snapshot()
	assert.Equal(t, 3, s.n)
	assert.Equal(t, 7*time.Millisecond, s.last)
	assert.Equal(t, 7*time.Millisecond, s.max)
	assert.Equal(t, 5*time.Millisecond, s.avg)
}

func TestComputePaneWidths(t *testing.T) {
	l, r := computePaneWidths(100, 30)
	assert.Equal(t, 30, l)
	assert.Equal(t, 70, r)

	l, r = computePaneWidths(40, 20)
	assert.Equal(t, 18, l)
	assert.Equal(t, 22, r)

	l, r = computePaneWidths(1, 50)
	assert.Equal(t, 1, l)
	assert.Equal(t, 1, r)
}
