package main

import (
	"sort"
	"strconv"
	"time"

	"github.com/keilerkonzept/topk/heap"
)

// readingRanker keeps the leaderboard of frequent readings. It re-reads
// the whole top-K from the sketch every fullRefresh and in between only
// refreshes counts for the leading partialSize entries.
type readingRanker struct {
	k           int
	fullRefresh time.Duration
	partialSize int

	lastFullRefresh time.Time
	items           []heap.Item
}

func newReadingRanker(k int, fullRefresh time.Duration, partialSize int) *readingRanker {
	if k < 1 {
		k = 1
	}
	if fullRefresh < 0 {
		fullRefresh = 2 * time.Second
	}
	return &readingRanker{
		k:           k,
		fullRefresh: fullRefresh,
		partialSize: max(0, partialSize),
	}
}

// refresh returns an updated copy of the leaderboard. sortedFn yields the
// sketch's full top-K; countsFn updates Count in place for items[:limit].
func (r *readingRanker) refresh(now time.Time, sortedFn func() []heap.Item, countsFn func(items []heap.Item, limit int)) (items []heap.Item, didFull bool) {
	if now.IsZero() {
		now = time.Now()
	}

	needFull := len(r.items) == 0 || r.lastFullRefresh.IsZero() ||
		r.fullRefresh == 0 || now.Sub(r.lastFullRefresh) >= r.fullRefresh
	if needFull {
		r.items = sortedFn()
		if len(r.items) > r.k {
			r.items = r.items[:r.k]
		}
		r.lastFullRefresh = now
		return cloneItems(r.items), true
	}

	limit := len(r.items)
	if r.partialSize > 0 && r.partialSize < limit {
		limit = r.partialSize
	}
	countsFn(r.items, limit)
	sort.SliceStable(r.items[:limit], func(i, j int) bool {
		return rankBefore(r.items[i], r.items[j])
	})
	return cloneItems(r.items), false
}

// reset forgets the leaderboard so the next refresh is a full one.
func (r *readingRanker) reset() {
	r.items = nil
	r.lastFullRefresh = time.Time{}
}

// rankBefore orders by count, then by numeric reading so ties list the
// lower value first.
func rankBefore(a, b heap.Item) bool {
	if a.Count != b.Count {
		return a.Count > b.Count
	}
	av, aerr := strconv.ParseFloat(a.Item, 64)
	bv, berr := strconv.ParseFloat(b.Item, 64)
	if aerr == nil && berr == nil && av != bv {
		return av < bv
	}
	return a.Item < b.Item
}

func cloneItems(in []heap.Item) []heap.Item {
	out := make([]heap.Item, len(in))
	copy(out, in)
	return out
}
