package main

import (
	"strings"
	"sync"
)

// rawTail keeps the most recent bytes read from the input, as received
// and before framing, for the raw input pane.
type rawTail struct {
	mu    sync.Mutex
	buf   []byte
	limit int
	total uint64
}

func newRawTail(limit int) *rawTail {
	return &rawTail{limit: max(1, limit)}
}

func (r *rawTail) write(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total += uint64(len(p))
	if len(p) >= r.limit {
		r.buf = append(r.buf[:0], p[len(p)-r.limit:]...)
		return
	}
	if drop := len(r.buf) + len(p) - r.limit; drop > 0 {
		r.buf = append(r.buf[:0], r.buf[drop:]...)
	}
	r.buf = append(r.buf, p...)
}

func (r *rawTail) reset() {
	r.mu.Lock()
	r.buf = r.buf[:0]
	r.mu.Unlock()
}

// text renders the tail for the terminal. Carriage returns are dropped
// and other control bytes shown as '.', so device output cannot move
// the cursor.
func (r *rawTail) text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sb strings.Builder
	sb.Grow(len(r.buf))
	for _, b := range r.buf {
		switch {
		case b == '\r':
		case b == '\n' || b == '\t':
			sb.WriteByte(b)
		case b < 0x20 || b == 0x7f:
			sb.WriteByte('.')
		default:
			sb.WriteByte(b)
		}
	}
	return sb.String()
}
