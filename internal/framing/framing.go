// Package framing splits an arbitrarily chunked byte stream into
// delimiter-terminated records.
//
// An Extractor buffers whatever has not been terminated yet, so records
// that straddle chunk boundaries come out exactly once and in order,
// regardless of how the transport cut the stream.
package framing

import (
	"bytes"
	"fmt"
)

// Mode selects the framing policy. The two modes are mutually exclusive.
type Mode int

const (
	// ModeLine terminates records with '\n'. Leading newlines are
	// collapsed before each search.
	ModeLine Mode = iota
	// ModeDelimited terminates records with a single sentinel byte.
	ModeDelimited
)

// DefaultDelimiter is the sentinel used by ModeDelimited unless
// overridden with WithDelimiter.
const DefaultDelimiter byte = ':'

func (m Mode) String() string {
	switch m {
	case ModeLine:
		return "line"
	case ModeDelimited:
		return "delim"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode maps "line" and "delim" to their Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "line":
		return ModeLine, nil
	case "delim", "delimited":
		return ModeDelimited, nil
	}
	return 0, fmt.Errorf("unknown framing mode %q (want line or delim)", s)
}

// Record is one framed, whitespace-trimmed record. It never aliases the
// extractor's buffer.
type Record []byte

func (r Record) String() string { return string(r) }

type Option func(*Extractor)

// WithDelimiter sets the sentinel byte for ModeDelimited. Line mode
// always uses '\n'.
func WithDelimiter(d byte) Option {
	return func(e *Extractor) { e.delim = d }
}

// Extractor owns the accumulation buffer. It is not safe for concurrent
// use.
type Extractor struct {
	mode  Mode
	delim byte
	buf   []byte
}

func New(mode Mode, opts ...Option) *Extractor {
	e := &Extractor{mode: mode, delim: DefaultDelimiter}
	for _, opt := range opts {
		opt(e)
	}
	if mode == ModeLine {
		e.delim = '\n'
	}
	return e
}

func (e *Extractor) Mode() Mode      { return e.mode }
func (e *Extractor) Delimiter() byte { return e.delim }

// Buffered reports how many bytes are waiting for a delimiter.
func (e *Extractor) Buffered() int { return len(e.buf) }

// Feed appends chunk and drains every complete record now available.
// Incomplete trailing data stays buffered for the next call. Empty
// records (after trimming) are dropped.
func (e *Extractor) Feed(chunk []byte) []Record {
	e.buf = append(e.buf, chunk...)

	var out []Record
	off := 0
	for {
		if e.mode == ModeLine {
			for off < len(e.buf) && e.buf[off] == e.delim {
				off++
			}
		}
		p := bytes.IndexByte(e.buf[off:], e.delim)
		if p < 0 {
			break
		}
		field := bytes.TrimSpace(e.buf[off : off+p])
		off += p + 1
		if len(field) == 0 {
			continue
		}
		out = append(out, Record(bytes.Clone(field)))
	}
	e.consume(off)
	return out
}

// consume drops the first n bytes, moving the remainder to the front so
// the backing array does not grow with the stream.
func (e *Extractor) consume(n int) {
	if n == 0 {
		return
	}
	rest := copy(e.buf, e.buf[n:])
	e.buf = e.buf[:rest]
}

// Reset discards all buffered bytes.
func (e *Extractor) Reset() {
	e.buf = e.buf[:0]
}
