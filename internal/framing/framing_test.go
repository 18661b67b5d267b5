package framing

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strs(recs []Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.String())
	}
	return out
}

func feedAll(e *Extractor, chunks ...string) []string {
	var out []string
	for _, c := range chunks {
		out = append(out, strs(e.Feed([]byte(c)))...)
	}
	return out
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("line")
	require.NoError(t, err)
	assert.Equal(t, ModeLine, m)

	m, err = ParseMode("delim")
	require.NoError(t, err)
	assert.Equal(t, ModeDelimited, m)

	_, err = ParseMode("csv")
	assert.Error(t, err)
}

func TestDelimitedAcrossChunks(t *testing.T) {
	e := New(ModeDelimited)
	assert.Equal(t, []string{"12.5"}, strs(e.Feed([]byte("12.5:7"))))
	assert.Equal(t, 1, e.Buffered())
	assert.Equal(t, []string{"7.3"}, strs(e.Feed([]byte(".3:"))))
	assert.Equal(t, 0, e.Buffered())
}

func TestLineModeCollapsesBlankLines(t *testing.T) {
	e := New(ModeLine)
	assert.Equal(t, []string{"5", "6"}, strs(e.Feed([]byte("\n\n5\n\n6\n"))))
	assert.Equal(t, 0, e.Buffered())
}

func TestLineModeIgnoresDelimiterOption(t *testing.T) {
	e := New(ModeLine, WithDelimiter(';'))
	assert.Equal(t, byte('\n'), e.Delimiter())
	assert.Equal(t, []string{"1;2"}, feedAll(e, "1;2\n"))
}

func TestCustomDelimiter(t *testing.T) {
	e := New(ModeDelimited, WithDelimiter(';'))
	assert.Equal(t, []string{"1", "2", "3"}, feedAll(e, "1;2", ";3;"))
}

func TestNoDelimiterDefers(t *testing.T) {
	e := New(ModeDelimited)
	assert.Empty(t, e.Feed([]byte("123")))
	assert.Empty(t, e.Feed(nil))
	assert.Empty(t, e.Feed([]byte{}))
	assert.Equal(t, 3, e.Buffered())
	assert.Equal(t, []string{"1234"}, strs(e.Feed([]byte("4:"))))
}

func TestDelimiterRunsYieldNoEmptyRecords(t *testing.T) {
	tests := []struct {
		name   string
		mode   Mode
		input  string
		expect []string
	}{
		{"colon run", ModeDelimited, "::1:::2::", []string{"1", "2"}},
		{"only delimiters", ModeDelimited, ":::::", nil},
		{"whitespace records", ModeDelimited, " : \t:3:", []string{"3"}},
		{"blank lines", ModeLine, "\n\n\n", nil},
		{"crlf", ModeLine, "1\r\n2\r\n\r\n", []string{"1", "2"}},
		{"spaces between lines", ModeLine, "  \n 4 \n", []string{"4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := feedAll(New(tt.mode), tt.input)
			assert.Equal(t, tt.expect, got)
			for _, r := range got {
				assert.NotEmpty(t, r)
			}
		})
	}
}

func TestRecordsDoNotAliasBuffer(t *testing.T) {
	e := New(ModeDelimited)
	recs := e.Feed([]byte("11:22"))
	require.Len(t, recs, 1)
	e.Feed([]byte("33:44:55:"))
	assert.Equal(t, "11", recs[0].String())
}

func TestReset(t *testing.T) {
	e := New(ModeLine)
	e.Feed([]byte("partial"))
	e.Reset()
	assert.Equal(t, 0, e.Buffered())
	assert.Equal(t, []string{"9"}, feedAll(e, "9\n"))
}

func TestChunkBoundaryInvariance(t *testing.T) {
	streams := []struct {
		mode  Mode
		input string
	}{
		{ModeDelimited, "12.5:7.3::-1e3: 4 :abc:0.25:"},
		{ModeLine, "\n\n5\n\n6\n7.75\r\n\n-0.5\nxyz\n8"},
	}
	for _, s := range streams {
		t.Run(s.mode.String(), func(t *testing.T) {
			whole := feedAll(New(s.mode), s.input)

			// Every single split point.
			for i := 0; i <= len(s.input); i++ {
				got := feedAll(New(s.mode), s.input[:i], s.input[i:])
				assert.Equal(t, whole, got, "split at %d", i)
			}

			// Byte at a time.
			e := New(s.mode)
			var got []string
			for i := 0; i < len(s.input); i++ {
				got = append(got, strs(e.Feed([]byte{s.input[i]}))...)
			}
			assert.Equal(t, whole, got)

			// Random splittings.
			rng := rand.New(rand.NewPCG(1, 2))
			for range 200 {
				e := New(s.mode)
				var got []string
				rest := s.input
				for len(rest) > 0 {
					n := rng.IntN(len(rest) + 1)
					got = append(got, strs(e.Feed([]byte(rest[:n])))...)
					rest = rest[n:]
				}
				assert.Equal(t, whole, got)
			}
		})
	}
}
