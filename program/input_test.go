package main

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keilerkonzept/serialplot/internal/framing"
	"github.com/keilerkonzept/serialplot/internal/pipeline"
)

func newTestSession(t *testing.T, mode framing.Mode, capacity int) *pipeline.Session {
	t.Helper()
	cfg := pipeline.DefaultConfig()
	cfg.Mode = mode
	cfg.Capacity = capacity
	s, err := pipeline.NewSession(cfg)
	require.NoError(t, err)
	return s
}

func TestPumpOneByteReads(t *testing.T) {
	s := newTestSession(t, framing.ModeDelimited, 10)
	var chunks int
	err := pump(iotest.OneByteReader(strings.NewReader("12.5:7.3:abc:1:")), pumpOptions{chunkSize: 64}, func(chunk []byte) int {
		chunks++
		return len(s.Deliver(chunk).Accepted)
	})
	require.NoError(t, err)
	assert.Equal(t, 15, chunks)

	v := s.Snapshot()
	require.Len(t, v.Samples, 3)
	assert.Equal(t, 7.3, v.Samples[1].Value)
	assert.Equal(t, uint64(1), s.Rejected())
}

func TestPumpStopsAtMaxRecords(t *testing.T) {
	s := newTestSession(t, framing.ModeLine, 10)
	err := pump(strings.NewReader("1\n2\n3\n4\n5\n"), pumpOptions{chunkSize: 2, maxRecords: 2}, func(chunk []byte) int {
		return len(s.Deliver(chunk).Accepted)
	})
	require.NoError(t, err)
	assert.Len(t, s.Snapshot().Samples, 2)
}

func TestPumpReturnsReadErrors(t *testing.T) {
	boom := errors.New("device unplugged")
	r := io.MultiReader(strings.NewReader("1\n"), iotest.ErrReader(boom))
	var accepted int
	err := pump(r, pumpOptions{chunkSize: 8}, func(chunk []byte) int {
		accepted++
		return 1
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, accepted)
}

func TestPumpWaitsEachRead(t *testing.T) {
	var waits int
	err := pump(iotest.OneByteReader(strings.NewReader("abc")), pumpOptions{chunkSize: 8, wait: func() { waits++ }}, func([]byte) int { return 0 })
	require.NoError(t, err)
	assert.GreaterOrEqual(t, waits, 3)
}

func TestRunPlain(t *testing.T) {
	s := newTestSession(t, framing.ModeLine, 3)
	cfg := defaultConfig()
	cfg.ChunkSize = 3

	var out bytes.Buffer
	require.NoError(t, runPlain(s, strings.NewReader("\n\n5\n\n6\nx\n7.25\n"), cfg, &out))
	assert.Equal(t, "0\t5\n1\t6\n2\t7.25\n", out.String())
}

func TestOpenInputPrefersFile(t *testing.T) {
	cfg := defaultConfig()
	cfg.InputPath = "testdata/signal.txt"
	r, name, ok, err := openInput(cfg)
	require.NoError(t, err)
	require.True(t, ok)
	defer r.Close()
	assert.Equal(t, "testdata/signal.txt", name)

	s := newTestSession(t, framing.ModeLine, 100)
	require.NoError(t, pump(r, pumpOptions{chunkSize: 16}, func(chunk []byte) int {
		return len(s.Deliver(chunk).Accepted)
	}))
	assert.Len(t, s.Snapshot().Samples, 8)
}

func TestOpenInputMissingFile(t *testing.T) {
	cfg := defaultConfig()
	cfg.InputPath = "testdata/does-not-exist.txt"
	_, _, _, err := openInput(cfg)
	assert.Error(t, err)
}
