package telemetry

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keilerkonzept/serialplot/internal/framing"
	"github.com/keilerkonzept/serialplot/internal/pipeline"
	"github.com/keilerkonzept/serialplot/internal/series"
)

func TestCollectorObservesSession(t *testing.T) {
	c := New("serialplot")
	cfg := pipeline.DefaultConfig()
	cfg.Mode = framing.ModeDelimited
	cfg.Capacity = 2
	s, err := pipeline.NewSession(cfg, pipeline.WithObserver(c))
	require.NoError(t, err)

	s.Deliver([]byte("1:x:5:3:"))

	assert.Equal(t, 8.0, testutil.ToFloat64(c.bytesReceived))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.recordsAccepted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.recordsRejected))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.windowSamples))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.lastValue))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.yMin))
	assert.Equal(t, 6.0, testutil.ToFloat64(c.yMax))

	s.Reset()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.resets))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.windowSamples))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New("serialplot")
	c.ObserveSample(series.Sample{Step: 0, Value: 2}, series.DisplayRange{YMin: 1, YMax: 3})
	c.ObserveReject(errors.New("bad"))

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "serialplot_records_accepted_total 1")
	assert.Contains(t, string(body), "serialplot_records_rejected_total 1")
	assert.Contains(t, string(body), "serialplot_display_y_max 3")
}
