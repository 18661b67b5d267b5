// Package telemetry exposes session counters and the current display
// range as Prometheus metrics.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keilerkonzept/serialplot/internal/series"
)

// Collector implements pipeline.Observer on top of a private registry.
type Collector struct {
	registry *prometheus.Registry

	bytesReceived   prometheus.Counter
	recordsAccepted prometheus.Counter
	recordsRejected prometheus.Counter
	resets          prometheus.Counter

	windowSamples prometheus.Gauge
	lastValue     prometheus.Gauge
	yMin          prometheus.Gauge
	yMax          prometheus.Gauge
}

func New(namespace string) *Collector {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
	}
	gauge := func(subsystem, name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}

	c := &Collector{
		registry:        prometheus.NewRegistry(),
		bytesReceived:   counter("bytes_received_total", "Bytes delivered by the transport"),
		recordsAccepted: counter("records_accepted_total", "Records converted into samples"),
		recordsRejected: counter("records_rejected_total", "Records dropped because they were not numbers"),
		resets:          counter("session_resets_total", "Explicit session resets"),
		windowSamples:   gauge("window", "samples", "Samples currently retained in the window"),
		lastValue:       gauge("window", "last_value", "Most recent accepted value"),
		yMin:            gauge("display", "y_min", "Lower bound of the display range"),
		yMax:            gauge("display", "y_max", "Upper bound of the display range"),
	}
	c.registry.MustRegister(
		c.bytesReceived, c.recordsAccepted, c.recordsRejected, c.resets,
		c.windowSamples, c.lastValue, c.yMin, c.yMax,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) ObserveChunk(n int) { c.bytesReceived.Add(float64(n)) }

func (c *Collector) ObserveSample(smp series.Sample, rng series.DisplayRange) {
	c.recordsAccepted.Inc()
	c.lastValue.Set(smp.Value)
	c.windowSamples.Set(float64(rng.XMax - rng.XMin + 1))
	c.yMin.Set(rng.YMin)
	c.yMax.Set(rng.YMax)
}

func (c *Collector) ObserveReject(error) { c.recordsRejected.Inc() }

func (c *Collector) ObserveReset() {
	c.resets.Inc()
	c.windowSamples.Set(0)
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve listens on addr and serves /metrics until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", addr, err)
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
