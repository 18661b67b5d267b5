package pipeline

import "github.com/keilerkonzept/serialplot/internal/series"

// Observer receives session events. Calls happen on the goroutine that
// drives the session and must not block.
type Observer interface {
	ObserveChunk(n int)
	ObserveSample(smp series.Sample, rng series.DisplayRange)
	ObserveReject(err error)
	ObserveReset()
}

// Observers fans events out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type multiObserver []Observer

func (m multiObserver) ObserveChunk(n int) {
	for _, o := range m {
		o.ObserveChunk(n)
	}
}

func (m multiObserver) ObserveSample(smp series.Sample, rng series.DisplayRange) {
	for _, o := range m {
		o.ObserveSample(smp, rng)
	}
}

func (m multiObserver) ObserveReject(err error) {
	for _, o := range m {
		o.ObserveReject(err)
	}
}

func (m multiObserver) ObserveReset() {
	for _, o := range m {
		o.ObserveReset()
	}
}

type nopObserver struct{}

func (nopObserver) ObserveChunk(int)                                 {}
func (nopObserver) ObserveSample(series.Sample, series.DisplayRange) {}
func (nopObserver) ObserveReject(error)                              {}
func (nopObserver) ObserveReset()                                    {}
