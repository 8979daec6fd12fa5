package metrics_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/heytcass/f12mqtt/telemetry/metrics"
)

func TestOTelProviderBuildsInstrumentsWithoutError(t *testing.T) {
	p := metrics.NewOTelProvider(metrics.OTelProviderOptions{ServiceName: "f12mqtt-test"})

	counter := p.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
		Namespace: "f12mqtt", Subsystem: "publisher", Name: "published_total", Labels: []string{"result"},
	}})
	gauge := p.NewGauge(metrics.GaugeOpts{CommonOpts: metrics.CommonOpts{Name: "connected"}})
	hist := p.NewHistogram(metrics.HistogramOpts{CommonOpts: metrics.CommonOpts{Name: "latency_seconds"}})
	timerFn := p.NewTimer(metrics.HistogramOpts{CommonOpts: metrics.CommonOpts{Name: "op_seconds"}})

	assert.NotPanics(t, func() {
		counter.Inc(1, "ok")
		gauge.Set(5)
		gauge.Set(3)
		gauge.Add(2)
		hist.Observe(0.5)
		timerFn().ObserveDuration()
	})
	assert.NoError(t, p.Health(context.Background()))
}

func TestOTelGaugeRepeatedSetDoesNotPanic(t *testing.T) {
	// Set is implemented as an UpDownCounter delta; calling it repeatedly
	// must not panic even when the net delta is negative or zero.
	p := metrics.NewOTelProvider(metrics.OTelProviderOptions{})
	gauge := p.NewGauge(metrics.GaugeOpts{CommonOpts: metrics.CommonOpts{Name: "gauge_delta_test"}})
	assert.NotPanics(t, func() {
		gauge.Set(10)
		gauge.Set(10)
		gauge.Set(4)
	})
}
