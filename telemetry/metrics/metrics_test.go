package metrics_test

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heytcass/f12mqtt/telemetry/metrics"
)

func TestNoopProviderDiscardsEverything(t *testing.T) {
	p := metrics.NewNoopProvider()
	c := p.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Name: "x"}})
	g := p.NewGauge(metrics.GaugeOpts{CommonOpts: metrics.CommonOpts{Name: "y"}})
	h := p.NewHistogram(metrics.HistogramOpts{CommonOpts: metrics.CommonOpts{Name: "z"}})
	timerFn := p.NewTimer(metrics.HistogramOpts{CommonOpts: metrics.CommonOpts{Name: "w"}})

	assert.NotPanics(t, func() {
		c.Inc(1)
		g.Set(2)
		g.Add(-1)
		h.Observe(3)
		timerFn().ObserveDuration()
	})
	assert.NoError(t, p.Health(context.Background()))
}

func TestPrometheusProviderRegistersAndObserves(t *testing.T) {
	reg := prom.NewRegistry()
	p := metrics.NewPrometheusProvider(metrics.PrometheusProviderOptions{Registry: reg})

	counter := p.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
		Namespace: "f12mqtt", Subsystem: "publisher", Name: "published_total", Labels: []string{"result"},
	}})
	counter.Inc(1, "ok")
	counter.Inc(2, "ok")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range mfs {
		if mf.GetName() == "f12mqtt_publisher_published_total" {
			found = true
			require.Len(t, mf.Metric, 1)
			assert.Equal(t, 3.0, mf.Metric[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found, "expected counter to be registered under its fully-qualified name")
}

func TestPrometheusProviderInvalidNameFallsBackToNoop(t *testing.T) {
	p := metrics.NewPrometheusProvider(metrics.PrometheusProviderOptions{})
	c := p.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Name: "has a space"}})
	assert.NotPanics(t, func() { c.Inc(1) })
}

func TestPrometheusProviderReusesExistingCollectorForSameName(t *testing.T) {
	p := metrics.NewPrometheusProvider(metrics.PrometheusProviderOptions{})
	opts := metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Name: "reused_total"}}
	c1 := p.NewCounter(opts)
	c2 := p.NewCounter(opts)
	c1.Inc(1)
	c2.Inc(1)
	// Both handles must point at the same underlying series; verified
	// indirectly via MetricsHandler below rendering a single sample line.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	p.MetricsHandler().ServeHTTP(rec, req)
	body, _ := io.ReadAll(rec.Result().Body)
	assert.Contains(t, string(body), "reused_total 2")
}

func TestPrometheusTimerObservesElapsedDuration(t *testing.T) {
	p := metrics.NewPrometheusProvider(metrics.PrometheusProviderOptions{})
	timerFn := p.NewTimer(metrics.HistogramOpts{CommonOpts: metrics.CommonOpts{Name: "op_duration_seconds"}})
	timer := timerFn()
	assert.NotPanics(t, func() { timer.ObserveDuration() })
}

func TestPrometheusProviderHealthReflectsRegistrationProblems(t *testing.T) {
	reg := prom.NewRegistry()
	// Pre-register a plain collector under the same name so our CounterVec
	// registration collides with an incompatible type, forcing a real error.
	require.NoError(t, reg.Register(prom.NewGauge(prom.GaugeOpts{Name: "collides"})))

	p := metrics.NewPrometheusProvider(metrics.PrometheusProviderOptions{Registry: reg})
	p.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Name: "collides"}})

	assert.Error(t, p.Health(context.Background()))
}
