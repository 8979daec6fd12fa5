package metrics

// Optional OTel metrics bridge implementing the same Provider interface as
// the Prometheus backend, for operators who already run an OTel collector
// (SPEC_FULL.md §0.4). Gauges simulate Set semantics via an UpDownCounter
// delta application, same as the teacher's bridge.

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type OTelProviderOptions struct {
	ServiceName string
}

// NewOTelProvider returns a metrics.Provider backed by an OTel MeterProvider.
func NewOTelProvider(opts OTelProviderOptions) Provider {
	mp := sdkmetric.NewMeterProvider()
	meter := mp.Meter("f12mqtt")
	return &otelProvider{mp: mp, meter: meter}
}

type otelProvider struct {
	mp    *sdkmetric.MeterProvider
	meter metric.Meter
}

func (p *otelProvider) NewCounter(opts CounterOpts) Counter {
	name := buildOTelName(opts.CommonOpts)
	inst, err := p.meter.Float64Counter(name, metric.WithDescription(opts.Help))
	if err != nil {
		return noopCounter{}
	}
	return &otelCounter{c: inst, labelKeys: opts.Labels}
}

func (p *otelProvider) NewGauge(opts GaugeOpts) Gauge {
	name := buildOTelName(opts.CommonOpts)
	inst, err := p.meter.Float64UpDownCounter(name, metric.WithDescription(opts.Help))
	if err != nil {
		return noopGauge{}
	}
	return &otelGauge{g: inst, labelKeys: opts.Labels}
}

func (p *otelProvider) NewHistogram(opts HistogramOpts) Histogram {
	name := buildOTelName(opts.CommonOpts)
	inst, err := p.meter.Float64Histogram(name, metric.WithDescription(opts.Help))
	if err != nil {
		return noopHistogram{}
	}
	return &otelHistogram{h: inst, labelKeys: opts.Labels}
}

func (p *otelProvider) NewTimer(h HistogramOpts) func() Timer {
	hist := p.NewHistogram(h)
	return func() Timer { return &otelTimer{h: hist, start: time.Now()} }
}

func (p *otelProvider) Health(context.Context) error { return nil }

func buildOTelName(c CommonOpts) string {
	switch {
	case c.Namespace != "" && c.Subsystem != "":
		return c.Namespace + "." + c.Subsystem + "." + c.Name
	case c.Namespace != "":
		return c.Namespace + "." + c.Name
	case c.Subsystem != "":
		return c.Subsystem + "." + c.Name
	default:
		return c.Name
	}
}

type otelCounter struct {
	c         metric.Float64Counter
	labelKeys []string
}

func (c *otelCounter) Inc(delta float64, labels ...string) {
	if delta <= 0 {
		return
	}
	if len(c.labelKeys) == 0 || len(labels) == 0 {
		c.c.Add(context.Background(), delta)
		return
	}
	c.c.Add(context.Background(), delta, metric.WithAttributes(toAttributes(c.labelKeys, labels)...))
}

type otelGauge struct {
	g         metric.Float64UpDownCounter
	value     atomic.Value
	mu        sync.Mutex
	labelKeys []string
}

func (g *otelGauge) Set(v float64, labels ...string) {
	g.mu.Lock()
	prev, _ := g.value.Load().(float64)
	diff := v - prev
	g.value.Store(v)
	g.mu.Unlock()
	if diff == 0 {
		return
	}
	if len(g.labelKeys) == 0 || len(labels) == 0 {
		g.g.Add(context.Background(), diff)
		return
	}
	g.g.Add(context.Background(), diff, metric.WithAttributes(toAttributes(g.labelKeys, labels)...))
}

func (g *otelGauge) Add(delta float64, labels ...string) {
	if delta == 0 {
		return
	}
	g.mu.Lock()
	prev, _ := g.value.Load().(float64)
	g.value.Store(prev + delta)
	g.mu.Unlock()
	if len(g.labelKeys) == 0 || len(labels) == 0 {
		g.g.Add(context.Background(), delta)
		return
	}
	g.g.Add(context.Background(), delta, metric.WithAttributes(toAttributes(g.labelKeys, labels)...))
}

type otelHistogram struct {
	h         metric.Float64Histogram
	labelKeys []string
}

func (h *otelHistogram) Observe(value float64, labels ...string) {
	if len(h.labelKeys) == 0 || len(labels) == 0 {
		h.h.Record(context.Background(), value)
		return
	}
	h.h.Record(context.Background(), value, metric.WithAttributes(toAttributes(h.labelKeys, labels)...))
}

type otelTimer struct {
	h     Histogram
	start time.Time
}

func (t *otelTimer) ObserveDuration(labels ...string) {
	t.h.Observe(time.Since(t.start).Seconds(), labels...)
}

func toAttributes(keys, values []string) []attribute.KeyValue {
	n := len(keys)
	if len(values) < n {
		n = len(values)
	}
	if n == 0 {
		return nil
	}
	out := make([]attribute.KeyValue, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, attribute.String(keys[i], values[i]))
	}
	return out
}
