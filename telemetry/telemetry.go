// Package telemetry provides observational tracing and metrics helpers: span
// starters for the k-way merge flush, the refresh loop tick, and the
// validator's dry-run decision, plus prometheus vectors for flush
// throughput, cache hit/miss, refresh ticks, and trip-switch state. Only
// ObserveFlush (through flush.Metrics) and ObserveTripSwitch are called from
// the rest of this module; the span starters, ObserveCacheLookup,
// ObserveRefresh, BufferDepth and ValidationErrors are not called by any
// other package. None of this is read by correctness-critical code.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config mirrors config.Telemetry.
type Config struct {
	ServiceName string
	Enabled     bool
	SampleRatio float64
}

// Provider owns the tracer provider for the process; Shutdown flushes and
// releases it. When Config.Enabled is false, Init installs nothing and
// otel's default no-op tracer provider stays in place, so callers never need
// a nil check.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// Init installs a global tracer provider for serviceName. With no OTLP
// exporter wired into this module's dependency set, spans are sampled and
// recorded in-process (useful for propagation and local debugging) but not
// shipped anywhere; operators who want export attach an exporter at the
// hosting layer, outside this package's scope.
func Init(cfg Config) *Provider {
	if !cfg.Enabled {
		// otel's package-level default tracer provider is already a no-op
		// until something calls SetTracerProvider, so disabling telemetry
		// is simply "don't install one."
		return &Provider{}
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 {
		ratio = 1.0
	}

	res, _ := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName)),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(ratio)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return &Provider{tp: tp}
}

// Shutdown releases the tracer provider's resources, if one was installed.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// Tracer returns the named tracer from the global provider.
func Tracer(name string) trace.Tracer { return otel.Tracer(name) }

// StartFlushSpan opens the span around one k-way merge flush cycle.
func StartFlushSpan(ctx context.Context) (context.Context, trace.Span) {
	return Tracer("accessctl/flush").Start(ctx, "flush.KWayMerge")
}

// StartRefreshSpan opens the span around one reader refresh tick.
func StartRefreshSpan(ctx context.Context) (context.Context, trace.Span) {
	return Tracer("accessctl/reader").Start(ctx, "reader.Tick")
}

// StartValidateSpan opens the span around one validator dry-run decision.
func StartValidateSpan(ctx context.Context, mutation string) (context.Context, trace.Span) {
	return Tracer("accessctl/validate").Start(ctx, "validate."+mutation)
}

// Metrics holds the prometheus vectors this module registers, all namespaced
// under one per-binary prefix.
type Metrics struct {
	FlushDuration    prometheus.Histogram
	FlushedCount     prometheus.Counter
	MovedBackCount   prometheus.Counter
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	RefreshDuration  prometheus.Histogram
	RefreshErrors    prometheus.Counter
	TripSwitchState  prometheus.Gauge
	BufferDepth      *prometheus.GaugeVec
	ValidationErrors *prometheus.CounterVec
}

// NewMetrics registers and returns the module's prometheus vectors against
// the default registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "accessctl"
	}
	return &Metrics{
		FlushDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Duration of one k-way merge flush cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		FlushedCount: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_events_total",
			Help:      "Total events dispatched to persisters across all flush cycles.",
		}),
		MovedBackCount: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_moved_back_total",
			Help:      "Total events moved back to the live queue because they arrived after the flush's maxSeq snapshot.",
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "GetAllEventsSince calls that found the requested event id.",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "GetAllEventsSince calls that returned ErrEventNotCached.",
		}),
		RefreshDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reader_refresh_duration_seconds",
			Help:      "Duration of one reader refresh tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		RefreshErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reader_refresh_errors_total",
			Help:      "Reader refresh ticks that stashed an error on the exception slot.",
		}),
		TripSwitchState: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "trip_switch_actuated",
			Help:      "1 if the trip switch has actuated, 0 otherwise.",
		}),
		BufferDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_depth",
			Help:      "Current queued event count per family.",
		}, []string{"family"}),
		ValidationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_errors_total",
			Help:      "Mutations rejected by the validator, by mutation name.",
		}, []string{"mutation"}),
	}
}

// ObserveFlush implements flush.Metrics.
func (m *Metrics) ObserveFlush(duration time.Duration, flushed, movedBack int) {
	if m == nil {
		return
	}
	m.FlushDuration.Observe(duration.Seconds())
	m.FlushedCount.Add(float64(flushed))
	m.MovedBackCount.Add(float64(movedBack))
}

// ObserveCacheLookup records a cache hit or miss from GetAllEventsSince.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
		return
	}
	m.CacheMisses.Inc()
}

// ObserveRefresh records one reader refresh tick's duration and whether it
// stashed an error.
func (m *Metrics) ObserveRefresh(duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.RefreshDuration.Observe(duration.Seconds())
	if failed {
		m.RefreshErrors.Inc()
	}
}

// ObserveTripSwitch records the current actuation state.
func (m *Metrics) ObserveTripSwitch(tripped bool) {
	if m == nil {
		return
	}
	if tripped {
		m.TripSwitchState.Set(1)
		return
	}
	m.TripSwitchState.Set(0)
}
