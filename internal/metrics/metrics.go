package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/AnatoleLucet/render/internal"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	phaseRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "render",
			Subsystem: "phase",
			Name:      "runs_total",
			Help:      "Phase runs by phase and outcome.",
		},
		[]string{"phase", "outcome"},
	)
	phaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "render",
			Subsystem: "phase",
			Name:      "duration_seconds",
			Help:      "Phase run duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
		[]string{"phase"},
	)
	sweeps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "render",
			Subsystem: "driver",
			Name:      "sweeps_total",
			Help:      "Sweeps that ran at least one phase.",
		},
	)
	settled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "render",
			Subsystem: "driver",
			Name:      "settled_total",
			Help:      "Renders that reached a fixed point.",
		},
	)
	stalls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "render",
			Subsystem: "driver",
			Name:      "stalls_total",
			Help:      "Renders abandoned without converging.",
		},
	)
	effectsRegistered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "render",
			Subsystem: "effect",
			Name:      "registered_total",
			Help:      "Background effects registered.",
		},
		[]string{"effect"},
	)
	effectFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "render",
			Subsystem: "effect",
			Name:      "failures_total",
			Help:      "Background effects that resolved with an error.",
		},
		[]string{"effect"},
	)
	effectsOutstanding = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "render",
			Subsystem: "effect",
			Name:      "outstanding",
			Help:      "Background effects registered and not yet resolved.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "render",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "render",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			phaseRuns, phaseDuration,
			sweeps, settled, stalls,
			effectsRegistered, effectFailures, effectsOutstanding,
			httpRequests, httpDuration,
		)
	})
}

// Attach feeds the collectors from d's lifecycle events until the returned
// function is called.
func Attach(d *internal.Driver) func() {
	RegisterMetrics()
	return d.On(internal.EventAny, Observe)
}

// Observe records one lifecycle event.
func Observe(e internal.Event) {
	switch e.Kind {
	case internal.EventPhaseEnd:
		outcome := "ok"
		if e.Err != nil {
			outcome = "error"
		}
		phaseRuns.WithLabelValues(string(e.Phase), outcome).Inc()
		phaseDuration.WithLabelValues(string(e.Phase)).Observe(e.Duration.Seconds())
	case internal.EventSweepStart:
		sweeps.Inc()
	case internal.EventSettled:
		settled.Inc()
	case internal.EventStalled:
		stalls.Inc()
	case internal.EventEffectRegistered:
		effectsRegistered.WithLabelValues(e.Effect).Inc()
		effectsOutstanding.Inc()
	case internal.EventEffectResolved:
		effectsOutstanding.Dec()
		if e.Err != nil {
			effectFailures.WithLabelValues(e.Effect).Inc()
		}
	}
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
