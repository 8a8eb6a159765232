package orchestrator

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report dialog engine activity.
type Metrics struct {
	turns           *prometheus.CounterVec
	turnDuration    prometheus.Histogram
	stageDuration   *prometheus.HistogramVec
	toolInvocations *prometheus.CounterVec
	intentSwitches  *prometheus.CounterVec
	retryLimits     *prometheus.CounterVec
	stalls          *prometheus.CounterVec
	turnsActive     prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns the metrics registered with the global Prometheus
// registry. The collectors are created only once so that building several
// engines in one process does not panic on duplicate registration.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Collectors that are already registered are reused; any other registration
// error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	const ns, sub = "tod", "dialog"

	m := &Metrics{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "turns_total",
			Help: "Turns processed, by outcome.",
		}, []string{"outcome"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub,
			Name:    "turn_duration_seconds",
			Help:    "Wall time spent processing one turn.",
			Buckets: prometheus.DefBuckets,
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub,
			Name:    "stage_duration_seconds",
			Help:    "Duration spent in each engine stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		toolInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "tool_invocations_total",
			Help: "Tool invocations, by tool and status.",
		}, []string{"tool", "status"}),
		intentSwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "intent_switches_total",
			Help: "Intent switch proposals and their resolution.",
		}, []string{"decision"}),
		retryLimits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "retry_limit_exceeded_total",
			Help: "Parameters abandoned after the clarification ceiling.",
		}, []string{"intent", "parameter"}),
		stalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "scheduling_stalls_total",
			Help: "Tools force-scheduled because their requirements were never produced.",
		}, []string{"intent", "tool"}),
		turnsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "turns_active",
			Help: "Turns currently being processed.",
		}),
	}

	m.turns = register(reg, m.turns)
	m.turnDuration = register(reg, m.turnDuration)
	m.stageDuration = register(reg, m.stageDuration)
	m.toolInvocations = register(reg, m.toolInvocations)
	m.intentSwitches = register(reg, m.intentSwitches)
	m.retryLimits = register(reg, m.retryLimits)
	m.stalls = register(reg, m.stalls)
	m.turnsActive = register(reg, m.turnsActive)
	return m
}

// register registers c, returning the existing collector when an identical
// one is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveTurn records a finished turn.
func (m *Metrics) ObserveTurn(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
	m.turnDuration.Observe(d.Seconds())
}

// ObserveStage records the time spent in a stage.
func (m *Metrics) ObserveStage(stage Stage, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage.String()).Observe(d.Seconds())
}

// IncToolInvocation counts one tool call.
func (m *Metrics) IncToolInvocation(tool string, ok bool) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "failure"
	}
	m.toolInvocations.WithLabelValues(tool, status).Inc()
}

// IncIntentSwitch counts a switch proposal or its resolution.
func (m *Metrics) IncIntentSwitch(decision string) {
	if m == nil {
		return
	}
	m.intentSwitches.WithLabelValues(decision).Inc()
}

// IncRetryLimit counts an abandoned parameter.
func (m *Metrics) IncRetryLimit(intent, param string) {
	if m == nil {
		return
	}
	m.retryLimits.WithLabelValues(intent, param).Inc()
}

// IncStall counts a force-scheduled tool.
func (m *Metrics) IncStall(intent, tool string) {
	if m == nil {
		return
	}
	m.stalls.WithLabelValues(intent, tool).Inc()
}

func (m *Metrics) turnStarted() {
	if m != nil {
		m.turnsActive.Inc()
	}
}

func (m *Metrics) turnFinished() {
	if m != nil {
		m.turnsActive.Dec()
	}
}
