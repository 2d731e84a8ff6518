// Package telemetry wires the request engine into Prometheus metrics and
// OpenTelemetry tracing, replacing the teacher's unimplemented
// observability stubs with the concrete counters/spans C9' names.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the engine's Prometheus instrumentation: selections,
// fallbacks, rate-limit rejections, and terminal errors by code. A nil
// *Metrics is safe to call methods on (every method is a no-op), so tests
// and callers that don't care about metrics can pass nil.
type Metrics struct {
	selections          *prometheus.CounterVec
	fallbacks           *prometheus.CounterVec
	rateLimitRejections *prometheus.CounterVec
	terminalErrors      *prometheus.CounterVec
}

// NewMetrics registers the engine's counters against reg and returns the
// handle the engine records against. Pass prometheus.DefaultRegisterer at
// startup, or a fresh prometheus.NewRegistry() in tests that want
// isolation.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ai_gateway",
			Name:      "model_selections_total",
			Help:      "Count of candidate models selected by the request engine.",
		}, []string{"provider", "model"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ai_gateway",
			Name:      "model_fallbacks_total",
			Help:      "Count of times a candidate model failed and the engine tried the next one.",
		}, []string{"provider", "model", "code"}),
		rateLimitRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ai_gateway",
			Name:      "rate_limit_rejections_total",
			Help:      "Count of candidates skipped because their fixed-window rate budget was exhausted.",
		}, []string{"provider", "model"}),
		terminalErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ai_gateway",
			Name:      "terminal_errors_total",
			Help:      "Count of requests that ended in an error returned to the caller, by code.",
		}, []string{"code"}),
	}
	reg.MustRegister(m.selections, m.fallbacks, m.rateLimitRejections, m.terminalErrors)
	return m
}

func (m *Metrics) RecordSelection(provider, model string) {
	if m == nil {
		return
	}
	m.selections.WithLabelValues(provider, model).Inc()
}

func (m *Metrics) RecordFallback(provider, model, code string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(provider, model, code).Inc()
}

func (m *Metrics) RecordRateLimitRejection(provider, model string) {
	if m == nil {
		return
	}
	m.rateLimitRejections.WithLabelValues(provider, model).Inc()
}

func (m *Metrics) RecordTerminalError(code string) {
	if m == nil {
		return
	}
	m.terminalErrors.WithLabelValues(code).Inc()
}
