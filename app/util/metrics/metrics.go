package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/do"
)

const namespace = "familycoach"

// Metrics groups the Prometheus instruments of the coaching service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Turns         *prometheus.CounterVec
	TurnDuration  prometheus.Histogram
	ModelRounds   prometheus.Histogram
	ToolCalls     *prometheus.CounterVec
	SafetyOutcome *prometheus.CounterVec
}

func New(_ *do.Injector) (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	return NewWithRegistry(registry), nil
}

func NewWithRegistry(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Coaching turns by outcome.",
		}, []string{"outcome"}),
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a coaching turn.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 15, 30, 60},
		}),
		ModelRounds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_rounds",
			Help:      "Model round-trips per turn.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
		}),
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and result.",
		}, []string{"tool", "result"}),
		SafetyOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safety_escalations_total",
			Help:      "Risk-flagged turns by how the safety sequence ended.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveTurn(outcome string, rounds int, d time.Duration) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
	m.ModelRounds.Observe(float64(rounds))
	m.TurnDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveToolCall(tool, result string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, result).Inc()
}

func (m *Metrics) ObserveSafety(outcome string) {
	if m == nil {
		return
	}
	m.SafetyOutcome.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
