// File: internal/observability/metrics.go
package observability

import (
	"net/http"
	"time"

	"github.com/AngelRodriguez8008/EasyRepro/internal/command"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Label names
	LabelCommand = "command"
	LabelOutcome = "outcome"
	LabelState   = "state"

	// Outcome values
	OutcomeSuccess = "success"
)

// Metrics holds the Prometheus collectors for the executor and the login
// flow. Each instance owns its registry so parallel tests and sessions never
// collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	attemptsTotal   *prometheus.CounterVec
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	attemptsPerCall *prometheus.HistogramVec
	loginsTotal     *prometheus.CounterVec
	activeSessions  prometheus.Gauge
}

var _ command.Metrics = (*Metrics)(nil)

// NewMetrics creates and registers every collector under namespace.
// When withRuntime is set, Go runtime and process collectors are added.
func NewMetrics(namespace string, withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		attemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_attempts_total",
			Help:      "Command attempts by command name and outcome kind.",
		}, []string{LabelCommand, LabelOutcome}),
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Completed commands by command name and final outcome kind.",
		}, []string{LabelCommand, LabelOutcome}),
		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Wall time of a command including retries.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{LabelCommand}),
		attemptsPerCall: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_attempts",
			Help:      "Attempts consumed per command.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		}, []string{LabelCommand}),
		loginsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login outcomes by terminal outcome and the state it was reached in.",
		}, []string{LabelOutcome, LabelState}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Browser sessions currently open.",
		}),
	}
}

func outcomeLabel(kind command.Kind) string {
	if kind == "" {
		return OutcomeSuccess
	}
	return string(kind)
}

// ObserveAttempt implements command.Metrics.
func (m *Metrics) ObserveAttempt(name string, kind command.Kind) {
	m.attemptsTotal.WithLabelValues(name, outcomeLabel(kind)).Inc()
}

// ObserveCommand implements command.Metrics.
func (m *Metrics) ObserveCommand(name string, kind command.Kind, attempts int, elapsed time.Duration) {
	m.commandsTotal.WithLabelValues(name, outcomeLabel(kind)).Inc()
	m.commandDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	m.attemptsPerCall.WithLabelValues(name).Observe(float64(attempts))
}

// ObserveLogin records a login outcome and the state it ended in.
func (m *Metrics) ObserveLogin(outcome, state string) {
	m.loginsTotal.WithLabelValues(outcome, state).Inc()
}

// SessionOpened and SessionClosed track live browser sessions.
func (m *Metrics) SessionOpened() { m.activeSessions.Inc() }

func (m *Metrics) SessionClosed() { m.activeSessions.Dec() }

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
