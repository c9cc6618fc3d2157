package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the registry's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Commands by aggregate, command and outcome (ok, rejected, error)
	Commands *prometheus.CounterVec

	CommandLatency *prometheus.HistogramVec

	// Optimistic concurrency conflicts that led to a re-decide
	ConcurrencyRetries *prometheus.CounterVec

	// Projector events by event type and outcome (applied, skipped, parked, failed)
	ProjectorEvents *prometheus.CounterVec

	// Definitions whose schema cannot be synthesized
	ProjectorParked prometheus.Gauge

	ProjectorDDL prometheus.Counter

	OutboxPublished prometheus.Counter
	OutboxFailures  prometheus.Counter
	OutboxBacklog   prometheus.Gauge
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "schemaregistry_commands_total",
			Help: "Commands handled by aggregate, command and outcome",
		}, []string{"aggregate", "command", "outcome"}),

		CommandLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "schemaregistry_command_duration_seconds",
			Help:    "Duration of load, decide and append for one command",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"aggregate", "command"}),

		ConcurrencyRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "schemaregistry_concurrency_retries_total",
			Help: "Commands re-decided after losing an append race",
		}, []string{"aggregate"}),

		ProjectorEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "schemaregistry_projector_events_total",
			Help: "Events seen by the read model projector",
		}, []string{"event_type", "outcome"}),

		ProjectorParked: f.NewGauge(prometheus.GaugeOpts{
			Name: "schemaregistry_projector_parked_definitions",
			Help: "Active definitions the projector skips because their schema cannot be synthesized",
		}),

		ProjectorDDL: f.NewCounter(prometheus.CounterOpts{
			Name: "schemaregistry_projector_ddl_statements_total",
			Help: "CREATE TABLE and CREATE INDEX statements issued",
		}),

		OutboxPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "schemaregistry_outbox_published_total",
			Help: "Outbox entries published to Kafka",
		}),

		OutboxFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "schemaregistry_outbox_publish_failures_total",
			Help: "Outbox publish attempts that failed",
		}),

		OutboxBacklog: f.NewGauge(prometheus.GaugeOpts{
			Name: "schemaregistry_outbox_backlog",
			Help: "Unpublished outbox entries seen by the last relay pass",
		}),
	}
}

// ObserveCommand records one command's outcome and latency.
func (m *Metrics) ObserveCommand(aggregate, command, outcome string, d time.Duration) {
	if m != nil {
		m.Commands.WithLabelValues(aggregate, command, outcome).Inc()
		m.CommandLatency.WithLabelValues(aggregate, command).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementConcurrencyRetry(aggregate string) {
	if m != nil {
		m.ConcurrencyRetries.WithLabelValues(aggregate).Inc()
	}
}

func (m *Metrics) IncrementProjected(eventType, outcome string) {
	if m != nil {
		m.ProjectorEvents.WithLabelValues(eventType, outcome).Inc()
	}
}

func (m *Metrics) SetParked(n int) {
	if m != nil {
		m.ProjectorParked.Set(float64(n))
	}
}

func (m *Metrics) AddDDL(n int) {
	if m != nil {
		m.ProjectorDDL.Add(float64(n))
	}
}

func (m *Metrics) AddPublished(n int) {
	if m != nil {
		m.OutboxPublished.Add(float64(n))
	}
}

func (m *Metrics) IncrementPublishFailure() {
	if m != nil {
		m.OutboxFailures.Inc()
	}
}

func (m *Metrics) SetBacklog(n int) {
	if m != nil {
		m.OutboxBacklog.Set(float64(n))
	}
}
