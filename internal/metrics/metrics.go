package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the correlation service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	AlertsIngested        *prometheus.CounterVec
	AlertsWithoutEntities prometheus.Counter
	Incidents             *prometheus.CounterVec
	IncidentsSuppressed   prometheus.Counter
	EntitiesTracked       prometheus.Gauge
	IngestDuration        prometheus.Histogram
	Deliveries            *prometheus.CounterVec
	InvalidPayloads       prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AlertsIngested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "correlationbrain_alerts_ingested_total",
				Help: "Total number of alerts ingested",
			},
			[]string{"engine"},
		),
		AlertsWithoutEntities: f.NewCounter(
			prometheus.CounterOpts{
				Name: "correlationbrain_alerts_without_entities_total",
				Help: "Alerts that carried no correlatable entity",
			},
		),
		Incidents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "correlationbrain_incidents_total",
				Help: "Incidents generated, by attack pattern",
			},
			[]string{"pattern"},
		),
		IncidentsSuppressed: f.NewCounter(
			prometheus.CounterOpts{
				Name: "correlationbrain_incidents_suppressed_total",
				Help: "Threshold crossings suppressed by the per-entity cooldown",
			},
		),
		EntitiesTracked: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "correlationbrain_entities_tracked",
				Help: "Entities currently held in temporal memory",
			},
		),
		IngestDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "correlationbrain_ingest_duration_seconds",
				Help:    "Time taken to ingest one alert",
				Buckets: prometheus.DefBuckets,
			},
		),
		Deliveries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "correlationbrain_deliveries_total",
				Help: "Outbound record deliveries by sink and result",
			},
			[]string{"kind", "result"},
		),
		InvalidPayloads: f.NewCounter(
			prometheus.CounterOpts{
				Name: "correlationbrain_invalid_payloads_total",
				Help: "Inbound payloads that could not be parsed as alerts",
			},
		),
	}
}

// ObserveIngest records one ingested alert.
func (m *Metrics) ObserveIngest(engine string, entities int, tracked int, took time.Duration) {
	if m == nil {
		return
	}
	if engine == "" {
		engine = "Unknown"
	}
	m.AlertsIngested.WithLabelValues(engine).Inc()
	if entities == 0 {
		m.AlertsWithoutEntities.Inc()
	}
	m.EntitiesTracked.Set(float64(tracked))
	m.IngestDuration.Observe(took.Seconds())
}

// ObserveIncident counts an incident once per matched pattern, or as "none".
func (m *Metrics) ObserveIncident(patterns []string) {
	if m == nil {
		return
	}
	if len(patterns) == 0 {
		m.Incidents.WithLabelValues("none").Inc()
		return
	}
	for _, p := range patterns {
		m.Incidents.WithLabelValues(PatternName(p)).Inc()
	}
}

// ObserveSuppressed counts a cooldown suppression.
func (m *Metrics) ObserveSuppressed() {
	if m == nil {
		return
	}
	m.IncidentsSuppressed.Inc()
}

// ObserveDelivery counts one delivery attempt outcome.
func (m *Metrics) ObserveDelivery(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Deliveries.WithLabelValues(kind, result).Inc()
}

// ObserveInvalid counts an unparseable payload.
func (m *Metrics) ObserveInvalid() {
	if m == nil {
		return
	}
	m.InvalidPayloads.Inc()
}

// PatternName returns the short name of a pattern label ("APT_CHAIN" for "APT_CHAIN: ...").
func PatternName(label string) string {
	if idx := strings.Index(label, ":"); idx > 0 {
		return label[:idx]
	}
	return label
}
