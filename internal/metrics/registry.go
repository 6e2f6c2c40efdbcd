// Package metrics holds the Prometheus instrumentation for the pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

// Registry holds all Prometheus metrics for the flow pipeline.
type Registry struct {
	registry *prometheus.Registry

	// Bus throughput
	MessagesConsumed  *prometheus.CounterVec
	MessagesPublished *prometheus.CounterVec
	PublishFailures   *prometheus.CounterVec

	// Pipeline output
	PacketsEmitted *prometheus.CounterVec
	HitsEmitted    *prometheus.CounterVec
	AlertsEmitted  *prometheus.CounterVec
	DarkEmitted    *prometheus.CounterVec

	// Persistence
	PersistFailures *prometheus.CounterVec

	// Cluster engine
	OpenClusters prometheus.Gauge
	FlushLatency prometheus.Histogram
}

// NewRegistry creates the metrics registry on a private Prometheus registry
// so tests can build as many as they need.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		MessagesConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowrun_messages_consumed_total",
				Help: "Total messages consumed from the bus by stream",
			},
			[]string{"stream"},
		),

		MessagesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowrun_messages_published_total",
				Help: "Total messages published to the bus by stream",
			},
			[]string{"stream"},
		),

		PublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowrun_publish_failures_total",
				Help: "Total publish failures by stream",
			},
			[]string{"stream"},
		),

		PacketsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowrun_packets_total",
				Help: "Total flow packets emitted by packet kind",
			},
			[]string{"kind"},
		),

		HitsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowrun_classifier_hits_total",
				Help: "Total classifier hits by classifier id",
			},
			[]string{"classifier"},
		),

		AlertsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowrun_alerts_total",
				Help: "Total alerts emitted by severity",
			},
			[]string{"severity"},
		),

		DarkEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowrun_dark_events_total",
				Help: "Total dark inference events by type",
			},
			[]string{"type"},
		),

		PersistFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowrun_persist_failures_total",
				Help: "Total persistence failures by table",
			},
			[]string{"table"},
		),

		OpenClusters: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "flowrun_open_clusters",
				Help: "Number of currently open clusters",
			},
		),

		FlushLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "flowrun_flush_duration_seconds",
				Help:    "Wall time spent enriching and classifying one flushed cluster",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
		),
	}

	r.registry.MustRegister(
		r.MessagesConsumed,
		r.MessagesPublished,
		r.PublishFailures,
		r.PacketsEmitted,
		r.HitsEmitted,
		r.AlertsEmitted,
		r.DarkEmitted,
		r.PersistFailures,
		r.OpenClusters,
		r.FlushLatency,
	)
	return r
}

// Handler serves the registry in Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// FlushTimer times one cluster flush.
type FlushTimer struct {
	registry *Registry
	start    time.Time
}

// StartFlushTimer begins timing a cluster flush.
func (r *Registry) StartFlushTimer() *FlushTimer {
	return &FlushTimer{registry: r, start: time.Now()}
}

// Stop records the flush duration.
func (t *FlushTimer) Stop() {
	t.registry.FlushLatency.Observe(time.Since(t.start).Seconds())
}

// RecordPersistFailure counts a failed write and logs it.
func (r *Registry) RecordPersistFailure(table string, err error) {
	r.PersistFailures.WithLabelValues(table).Inc()
	log.Warn().Err(err).Str("table", table).Msg("persist failure recorded")
}

// CounterValue reads the current value of one labelled counter. Test helper.
func CounterValue(vec *prometheus.CounterVec, labels ...string) float64 {
	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	m := &io_prometheus_client.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
