// Package metrics exposes pipeline counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chesslog"

// Archive outcomes.
const (
	StatusDone    = "done"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Metrics holds the pipeline counters on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	Games        prometheus.Counter
	Perspectives prometheus.Counter
	Records      *prometheus.CounterVec // by table
	Segments     *prometheus.CounterVec // by table
	Archives     *prometheus.CounterVec // by status
	BytesRead    prometheus.Counter
	Players      prometheus.Gauge
}

// New registers every counter on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Games: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_total",
			Help:      "Games normalized and recorded.",
		}),
		Perspectives: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "perspective_records_total",
			Help:      "Perspective records emitted by the merger.",
		}),
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_records_total",
			Help:      "Records written to flushed segments.",
		}, []string{"table"}),
		Segments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_total",
			Help:      "Segments flushed.",
		}, []string{"table"}),
		Archives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archives_total",
			Help:      "Archives handled, by outcome.",
		}, []string{"status"}),
		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "input_bytes_total",
			Help:      "Decompressed archive bytes consumed.",
		}),
		Players: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "players",
			Help:      "Distinct players in the statistics store.",
		}),
	}
	reg.MustRegister(
		m.Games, m.Perspectives, m.Records, m.Segments, m.Archives, m.BytesRead, m.Players,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// SegmentFlushed counts one flushed segment of n records.
func (m *Metrics) SegmentFlushed(table string, n int) {
	if m == nil {
		return
	}
	m.Segments.WithLabelValues(table).Inc()
	m.Records.WithLabelValues(table).Add(float64(n))
}

// ArchiveDone counts one archive outcome.
func (m *Metrics) ArchiveDone(status string) {
	if m == nil {
		return
	}
	m.Archives.WithLabelValues(status).Inc()
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
