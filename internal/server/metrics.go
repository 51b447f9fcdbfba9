package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics lives on its own registry so several servers can coexist in one
// process.
type metrics struct {
	registry   *prometheus.Registry
	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	scans      *prometheus.CounterVec
	duplicates prometheus.Counter
	actions    *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		scans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrgate_scans_recorded_total",
				Help: "Scans stored, by source",
			},
			[]string{"source"},
		),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qrgate_scans_duplicate_total",
			Help: "Scans dropped as resubmissions inside the dedupe window",
		}),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrgate_action_events_total",
				Help: "Completed gate sequences, by red card",
			},
			[]string{"red_card"},
		),
	}
	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.scans,
		m.duplicates,
		m.actions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// trackDedupe exposes how many scan keys are currently held back.
func (m *metrics) trackDedupe(size func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "qrgate_dedupe_keys",
			Help: "Scan keys held inside the dedupe window",
		},
		func() float64 { return float64(size()) },
	))
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
