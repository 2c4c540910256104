// Package metrics holds the Prometheus collectors shared by the service.
// Collectors register on the default registry at package init and are
// exposed by the API on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statuswatch_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "statuswatch_http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	ExtractionRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statuswatch_extraction_runs_total",
			Help: "Total number of terminal extraction runs.",
		},
		[]string{"status", "error_code"}, // status: success, failure
	)

	ExtractionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "statuswatch_extraction_duration_seconds",
			Help:    "Duration of terminal extraction runs.",
			Buckets: []float64{30, 60, 120, 300, 600, 900, 1800},
		},
	)

	TerminalRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "statuswatch_terminal_records",
			Help: "Terminal records emitted by the last extraction run, by state.",
		},
		[]string{"state"},
	)

	ExtractionWarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statuswatch_extraction_warnings_total",
			Help: "Non-fatal extraction warnings, by kind.",
		},
		[]string{"kind"},
	)

	CollectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "statuswatch_collector_duration_seconds",
			Help:    "Duration of report source collectors.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"source", "status"},
	)

	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statuswatch_deliveries_total",
			Help: "Report deliveries, by channel and outcome.",
		},
		[]string{"channel", "status"},
	)
)

// ObserveCollector records how long a report source took and whether it failed.
func ObserveCollector(source string, started time.Time, err error) {
	CollectorDuration.WithLabelValues(source, outcome(err)).Observe(time.Since(started).Seconds())
}

// ObserveDelivery counts one delivery attempt on channel.
func ObserveDelivery(channel string, err error) {
	DeliveriesTotal.WithLabelValues(channel, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
