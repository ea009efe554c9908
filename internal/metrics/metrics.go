// Package metrics
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contablebot_worker_cycles_total",
			Help: "Worker cycles, labeled by outcome (ok, empty, claim_error, extract_error, commit_error, panic).",
		},
		[]string{"outcome"},
	)
	InvoicesClaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "contablebot_invoices_claimed_total",
			Help: "Invoices claimed from the pending queue.",
		},
	)
	InvoicesProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "contablebot_invoices_processed_total",
			Help: "Invoices committed as processed.",
		},
	)
	InvoicesErrored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "contablebot_invoices_errored_total",
			Help: "Invoices marked as error after exhausted extraction retries.",
		},
	)
	ExtractionAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contablebot_extraction_attempts_total",
			Help: "Extraction service calls, labeled by result (ok, error).",
		},
		[]string{"result"},
	)
	ExtractionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "contablebot_extraction_duration_seconds",
			Help:    "Duration of whole-batch extraction calls, retries included.",
			Buckets: prometheus.DefBuckets,
		},
	)
	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "contablebot_cycle_duration_seconds",
			Help:    "Duration of full worker cycles.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(CyclesTotal)
	prometheus.MustRegister(InvoicesClaimed)
	prometheus.MustRegister(InvoicesProcessed)
	prometheus.MustRegister(InvoicesErrored)
	prometheus.MustRegister(ExtractionAttempts)
	prometheus.MustRegister(ExtractionDuration)
	prometheus.MustRegister(CycleDuration)
}

func ExposeMetrics(addr string) {
	slog.Info("Exposing Prometheus metrics", "address", addr)
	http.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, nil); err != nil {
		slog.Error("Failed to start Prometheus metrics server", "error", err)
	}
}
