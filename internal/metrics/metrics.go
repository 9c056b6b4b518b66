// Package metrics exposes Prometheus counters for the export pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qraga_export_batches_total",
		Help: "Batches attempted, by outcome (sent, sink_error, empty).",
	}, []string{"outcome"})

	itemsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qraga_export_items_processed_total",
		Help: "Catalog items queried across all export batches.",
	})

	itemErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qraga_export_item_errors_total",
		Help: "Items that failed transformation or were in a failed batch.",
	})

	jobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qraga_export_jobs_finished_total",
		Help: "Export jobs that reached a terminal status.",
	}, []string{"status"})
)

func BatchAttempted(outcome string) { batchesTotal.WithLabelValues(outcome).Inc() }
func ItemsProcessed(n int)          { itemsProcessed.Add(float64(n)) }
func ItemErrors(n int)              { itemErrors.Add(float64(n)) }
func JobFinished(status string)     { jobsFinished.WithLabelValues(status).Inc() }
