// Package metrics defines the Prometheus counters of the record store.
//
// There is no HTTP exposition: the command line tool writes the default
// registry to a node exporter textfile on exit.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Operations counts public operations by name and result ("ok" or "error").
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsdb_operations_total",
			Help: "Total number of record store operations",
		},
		[]string{"op", "result"},
	)

	// IndexUpdates counts index entries set or removed.
	IndexUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsdb_index_updates_total",
			Help: "Total number of index entries set or removed",
		},
		[]string{"action"},
	)

	// CorruptRecords counts record files skipped because they failed to parse.
	CorruptRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fsdb_corrupt_records_total",
			Help: "Total number of unparsable record files encountered on read",
		},
	)
)

// Observe records the outcome of one operation.
func Observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	Operations.WithLabelValues(op, result).Inc()
}

// WriteTextfile writes every registered metric to path in the text
// exposition format, atomically.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
