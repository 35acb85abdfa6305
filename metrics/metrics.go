// Package metrics exposes Prometheus collectors for envelope operations, the
// key-set cache and directory searches, and the HTTP server serving them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)

var (
	envelopeOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "envelope",
			Name:      "operations_total",
			Help:      "Envelope lifecycle operations by operation and result.",
		}, []string{"operation", "result"})

	keySetCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "keyset_cache",
			Name:      "lookups_total",
			Help:      "Key-set cache lookups by result (hit, miss, expired).",
		}, []string{"result"})

	keySetCacheEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: "keyset_cache",
			Name:      "evictions_total",
			Help:      "Key-set cache entries evicted under capacity pressure.",
		})

	directorySearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: "directory",
			Name:      "search_duration_seconds",
			Help:      "Latency of directory searches and key lookups.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "result"})
)

func packageCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		envelopeOperations,
		keySetCacheLookups,
		keySetCacheEvictions,
		directorySearchDuration,
	}
}

// RecordEnvelopeOperation counts a lifecycle operation outcome.
func RecordEnvelopeOperation(operation string, err error) {
	envelopeOperations.WithLabelValues(operation, result(err)).Inc()
}

// RecordCacheLookup counts a key-set cache lookup ("hit", "miss" or "expired").
func RecordCacheLookup(outcome string) {
	keySetCacheLookups.WithLabelValues(outcome).Inc()
}

// RecordCacheEviction counts a capacity eviction.
func RecordCacheEviction() {
	keySetCacheEvictions.Inc()
}

// ObserveDirectorySearch records the latency of a directory call started at start.
func ObserveDirectorySearch(kind string, start time.Time, err error) {
	directorySearchDuration.WithLabelValues(kind, result(err)).Observe(time.Since(start).Seconds())
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
