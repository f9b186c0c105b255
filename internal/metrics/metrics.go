// Package metrics exposes Prometheus collectors for the server: a
// package-level var block of collectors, registered in init, served over
// promhttp.Handler().
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dirbookd_active_connections",
			Help: "Number of currently open client connections",
		},
	)

	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirbookd_auth_attempts_total",
			Help: "Total login attempts by outcome",
		},
		[]string{"outcome"}, // success, invalid_username, invalid_password, too_many_try, invalid_frame
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirbookd_requests_total",
			Help: "Total authenticated requests by operation and outcome",
		},
		[]string{"op", "outcome"}, // search/add/delete, success/fail
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dirbookd_request_duration_seconds",
			Help:    "Time to serve a single request frame",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	StoreSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dirbookd_store_size",
			Help: "Number of records currently held by a store",
		},
		[]string{"store"}, // main, privileged, normal
	)

	JournalWritesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dirbookd_journal_writes_total",
			Help: "Total journal records appended and fsync'd",
		},
	)

	SnapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirbookd_snapshots_total",
			Help: "Total snapshot exports by store",
		},
		[]string{"store"},
	)
)

func init() {
	prometheus.MustRegister(
		ActiveConnections,
		AuthAttemptsTotal,
		RequestsTotal,
		RequestDuration,
		StoreSize,
		JournalWritesTotal,
		SnapshotsTotal,
	)
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
