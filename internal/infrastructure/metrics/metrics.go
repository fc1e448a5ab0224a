package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal tracks lifecycle operations by outcome
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authbroker_operations_total",
		Help: "Total number of auth id lifecycle operations processed",
	}, []string{"op", "result"})

	// OperationDuration tracks lifecycle operation latency, storage included
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authbroker_operation_duration_seconds",
		Help:    "Histogram of lifecycle operation duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// VerificationsTotal tracks verification results (valid or invalid)
	VerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authbroker_verifications_total",
		Help: "Total number of auth id verifications by result",
	}, []string{"result"})

	// IssueCollisions counts generated ids that already existed
	IssueCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authbroker_issue_collisions_total",
		Help: "Total number of id collisions retried during issuance",
	})

	// CacheOperations tracks verify cache hits and misses
	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authbroker_cache_operations_total",
		Help: "Total number of verify cache hits and misses",
	}, []string{"result"})

	// DBConnectionsActive tracks acquired pool connections
	DBConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "authbroker_db_connections_active",
		Help: "Number of database connections currently checked out of the pool",
	})
)

// Result labels an operation outcome for OperationsTotal.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
