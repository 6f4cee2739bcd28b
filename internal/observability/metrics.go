// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	RowsRead     prometheus.Counter
	RowsSkipped  *prometheus.CounterVec
	SwapsStored  prometheus.Counter
	BackfillRows prometheus.Counter
	LastRowID    prometheus.Gauge

	// Matcher metrics
	LegsObserved  prometheus.Counter
	UnmatchedLegs prometheus.Counter
	PendingLegs   prometheus.Gauge

	// Store metrics
	StoredSwaps prometheus.Gauge
	SwapsPruned prometheus.Counter
	PruneRuns   prometheus.Counter

	// Registration metrics
	RegistrationsCreated prometheus.Counter
	RegistrationsPaid    prometheus.Counter
	RegistrationsExpired prometheus.Counter
	ExplorerErrors       prometheus.Counter

	// Price cache metrics
	PriceRefreshes     prometheus.Counter
	PriceRefreshErrors prometheus.Counter

	// Health metrics
	LastSuccessfulPoll prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "swaptracker"
	}

	return &Metrics{
		// Ingestion metrics
		RowsRead: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "rows_read_total",
			Help:      "Total number of stats_swaps rows read from the daemon database",
		}),
		RowsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "rows_skipped_total",
			Help:      "Total number of rows skipped by reason",
		}, []string{"reason"}),
		SwapsStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "swaps_stored_total",
			Help:      "Total number of matched swaps upserted into the store",
		}),
		BackfillRows: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "backfill_rows_total",
			Help:      "Total number of rows replayed during historical backfill",
		}),
		LastRowID: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "last_row_id",
			Help:      "Highest stats_swaps rowid seen",
		}),

		// Matcher metrics
		LegsObserved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matcher",
			Name:      "legs_observed_total",
			Help:      "Total number of swap legs fed to the pair matcher",
		}),
		UnmatchedLegs: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matcher",
			Name:      "unmatched_legs_total",
			Help:      "Total number of legs discarded after waiting for a counterpart",
		}),
		PendingLegs: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "matcher",
			Name:      "pending_legs",
			Help:      "Current number of swap uuids awaiting a counterpart leg",
		}),

		// Store metrics
		StoredSwaps: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "swaps",
			Help:      "Current number of swaps held by the store",
		}),
		SwapsPruned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "swaps_pruned_total",
			Help:      "Total number of non-event swaps removed by pruning",
		}),
		PruneRuns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "prune_runs_total",
			Help:      "Total number of prune cycles executed",
		}),

		// Registration metrics
		RegistrationsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registration",
			Name:      "created_total",
			Help:      "Total number of pending registrations created or refreshed",
		}),
		RegistrationsPaid: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registration",
			Name:      "paid_total",
			Help:      "Total number of registrations confirmed by a matching fee payment",
		}),
		RegistrationsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registration",
			Name:      "expired_total",
			Help:      "Total number of pending registrations expired",
		}),
		ExplorerErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registration",
			Name:      "explorer_errors_total",
			Help:      "Total number of insight explorer request failures",
		}),

		// Price cache metrics
		PriceRefreshes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prices",
			Name:      "refreshes_total",
			Help:      "Total number of successful price cache refreshes",
		}),
		PriceRefreshErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prices",
			Name:      "refresh_errors_total",
			Help:      "Total number of failed price cache refreshes",
		}),

		// Health metrics
		LastSuccessfulPoll: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_poll_timestamp",
			Help:      "Unix timestamp of the last successful daemon database poll",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRowRead increments the rows read counter and tracks the rowid.
func RecordRowRead(rowID int64) {
	DefaultMetrics.RowsRead.Inc()
	DefaultMetrics.LastRowID.Set(float64(rowID))
}

// RecordRowSkipped counts a skipped row by reason.
func RecordRowSkipped(reason string) {
	DefaultMetrics.RowsSkipped.WithLabelValues(reason).Inc()
}

// RecordSwapStored increments the stored swaps counter.
func RecordSwapStored() {
	DefaultMetrics.SwapsStored.Inc()
}

// RecordUnmatchedLegs counts legs discarded by a matcher sweep.
func RecordUnmatchedLegs(n int) {
	DefaultMetrics.UnmatchedLegs.Add(float64(n))
}

// UpdateMatcherPending updates the pending legs gauge.
func UpdateMatcherPending(n int) {
	DefaultMetrics.PendingLegs.Set(float64(n))
}

// UpdateStoreTotal updates the stored swaps gauge.
func UpdateStoreTotal(n int) {
	DefaultMetrics.StoredSwaps.Set(float64(n))
}

// RecordPrune records one prune cycle and the number of swaps removed.
func RecordPrune(removed int) {
	DefaultMetrics.PruneRuns.Inc()
	DefaultMetrics.SwapsPruned.Add(float64(removed))
}
