package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the data layer
type Metrics struct {
	// Aggregator metrics
	SessionsRecordedTotal  prometheus.Counter
	ExercisesRecordedTotal *prometheus.CounterVec
	StorageErrorsTotal     *prometheus.CounterVec

	// Backup metrics
	SnapshotsCreatedTotal  prometheus.Counter
	SnapshotsRestoredTotal prometheus.Counter
	SnapshotFailuresTotal  *prometheus.CounterVec
	LocalSnapshotsHeld     prometheus.Gauge

	// Sync queue metrics
	SyncDeliveriesTotal *prometheus.CounterVec
	SyncAbandonedTotal  prometheus.Counter
	SyncPendingItems    prometheus.Gauge
	SyncOnline          prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		SessionsRecordedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stride_sessions_recorded_total",
			Help: "Total number of session-start events recorded",
		}),
		ExercisesRecordedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stride_exercises_recorded_total",
			Help: "Total exercise units recorded, by kind",
		}, []string{"kind"}),
		StorageErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stride_storage_errors_total",
			Help: "Storage errors swallowed at the aggregator boundary, by operation",
		}, []string{"operation"}),
		SnapshotsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stride_snapshots_created_total",
			Help: "Total number of snapshots created",
		}),
		SnapshotsRestoredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stride_snapshots_restored_total",
			Help: "Total number of snapshots restored",
		}),
		SnapshotFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stride_snapshot_failures_total",
			Help: "Snapshot operation failures, by operation",
		}, []string{"operation"}),
		LocalSnapshotsHeld: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stride_local_snapshots_held",
			Help: "Number of snapshots currently in the local rotation set",
		}),
		SyncDeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stride_sync_deliveries_total",
			Help: "Sync delivery attempts, by result",
		}, []string{"result"}),
		SyncAbandonedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stride_sync_abandoned_total",
			Help: "Sync items abandoned after exhausting retries",
		}),
		SyncPendingItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stride_sync_pending_items",
			Help: "Items currently waiting in the sync queue",
		}),
		SyncOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stride_sync_online",
			Help: "Whether the sync queue currently believes it is online (1/0)",
		}),
		registry: registry,
	}

	registry.MustRegister(
		m.SessionsRecordedTotal,
		m.ExercisesRecordedTotal,
		m.StorageErrorsTotal,
		m.SnapshotsCreatedTotal,
		m.SnapshotsRestoredTotal,
		m.SnapshotFailuresTotal,
		m.LocalSnapshotsHeld,
		m.SyncDeliveriesTotal,
		m.SyncAbandonedTotal,
		m.SyncPendingItems,
		m.SyncOnline,
	)

	return m
}

// Handler returns an HTTP handler serving the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
