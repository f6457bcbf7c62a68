// Package metrics exposes collabd's Prometheus instrumentation: room
// broadcast/lag stats, WAL flush counters, and storage operation counters.
// Registered once at startup and wired into the packages that emit events.
package metrics

import (
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "collabd"

// Metrics holds every Prometheus collector collabd registers. Construct one
// with New (or NewWithRegisterer for tests that need an isolated registry)
// and pass it wherever a Recorder-shaped dependency is needed.
type Metrics struct {
	BroadcastsTotal   *prometheus.CounterVec
	BroadcastFanout   *prometheus.HistogramVec
	LaggedTotal       *prometheus.CounterVec
	ActiveRooms       prometheus.Gauge
	WALFlushesTotal   prometheus.Counter
	WALEntriesFlushed prometheus.Counter
	WALBytesFlushed   prometheus.Counter
	StoreOpsTotal     *prometheus.CounterVec
	StoreOpErrors     *prometheus.CounterVec
}

// New registers every collector against the default Prometheus registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers every collector against reg, useful for tests
// that want a throwaway registry rather than polluting the global default.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		BroadcastsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "room",
				Name:      "broadcasts_total",
				Help:      "Total number of room broadcasts performed.",
			},
			[]string{"doc_id"},
		),
		BroadcastFanout: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "room",
				Name:      "broadcast_fanout",
				Help:      "Number of peers a broadcast was delivered to.",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
			},
			[]string{"doc_id"},
		),
		LaggedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "room",
				Name:      "lagged_total",
				Help:      "Total number of messages dropped for a slow peer.",
			},
			[]string{"doc_id"},
		),
		ActiveRooms: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "room",
				Name:      "active_rooms",
				Help:      "Number of documents with at least one connected peer.",
			},
		),
		WALFlushesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "wal",
				Name:      "flushes_total",
				Help:      "Total number of write-ahead log flush operations.",
			},
		),
		WALEntriesFlushed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "wal",
				Name:      "entries_flushed_total",
				Help:      "Total number of write-ahead log entries persisted.",
			},
		),
		WALBytesFlushed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "wal",
				Name:      "bytes_flushed_total",
				Help:      "Total number of payload bytes persisted from the write-ahead log.",
			},
		),
		StoreOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "ops_total",
				Help:      "Total number of storage operations by kind.",
			},
			[]string{"op"},
		),
		StoreOpErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "op_errors_total",
				Help:      "Total number of failed storage operations by kind.",
			},
			[]string{"op"},
		),
	}
}

// ObserveBroadcast implements room.Recorder.
func (m *Metrics) ObserveBroadcast(docID uuid.UUID, peerCount int) {
	id := docID.String()
	m.BroadcastsTotal.WithLabelValues(id).Inc()
	m.BroadcastFanout.WithLabelValues(id).Observe(float64(peerCount))
}

// ObserveLag implements room.Recorder.
func (m *Metrics) ObserveLag(docID uuid.UUID, skipped uint64) {
	m.LaggedTotal.WithLabelValues(docID.String()).Add(float64(skipped))
}

// SetActiveRooms reports how many rooms currently have at least one peer.
func (m *Metrics) SetActiveRooms(n int) {
	m.ActiveRooms.Set(float64(n))
}

// ObserveWALFlush records one flush cycle of the write-ahead log buffer.
func (m *Metrics) ObserveWALFlush(entries int, bytes int) {
	m.WALFlushesTotal.Inc()
	m.WALEntriesFlushed.Add(float64(entries))
	m.WALBytesFlushed.Add(float64(bytes))
}

// StoreOp is a storage operation kind for counter labeling.
type StoreOp string

// Storage operation kinds tracked by StoreOpsTotal/StoreOpErrors.
const (
	StoreOpStoreDelta    StoreOp = "store_delta"
	StoreOpLoadDeltas    StoreOp = "load_deltas"
	StoreOpSaveSnapshot  StoreOp = "save_snapshot"
	StoreOpLoadSnapshot  StoreOp = "load_snapshot"
	StoreOpCompactDeltas StoreOp = "compact_deltas"
	StoreOpWalAppend     StoreOp = "wal_append"
)

// ObserveStoreOp records one storage operation, tallying it as an error if
// err is non-nil.
func (m *Metrics) ObserveStoreOp(op StoreOp, err error) {
	m.StoreOpsTotal.WithLabelValues(string(op)).Inc()
	if err != nil {
		m.StoreOpErrors.WithLabelValues(string(op)).Inc()
	}
}

// ObserveStoreOpString implements store.Recorder, adapting the store
// package's plain-string operation names onto the typed StoreOp constants.
func (m *Metrics) ObserveStoreOpString(op string, err error) {
	m.ObserveStoreOp(StoreOp(op), err)
}
