package metrics

import (
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewWithRegisterer(reg)
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, vec.WithLabelValues(labels...).Write(m))
	return m.GetCounter().GetValue()
}

func TestObserveBroadcastIncrementsCounterAndHistogram(t *testing.T) {
	m := newTestMetrics(t)
	docID := uuid.New()

	m.ObserveBroadcast(docID, 3)
	m.ObserveBroadcast(docID, 5)

	assert := counterValue(t, m.BroadcastsTotal, docID.String())
	require.Equal(t, float64(2), assert)

	hist := &dto.Metric{}
	require.NoError(t, m.BroadcastFanout.WithLabelValues(docID.String()).Write(hist))
	require.Equal(t, uint64(2), hist.GetHistogram().GetSampleCount())
}

func TestObserveLagAccumulatesSkippedCount(t *testing.T) {
	m := newTestMetrics(t)
	docID := uuid.New()

	m.ObserveLag(docID, 3)
	m.ObserveLag(docID, 4)

	require.Equal(t, float64(7), counterValue(t, m.LaggedTotal, docID.String()))
}

func TestSetActiveRooms(t *testing.T) {
	m := newTestMetrics(t)
	m.SetActiveRooms(5)

	out := &dto.Metric{}
	require.NoError(t, m.ActiveRooms.Write(out))
	require.Equal(t, float64(5), out.GetGauge().GetValue())
}

func TestObserveWALFlushAccumulates(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveWALFlush(10, 4096)
	m.ObserveWALFlush(2, 128)

	flushes := &dto.Metric{}
	require.NoError(t, m.WALFlushesTotal.Write(flushes))
	require.Equal(t, float64(2), flushes.GetCounter().GetValue())

	entries := &dto.Metric{}
	require.NoError(t, m.WALEntriesFlushed.Write(entries))
	require.Equal(t, float64(12), entries.GetCounter().GetValue())

	bytes := &dto.Metric{}
	require.NoError(t, m.WALBytesFlushed.Write(bytes))
	require.Equal(t, float64(4224), bytes.GetCounter().GetValue())
}

func TestObserveStoreOpTracksErrorsSeparately(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveStoreOp(StoreOpStoreDelta, nil)
	m.ObserveStoreOp(StoreOpStoreDelta, errBoom)

	require.Equal(t, float64(2), counterValue(t, m.StoreOpsTotal, string(StoreOpStoreDelta)))
	require.Equal(t, float64(1), counterValue(t, m.StoreOpErrors, string(StoreOpStoreDelta)))
}

var errBoom = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
