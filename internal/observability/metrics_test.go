package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestRecordTransitionCounts(t *testing.T) {
	counter := statusTransitions.WithLabelValues("submitted", "verified")
	before := testutil.ToFloat64(counter)

	RecordTransition("submitted", "verified")
	RecordTransition("submitted", "verified")

	require.InDelta(t, before+2, testutil.ToFloat64(counter), 0.0001)
}

func TestRecordStoreOperationObservesLatency(t *testing.T) {
	before := sampleCount(t, storeLatency.WithLabelValues("memory", "get"))
	beforeOps := testutil.ToFloat64(storeOperations.WithLabelValues("memory", "get", ResultMissing))

	RecordStoreOperation("memory", "get", ResultMissing, 3*time.Millisecond)

	require.Equal(t, before+1, sampleCount(t, storeLatency.WithLabelValues("memory", "get")))
	require.InDelta(t, beforeOps+1, testutil.ToFloat64(storeOperations.WithLabelValues("memory", "get", ResultMissing)), 0.0001)
}

func TestRecordWriteIgnoresZeroTime(t *testing.T) {
	ts := time.Date(2024, 8, 1, 9, 30, 0, 0, time.UTC)
	RecordWrite(ts)
	RecordWrite(time.Time{})
	require.Equal(t, float64(ts.Unix()), testutil.ToFloat64(lastWriteGauge))
}

func sampleCount(t *testing.T, obs prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := obs.(prometheus.Metric)
	require.True(t, ok)
	out := &dto.Metric{}
	require.NoError(t, metric.Write(out))
	hist := out.GetHistogram()
	require.NotNil(t, hist)
	return hist.GetSampleCount()
}
