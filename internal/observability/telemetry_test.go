package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetricsRecordThroughManualReader(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewMetrics(provider)
	require.NoError(t, err)

	m.RecordAdmission(ctx, "accepted", true)
	m.RecordAdmission(ctx, "slot_full", false)
	m.RecordConflict(ctx, "slot")
	m.RecordTransition(ctx, "notified", 3)
	m.RecordTransition(ctx, "elapsed", 0)
	m.RecordOracleCall(ctx, "opd_priority", 12*time.Millisecond, errors.New("boom"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byName := map[string]metricdata.Metrics{}
	for _, mt := range rm.ScopeMetrics[0].Metrics {
		byName[mt.Name] = mt
	}

	admissions, ok := byName["scheduling.admissions"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, admissions.DataPoints, 2)

	transitions, ok := byName["scheduling.slot_transitions"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, transitions.DataPoints, 1)
	assert.Equal(t, int64(3), transitions.DataPoints[0].Value)

	_, ok = byName["scheduling.oracle.duration"].Data.(metricdata.Histogram[float64])
	assert.True(t, ok)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordAdmission(ctx, "accepted", false)
		m.RecordAllocation(ctx, "bed")
		m.RecordConflict(ctx, "department")
		m.RecordTransition(ctx, "elapsed", 1)
		m.RecordMaterialization(ctx, "daily")
		m.RecordOracleCall(ctx, "bed_priority", time.Millisecond, nil)
	})
}

func TestSetupMetricsWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := SetupMetrics(context.Background(), "test", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
