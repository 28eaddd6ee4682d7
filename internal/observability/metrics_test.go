package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotAggregatesRequestsAndErrors(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/tickets", "POST", 201, 10*time.Millisecond)
	m.RecordRequest("/tickets", "POST", 201, 30*time.Millisecond)
	m.RecordRequest("/dashboard", "GET", 200, time.Millisecond)
	m.RecordError("/tickets", "POST", "VALIDATION_FAILED")

	snap := m.Snapshot()
	require.Len(t, snap.Requests, 2)
	assert.Equal(t, "/dashboard", snap.Requests[0].Route)
	assert.Equal(t, int64(2), snap.Requests[1].Count)
	assert.InDelta(t, 20.0, snap.Requests[1].AvgMillis, 0.01)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, "VALIDATION_FAILED", snap.Errors[0].Code)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	m.RecordError("/", "GET", "NOT_FOUND")
	assert.Empty(t, m.Snapshot().Requests)
}
