package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/driveschool-api/internal/models"
)

func TestMetricsServiceCacheHitRatio(t *testing.T) {
	m := NewMetricsService()
	m.RecordCacheOperation(true)
	m.RecordCacheOperation(true)
	m.RecordCacheOperation(true)
	m.RecordCacheOperation(false)

	snap := m.Snapshot()
	assert.Equal(t, uint64(3), snap.CacheHits)
	assert.Equal(t, uint64(1), snap.CacheMisses)
	assert.InDelta(t, 0.75, snap.CacheHitRatio, 0.001)
}

func TestMetricsServiceSnapshotAveragesRequests(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest("GET", "/api/vehicles", 200, 10*time.Millisecond)
	m.ObserveHTTPRequest("GET", "/api/vehicles", 200, 30*time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.RequestsTotal)
	assert.InDelta(t, 20, snap.AverageRequestDurationMs, 0.5)
	assert.False(t, snap.GeneratedAt.IsZero())
}

func TestMetricsServiceNilReceiverIsSafe(t *testing.T) {
	var m *MetricsService
	m.RecordCacheOperation(true)
	m.ObserveEnrollment("enrolled")
	m.ObserveHTTPRequest("GET", "/", 200, time.Millisecond)
	assert.Equal(t, models.SystemMetrics{}, m.Snapshot())
}
