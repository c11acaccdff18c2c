package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/api/tickets", "POST", 201, 10*time.Millisecond)
	m.RecordRequest("/api/tickets", "POST", 201, 30*time.Millisecond)
	m.RecordError("/api/tickets", "POST", "ALREADY_QUEUED")

	s := m.Snapshot()
	assert.Equal(t, int64(2), s.Requests["/api/tickets|POST|201"])
	assert.Equal(t, int64(20), s.AvgLatencyMsec["/api/tickets|POST|201"])
	assert.Equal(t, int64(1), s.Errors["/api/tickets|POST|ALREADY_QUEUED"])

	var nilMetrics *Metrics
	nilMetrics.RecordRequest("/", "GET", 200, time.Millisecond)
	assert.Empty(t, nilMetrics.Snapshot().Requests)
}
