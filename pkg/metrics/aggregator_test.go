package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"enrollsync/pkg/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIntrospector struct {
	stats *queue.Stats
	err   error
}

func (s *stubIntrospector) Stats(ctx context.Context) (*queue.Stats, error) {
	return s.stats, s.err
}

func TestAggregator_RecordCounters(t *testing.T) {
	a := NewAggregator(nil)

	a.Record(OutcomeSuccess, 100*time.Millisecond)
	a.Record(OutcomeSuccess, 200*time.Millisecond)
	a.Record(OutcomeFailure, 300*time.Millisecond)
	a.RecordRetry()

	snap, err := a.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.TotalProcessed)
	assert.Equal(t, int64(2), snap.Successful)
	assert.Equal(t, int64(1), snap.Failed)
	assert.Equal(t, int64(1), snap.Retries)
	assert.InDelta(t, 200.0, snap.AverageLatencyMs, 0.001)
	assert.False(t, snap.LastProcessedAt.IsZero())
}

func TestAggregator_SnapshotMergesQueueSizes(t *testing.T) {
	a := NewAggregator(&stubIntrospector{stats: &queue.Stats{Waiting: 7, Failed: 3}})

	snap, err := a.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, snap.QueueSize)
	assert.Equal(t, 3, snap.DLQSize)
}

func TestAggregator_SnapshotQueueError(t *testing.T) {
	a := NewAggregator(&stubIntrospector{err: errors.New("redis down")})

	_, err := a.Snapshot(context.Background())
	assert.Error(t, err)
}

func TestAggregator_Reset(t *testing.T) {
	a := NewAggregator(nil)
	a.Record(OutcomeSuccess, time.Millisecond)
	a.RecordRetry()

	a.Reset()

	snap, err := a.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.TotalProcessed)
	assert.Zero(t, snap.Successful)
	assert.Zero(t, snap.Retries)
	assert.Zero(t, snap.AverageLatencyMs)
	assert.True(t, snap.LastProcessedAt.IsZero())
}
