package redis

import (
	"context"
	"testing"
	"time"

	"enrollsync/internal/model"
	"enrollsync/pkg/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCursorRepo(t *testing.T) (*CursorRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(&config.Config{
		Redis: config.RedisConfig{Addr: mr.Addr()},
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return NewCursorRepository(client, 24*time.Hour, 24*time.Hour), mr
}

func TestCursorRepository_DefaultWhenAbsent(t *testing.T) {
	repo, _ := newTestCursorRepo(t)

	cursor, err := repo.Load(context.Background())
	require.NoError(t, err)

	// Fresh cursor looks back the configured window from now
	expected := time.Now().Add(-24 * time.Hour)
	assert.WithinDuration(t, expected, cursor.LastProcessedAt, 5*time.Second)
	assert.Zero(t, cursor.TotalProcessed)
	assert.Empty(t, cursor.LastEnrollmentID)
}

func TestCursorRepository_SaveAndLoad(t *testing.T) {
	repo, _ := newTestCursorRepo(t)
	ctx := context.Background()

	saved := model.SyncCursor{
		LastProcessedAt:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		LastEnrollmentID: "e-42",
		TotalProcessed:   17,
	}
	require.NoError(t, repo.Save(ctx, saved))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.True(t, loaded.LastProcessedAt.Equal(saved.LastProcessedAt))
	assert.Equal(t, "e-42", loaded.LastEnrollmentID)
	assert.Equal(t, int64(17), loaded.TotalProcessed)
}

func TestCursorRepository_TTLExpiry(t *testing.T) {
	repo, mr := newTestCursorRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, model.SyncCursor{
		LastProcessedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}))

	mr.FastForward(25 * time.Hour)

	// Expired cursor falls back to the default lookback
	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), loaded.LastProcessedAt, 5*time.Second)
}

func TestCursorRepository_MalformedTreatedAsAbsent(t *testing.T) {
	repo, mr := newTestCursorRepo(t)

	require.NoError(t, mr.Set("enrollment_sync_cursor", "{not-json"))

	loaded, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), loaded.LastProcessedAt, 5*time.Second)
}

func TestSyncCursor_AdvanceIsMonotonic(t *testing.T) {
	cursor := model.SyncCursor{
		LastProcessedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	cursor.Advance(time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC), "e-2")
	assert.Equal(t, 2, cursor.LastProcessedAt.Day())
	assert.Equal(t, "e-2", cursor.LastEnrollmentID)

	// Older timestamps never move the watermark backward
	cursor.Advance(time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC), "e-old")
	assert.Equal(t, 2, cursor.LastProcessedAt.Day())
	assert.Equal(t, "e-old", cursor.LastEnrollmentID)
}
