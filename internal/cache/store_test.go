package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCacheProjectRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	features := map[string][]byte{
		"widget": []byte(`{"id":"widget"}`),
	}
	require.NoError(t, s.CacheProject(ctx, "demo", "/ws/demo", []byte(`{"version":"1.0.0"}`), []byte(`{"version":"1.0.0"}`), features))

	row, err := s.GetProject(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", row.Name)
	assert.Equal(t, "/ws/demo", row.Path)
}

func TestCacheProjectRebuildsFeatureRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CacheProject(ctx, "demo", "/ws/demo", []byte(`{}`), []byte(`{}`),
		map[string][]byte{"a": []byte(`{}`), "b": []byte(`{}`)}))
	require.NoError(t, s.CacheProject(ctx, "demo", "/ws/demo", []byte(`{}`), []byte(`{}`),
		map[string][]byte{"c": []byte(`{}`)}))

	var count int
	conn, err := s.db.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM features WHERE project_name = ?`, "demo").Scan(&count))
	assert.Equal(t, 1, count, "stale feature rows from the prior cache must be replaced, not accumulated")
}

func TestQueueAndDrainPendingOperationsInOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.QueueOperation(ctx, "demo", OpAddFeature, map[string]any{"title": "first"})
	require.NoError(t, err)
	id2, err := s.QueueOperation(ctx, "demo", OpUpdateFeature, map[string]any{"id": "first", "status": "review"})
	require.NoError(t, err)

	pending, err := s.GetPending(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, id1, pending[0].ID)
	assert.Equal(t, id2, pending[1].ID)
	assert.Equal(t, "first", pending[0].Payload["title"])

	require.NoError(t, s.MarkOperationSyncing(ctx, id1))
	require.NoError(t, s.MarkOperationCompleted(ctx, id1))
	require.NoError(t, s.MarkOperationFailed(ctx, id2, "workstation unreachable"))

	afterUpdate, err := s.GetPending(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, afterUpdate, 2)
	assert.Equal(t, OpCompleted, afterUpdate[0].Status)
	assert.Equal(t, OpFailed, afterUpdate[1].Status)
	assert.Equal(t, "workstation unreachable", afterUpdate[1].ErrorMessage)

	require.NoError(t, s.ClearCompleted(ctx, "demo"))
	remaining, err := s.GetPending(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, id2, remaining[0].ID)
}

func TestSyncStateDefaultsToPending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	st, err := s.GetSyncState(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, SyncPending, st.Status)
}

func TestSyncStateRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.UpdateSyncState(ctx, "demo", now, "abc123", SyncSynced))

	st, err := s.GetSyncState(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "abc123", st.LastRegistryHash)
	assert.Equal(t, SyncSynced, st.Status)
	assert.WithinDuration(t, now, st.LastSync, time.Second)
}

func TestStatsCountsPendingByStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.QueueOperation(ctx, "demo", OpAddFeature, map[string]any{})
	require.NoError(t, err)
	require.NoError(t, s.MarkOperationCompleted(ctx, id))
	_, err = s.QueueOperation(ctx, "demo", OpAddFeature, map[string]any{})
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	byStatus := stats["pending_operations_by_status"].(map[string]int)
	assert.Equal(t, 1, byStatus[string(OpCompleted)])
	assert.Equal(t, 1, byStatus[string(OpPending)])
}
