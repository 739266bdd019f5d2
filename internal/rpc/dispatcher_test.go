package rpc

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/flowforge/internal/cache"
	"github.com/flowforge/flowforge/internal/transport"
)

// fakeTransport always succeeds; it exists only so workspace/merge
// plumbing has something to call through without touching a real shell.
type fakeTransport struct{}

func (fakeTransport) Run(ctx context.Context, argv []string, cwd string, env map[string]string) transport.Result {
	return transport.Result{ReturnCode: 0}
}
func (fakeTransport) ReadFile(ctx context.Context, path string) ([]byte, error) { return nil, nil }
func (fakeTransport) WriteFile(ctx context.Context, path string, data []byte) error {
	return nil
}
func (fakeTransport) Exists(ctx context.Context, path string, kind transport.Kind) (bool, error) {
	return false, nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, string) {
	t.Helper()
	projectPath := t.TempDir()
	d := New(Config{
		Transport:        fakeTransport{},
		TrunkBranch:      "main",
		AssistantCommand: []string{"true"},
	})
	return d, projectPath
}

func TestDispatchUnknownToolReturnsError(t *testing.T) {
	d, path := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), "no_such_tool", map[string]any{"project": path})
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestAddFeatureThenListFeatures(t *testing.T) {
	d, path := newTestDispatcher(t)
	ctx := context.Background()

	res, err := d.Dispatch(ctx, "add_feature", map[string]any{"project": path, "title": "Dark mode"})
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = d.Dispatch(ctx, "list_features", map[string]any{"project": path})
	require.NoError(t, err)
	require.True(t, res.Success)
	data := res.Data.(map[string]any)
	assert.Len(t, data["features"], 1)
}

func TestAddFeatureEnforcesPlannedCap(t *testing.T) {
	d, path := newTestDispatcher(t)
	ctx := context.Background()

	for _, title := range []string{"A", "B", "C"} {
		res, err := d.Dispatch(ctx, "add_feature", map[string]any{"project": path, "title": title})
		require.NoError(t, err)
		require.True(t, res.Success)
	}

	res, err := d.Dispatch(ctx, "add_feature", map[string]any{"project": path, "title": "D"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	data := res.Data.(map[string]any)
	assert.Equal(t, "max_planned_features", data["constraint"])
	assert.Equal(t, 3, data["limit"])
}

func TestStartThenStopFeatureTransitionsStatus(t *testing.T) {
	d, path := newTestDispatcher(t)
	ctx := context.Background()

	_, err := d.Dispatch(ctx, "add_feature", map[string]any{"project": path, "title": "Dark mode"})
	require.NoError(t, err)

	startRes, err := d.Dispatch(ctx, "start_feature", map[string]any{"project": path, "id": "dark-mode"})
	require.NoError(t, err)
	require.True(t, startRes.Success)

	stopRes, err := d.Dispatch(ctx, "stop_feature", map[string]any{"project": path, "id": "dark-mode"})
	require.NoError(t, err)
	require.True(t, stopRes.Success)
}

func TestDeleteFeatureRemovesIt(t *testing.T) {
	d, path := newTestDispatcher(t)
	ctx := context.Background()

	_, err := d.Dispatch(ctx, "add_feature", map[string]any{"project": path, "title": "Dark mode"})
	require.NoError(t, err)

	res, err := d.Dispatch(ctx, "delete_feature", map[string]any{"project": path, "id": "dark-mode"})
	require.NoError(t, err)
	assert.True(t, res.Success)

	listRes, err := d.Dispatch(ctx, "list_features", map[string]any{"project": path})
	require.NoError(t, err)
	data := listRes.Data.(map[string]any)
	assert.Empty(t, data["features"])
}

type fakeHealth struct{ reachable bool }

func (f fakeHealth) Reachable() bool { return f.reachable }

func TestOfflineAwareQueuesMutationsWhenUnreachable(t *testing.T) {
	d, path := newTestDispatcher(t)
	ctx := context.Background()

	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	offline := &OfflineAware{Inner: d, Health: fakeHealth{reachable: false}, Cache: store}

	res, err := offline.Dispatch(ctx, "add_feature", map[string]any{"project": path, "title": "Dark mode"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, true, res.Data.(map[string]any)["queued"])

	pending, err := store.GetPending(ctx, path)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, cache.OpAddFeature, pending[0].Operation)
	assert.Equal(t, "Dark mode", pending[0].Payload["title"])

	// The registry itself was never touched.
	listRes, err := d.Dispatch(ctx, "list_features", map[string]any{"project": path})
	require.NoError(t, err)
	assert.Empty(t, listRes.Data.(map[string]any)["features"])
}

func TestOfflineAwarePassesThroughReadsRegardlessOfHealth(t *testing.T) {
	d, path := newTestDispatcher(t)
	ctx := context.Background()
	offline := &OfflineAware{Inner: d, Health: fakeHealth{reachable: false}}

	res, err := offline.Dispatch(ctx, "list_features", map[string]any{"project": path})
	require.NoError(t, err)
	assert.True(t, res.Success)
}
