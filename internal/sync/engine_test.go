package sync

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/flowforge/internal/cache"
	"github.com/flowforge/flowforge/internal/registry"
	"github.com/flowforge/flowforge/internal/transport"
)

// fakeTransport is an in-memory filesystem; Run always succeeds, only
// ReadFile/WriteFile are exercised by the sync engine.
type fakeTransport struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{files: map[string][]byte{}}
}

func (f *fakeTransport) Run(ctx context.Context, argv []string, cwd string, env map[string]string) transport.Result {
	return transport.Result{ReturnCode: 0}
}

func (f *fakeTransport) ReadFile(ctx context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	if !ok {
		return nil, assert.AnError
	}
	return data, nil
}

func (f *fakeTransport) WriteFile(ctx context.Context, path string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = data
	return nil
}

func (f *fakeTransport) Exists(ctx context.Context, path string, kind transport.Kind) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[path]
	return ok, nil
}

func openTestCache(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedRemoteRegistry(t *testing.T, ft *fakeTransport, path string, titles ...string) {
	t.Helper()
	reg := registry.New(registry.DefaultPlannedCap)
	for _, title := range titles {
		_, err := reg.Add(registry.AddInput{Title: title})
		require.NoError(t, err)
	}
	data, err := reg.Bytes()
	require.NoError(t, err)
	require.NoError(t, ft.WriteFile(context.Background(), path, data))
}

func TestSyncProjectAppliesQueuedAddFeature(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTransport()
	seedRemoteRegistry(t, ft, "/remote/demo/registry.json")
	store := openTestCache(t)
	eng := NewEngine(ft, store)

	_, err := store.QueueOperation(ctx, "demo", cache.OpAddFeature, map[string]any{"title": "widget support"})
	require.NoError(t, err)

	outcome, err := eng.SyncProject(ctx, Project{Name: "demo", Path: "/ws/demo", RegistryPath: "/remote/demo/registry.json"})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Applied)
	assert.Equal(t, 0, outcome.Failed)
	assert.Empty(t, outcome.Conflicts)

	data, err := ft.ReadFile(ctx, "/remote/demo/registry.json")
	require.NoError(t, err)
	var doc registry.Document
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Features, 1)

	state, err := store.GetSyncState(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, cache.SyncSynced, state.Status)
}

func TestSyncProjectFlagsDuplicateTitleAsConflict(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTransport()
	seedRemoteRegistry(t, ft, "/remote/demo/registry.json", "widget support")
	store := openTestCache(t)
	eng := NewEngine(ft, store)

	_, err := store.QueueOperation(ctx, "demo", cache.OpAddFeature, map[string]any{"title": "Widget Support"})
	require.NoError(t, err)

	outcome, err := eng.SyncProject(ctx, Project{Name: "demo", Path: "/ws/demo", RegistryPath: "/remote/demo/registry.json"})
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.Applied)
	assert.Equal(t, 1, outcome.Failed)
	require.Len(t, outcome.Conflicts, 1)
	assert.Equal(t, ConflictDuplicateTitle, outcome.Conflicts[0].Kind)

	pending, err := store.GetPending(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, cache.OpFailed, pending[0].Status)
}

func TestSyncProjectIgnoresWorkstationOwnedFieldsOnUpdate(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTransport()
	reg := registry.New(registry.DefaultPlannedCap)
	f, err := reg.Add(registry.AddInput{Title: "widget support"})
	require.NoError(t, err)
	data, err := reg.Bytes()
	require.NoError(t, err)
	require.NoError(t, ft.WriteFile(ctx, "/remote/demo/registry.json", data))

	store := openTestCache(t)
	eng := NewEngine(ft, store)

	_, err = store.QueueOperation(ctx, "demo", cache.OpUpdateFeature, map[string]any{
		"id":     f.ID,
		"title":  "widget support v2",
		"status": "completed",
	})
	require.NoError(t, err)

	outcome, err := eng.SyncProject(ctx, Project{Name: "demo", Path: "/ws/demo", RegistryPath: "/remote/demo/registry.json"})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Applied)
	require.Len(t, outcome.Conflicts, 1)
	assert.Equal(t, ConflictFieldOwnership, outcome.Conflicts[0].Kind)

	updatedData, err := ft.ReadFile(ctx, "/remote/demo/registry.json")
	require.NoError(t, err)
	updatedReg, err := registry.LoadFromBytes(updatedData, registry.DefaultPlannedCap)
	require.NoError(t, err)
	got, err := updatedReg.Get(f.ID)
	require.NoError(t, err)
	assert.Equal(t, "widget support v2", got.Title)
	assert.Equal(t, registry.StatusPlanned, got.Status, "status is workstation-owned and must not be overwritten by a replayed local update")
}

func TestSyncProjectUnreadableRegistryReturnsError(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTransport()
	store := openTestCache(t)
	eng := NewEngine(ft, store)

	_, err := eng.SyncProject(ctx, Project{Name: "demo", Path: "/ws/demo", RegistryPath: "/remote/demo/registry.json"})
	assert.Error(t, err)
}
