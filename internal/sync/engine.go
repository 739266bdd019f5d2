package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/flowforge/flowforge/internal/cache"
	"github.com/flowforge/flowforge/internal/registry"
	"github.com/flowforge/flowforge/internal/transport"
)

// Project is the sync engine's view of one tracked project: where its
// authoritative registry lives on the workstation, and where its
// workspace root is for cache bookkeeping.
type Project struct {
	Name         string
	Path         string
	RegistryPath string
	ConfigPath   string
}

// Engine owns the cache database and the transport to the workstation,
// and drains each project's pending operations against the authoritative
// remote registry.
type Engine struct {
	Transport  transport.Transport
	Cache      *cache.Store
	PlannedCap int
}

// NewEngine builds an Engine with spec.md §4.C's default planned-feature cap.
func NewEngine(t transport.Transport, c *cache.Store) *Engine {
	return &Engine{Transport: t, Cache: c, PlannedCap: registry.DefaultPlannedCap}
}

// SyncAll runs SyncProject for every project, continuing past individual
// failures so one unreachable or malformed project doesn't block the rest.
func (e *Engine) SyncAll(ctx context.Context, projects []Project) map[string]error {
	results := make(map[string]error, len(projects))
	for _, p := range projects {
		_, err := e.SyncProject(ctx, p)
		results[p.Name] = err
	}
	return results
}

// SyncProject implements spec.md §4.H's four-step algorithm: read the
// authoritative registry, detect conflicts against the last-seen hash,
// drain pending operations in creation order, then re-cache and update
// sync_state.
func (e *Engine) SyncProject(ctx context.Context, p Project) (DrainOutcome, error) {
	outcome := DrainOutcome{ProjectName: p.Name}

	remoteData, err := e.Transport.ReadFile(ctx, p.RegistryPath)
	if err != nil {
		return outcome, fmt.Errorf("read remote registry for %s: %w", p.Name, err)
	}

	remoteReg, err := registry.LoadFromBytes(remoteData, e.plannedCap())
	if err != nil {
		return outcome, fmt.Errorf("parse remote registry for %s: %w", p.Name, err)
	}

	priorHash, err := cache.ComputeRegistryHash(remoteReg.Document())
	if err != nil {
		return outcome, fmt.Errorf("hash remote registry for %s: %w", p.Name, err)
	}

	state, err := e.Cache.GetSyncState(ctx, p.Name)
	if err != nil {
		return outcome, fmt.Errorf("load sync state for %s: %w", p.Name, err)
	}

	queued, err := e.Cache.GetPending(ctx, p.Name)
	if err != nil {
		return outcome, fmt.Errorf("load pending operations for %s: %w", p.Name, err)
	}
	// GetPending also returns completed and failed operations that have not
	// been cleared yet; only those still pending are replayed.
	var pending []cache.PendingOperation
	for _, op := range queued {
		if op.Status == cache.OpPending {
			pending = append(pending, op)
		}
	}

	remoteChangedUnderUs := state.LastRegistryHash != "" && state.LastRegistryHash != priorHash && len(pending) > 0

	for _, op := range pending {
		if err := e.Cache.MarkOperationSyncing(ctx, op.ID); err != nil {
			return outcome, fmt.Errorf("mark operation %d syncing: %w", op.ID, err)
		}

		conflicts, applyErr := e.applyOperation(remoteReg, op)
		outcome.Conflicts = append(outcome.Conflicts, conflicts...)

		if applyErr != nil {
			if markErr := e.Cache.MarkOperationFailed(ctx, op.ID, applyErr.Error()); markErr != nil {
				return outcome, fmt.Errorf("mark operation %d failed: %w", op.ID, markErr)
			}
			outcome.Failed++
			continue
		}
		if err := e.Cache.MarkOperationCompleted(ctx, op.ID); err != nil {
			return outcome, fmt.Errorf("mark operation %d completed: %w", op.ID, err)
		}
		outcome.Applied++
	}

	newData, err := remoteReg.Bytes()
	if err != nil {
		return outcome, fmt.Errorf("marshal updated registry for %s: %w", p.Name, err)
	}
	if outcome.Applied > 0 {
		if err := e.Transport.WriteFile(ctx, p.RegistryPath, newData); err != nil {
			return outcome, fmt.Errorf("write back registry for %s: %w", p.Name, err)
		}
	}

	configJSON := []byte("{}")
	if p.ConfigPath != "" {
		if data, err := e.Transport.ReadFile(ctx, p.ConfigPath); err == nil {
			configJSON = data
		}
	}

	features := map[string][]byte{}
	for id, f := range remoteReg.Document().Features {
		data, err := json.Marshal(f)
		if err != nil {
			return outcome, fmt.Errorf("marshal feature %s: %w", id, err)
		}
		features[id] = data
	}
	if err := e.Cache.CacheProject(ctx, p.Name, p.Path, configJSON, newData, features); err != nil {
		return outcome, fmt.Errorf("re-cache project %s: %w", p.Name, err)
	}

	newHash, err := cache.ComputeRegistryHash(remoteReg.Document())
	if err != nil {
		return outcome, fmt.Errorf("hash updated registry for %s: %w", p.Name, err)
	}
	outcome.NewRegistryHash = newHash

	status := cache.SyncSynced
	if remoteChangedUnderUs || len(outcome.Conflicts) > 0 {
		status = cache.SyncConflict
	}
	if err := e.Cache.UpdateSyncState(ctx, p.Name, time.Now().UTC(), newHash, status); err != nil {
		return outcome, fmt.Errorf("update sync state for %s: %w", p.Name, err)
	}

	return outcome, nil
}

func (e *Engine) plannedCap() int {
	if e.PlannedCap <= 0 {
		return registry.DefaultPlannedCap
	}
	return e.PlannedCap
}

// applyOperation replays one queued operation against the in-memory copy
// of the remote registry. add_feature is refused (as a conflict, not a
// hard error-free skip) when a remote feature already carries the same
// title case-insensitively. update_feature applies only the user-authored
// fields (title, description, tags); status, branch, and workspace_path
// are workstation-owned and are recorded as an ownership conflict rather
// than overwritten, per spec.md §4.H.
func (e *Engine) applyOperation(reg *registry.Registry, op cache.PendingOperation) ([]Conflict, error) {
	switch op.Operation {
	case cache.OpAddFeature:
		return e.applyAdd(reg, op)
	case cache.OpUpdateFeature:
		return e.applyUpdate(reg, op)
	case cache.OpDeleteFeature:
		return nil, e.applyDelete(reg, op)
	default:
		return nil, ErrUnknownOperation
	}
}

func (e *Engine) applyAdd(reg *registry.Registry, op cache.PendingOperation) ([]Conflict, error) {
	title, _ := op.Payload["title"].(string)

	for _, f := range reg.List(registry.ListFilter{}) {
		if strings.EqualFold(f.Title, title) {
			conflict := Conflict{
				ProjectName: op.ProjectName,
				FeatureID:   f.ID,
				Kind:        ConflictDuplicateTitle,
				Detail:      fmt.Sprintf("queued add_feature %q matches existing remote feature %s", title, f.ID),
			}
			return []Conflict{conflict}, fmt.Errorf("duplicate feature title %q", title)
		}
	}

	in := registry.AddInput{
		Title:       title,
		Description: stringField(op.Payload, "description"),
		Priority:    intField(op.Payload, "priority"),
		Complexity:  registry.Complexity(stringField(op.Payload, "complexity")),
		ParentID:    stringField(op.Payload, "parent_id"),
		DependsOn:   stringSliceField(op.Payload, "depends_on"),
		Tags:        stringSliceField(op.Payload, "tags"),
	}
	_, err := reg.Add(in)
	return nil, err
}

func (e *Engine) applyUpdate(reg *registry.Registry, op cache.PendingOperation) ([]Conflict, error) {
	id, _ := op.Payload["id"].(string)

	var conflicts []Conflict
	patch := registry.Patch{}
	if v, ok := op.Payload["title"].(string); ok {
		patch.Title = &v
	}
	if v, ok := op.Payload["description"].(string); ok {
		patch.Description = &v
	}
	if _, ok := op.Payload["tags"]; ok {
		tags := stringSliceField(op.Payload, "tags")
		patch.Tags = &tags
	}

	for _, ownedField := range []string{"status", "branch", "workspace_path"} {
		if _, ok := op.Payload[ownedField]; ok {
			conflicts = append(conflicts, Conflict{
				ProjectName: op.ProjectName,
				FeatureID:   id,
				Kind:        ConflictFieldOwnership,
				Detail:      fmt.Sprintf("queued update_feature touched workstation-owned field %q; ignored", ownedField),
			})
		}
	}

	_, err := reg.Update(id, patch)
	return conflicts, err
}

func (e *Engine) applyDelete(reg *registry.Registry, op cache.PendingOperation) error {
	id, _ := op.Payload["id"].(string)
	force, _ := op.Payload["force"].(bool)
	return reg.Remove(id, force)
}

func stringField(payload map[string]any, key string) string {
	v, _ := payload[key].(string)
	return v
}

func intField(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func stringSliceField(payload map[string]any, key string) []string {
	raw, ok := payload[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
