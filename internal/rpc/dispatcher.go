package rpc

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/flowforge/flowforge/internal/executor"
	"github.com/flowforge/flowforge/internal/merge"
	"github.com/flowforge/flowforge/internal/registry"
	"github.com/flowforge/flowforge/internal/transport"
	"github.com/flowforge/flowforge/internal/workspace"
)

// Config is the shared, project-independent configuration every
// constructed project entry is built from.
type Config struct {
	Transport        transport.Transport
	ProjectsBase     string   // directory list_projects searches for marker files with find, run through Transport; required by list_projects
	MarkerFile       string   // file name identifying a project root, default ".flowforge-project"
	RegistryFileName string   // default "registry.json"
	TrunkBranch      string   // default "main"
	WorktreeBase     string   // passed to workspace.NewManager
	BuildCommand     string   // passed to merge.New
	AssistantCommand []string // argv of the external coding assistant, prompt appended
	ExecutorCapacity int      // default 5
	PlannedCap       int      // default registry.DefaultPlannedCap
}

func (c Config) markerFile() string {
	if c.MarkerFile == "" {
		return ".flowforge-project"
	}
	return c.MarkerFile
}

func (c Config) registryFileName() string {
	if c.RegistryFileName == "" {
		return "registry.json"
	}
	return c.RegistryFileName
}

func (c Config) trunkBranch() string {
	if c.TrunkBranch == "" {
		return "main"
	}
	return c.TrunkBranch
}

func (c Config) plannedCap() int {
	if c.PlannedCap <= 0 {
		return registry.DefaultPlannedCap
	}
	return c.PlannedCap
}

func (c Config) executorCapacity() int {
	if c.ExecutorCapacity <= 0 {
		return 5
	}
	return c.ExecutorCapacity
}

// projectEntry is the cached (config, registry) pair for one project
// path, along with the components built on top of it. add, update,
// delete, start and stop mutate the cached registry in place (it is held
// by pointer and rewrites its file on every change), so later calls in
// the same process see the current registry without re-reading it; only
// merge drops the entry, which is then rebuilt from disk on next use.
type projectEntry struct {
	path       string
	registry   *registry.Registry
	workspaces *workspace.Manager
	executor   *executor.Executor
	merge      *merge.Orchestrator
}

// Dispatcher is the tool-dispatch façade. One Dispatcher serves every
// project path passed in a call's "project" argument.
type Dispatcher struct {
	cfg Config

	mu       sync.Mutex
	projects map[string]*projectEntry

	handlers map[string]func(ctx context.Context, d *Dispatcher, args map[string]any) (Result, error)
}

// New builds a Dispatcher and its tool table.
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{cfg: cfg, projects: map[string]*projectEntry{}}
	d.handlers = map[string]func(context.Context, *Dispatcher, map[string]any) (Result, error){
		"list_projects":  handleListProjects,
		"list_features":  handleListFeatures,
		"status":         handleStatus,
		"start_feature":  handleStartFeature,
		"stop_feature":   handleStopFeature,
		"merge_check":    handleMergeCheck,
		"merge":          handleMerge,
		"add_feature":    handleAddFeature,
		"update_feature": handleUpdateFeature,
		"delete_feature": handleDeleteFeature,
	}
	return d
}

// Dispatch looks up name in the tool table and invokes it. An unknown
// name is reported through the error return (errors.Is ErrUnknownTool),
// not through a {success: false} envelope, since it indicates a caller
// bug rather than a domain-level failure.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) (Result, error) {
	h, ok := d.handlers[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return h(ctx, d, args)
}

// entry returns the cached projectEntry for path, constructing it on
// first use.
func (d *Dispatcher) entry(path string) (*projectEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.projects[path]; ok {
		return e, nil
	}
	e, err := d.buildEntry(path)
	if err != nil {
		return nil, err
	}
	d.projects[path] = e
	return e, nil
}

// invalidate drops path's cached entry — but since registry.Registry is
// held by pointer and its mutating methods already rewrite the file on
// every call, the entry is rebuilt lazily only to pick up config changes
// made outside this process; the in-memory registry is always current
// within it.
func (d *Dispatcher) invalidate(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.projects, path)
}

func (d *Dispatcher) buildEntry(path string) (*projectEntry, error) {
	registryPath := path + "/" + d.cfg.registryFileName()
	reg, err := registry.Load(registryPath, d.cfg.plannedCap())
	if err != nil {
		return nil, fmt.Errorf("load registry for %s: %w", path, err)
	}

	ws := workspace.NewManager(path, d.cfg.WorktreeBase, d.cfg.trunkBranch(), d.cfg.Transport)
	assistantCmd := d.cfg.AssistantCommand
	ex := executor.New(d.cfg.executorCapacity(), ws, executor.LocalSpawner{}, assistantCmd)
	mo := merge.New(reg, d.cfg.Transport, ws, path, d.cfg.trunkBranch(), d.cfg.BuildCommand)

	return &projectEntry{path: path, registry: reg, workspaces: ws, executor: ex, merge: mo}, nil
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingArgument, key)
	}
	return v, nil
}

func optionalString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func optionalBool(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

func optionalStringSlice(args map[string]any, key string) []string {
	if ss, ok := args[key].([]string); ok {
		return ss
	}
	raw, ok := args[key].([]any)
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

func optionalInt(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func normalizeStatus(s string) registry.FeatureStatus {
	return registry.FeatureStatus(strings.ToLower(strings.TrimSpace(s)))
}
