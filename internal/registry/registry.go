package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/renameio/v2"
)

// DefaultPlannedCap is the reference shipping-machine constraint: at most
// this many features may be in the planned state at once (spec.md §4.C).
const DefaultPlannedCap = 3

// Registry is the in-memory + on-disk record of one project's features.
// All mutating methods hold a single mutex and rewrite the whole document
// on Save, matching spec.md §5: "the registry file is owned by one writer
// per process; all saves are full-file rewrites."
type Registry struct {
	mu         sync.Mutex
	doc        Document
	path       string
	plannedCap int
}

// New creates an empty registry not yet bound to a file.
func New(plannedCap int) *Registry {
	if plannedCap <= 0 {
		plannedCap = DefaultPlannedCap
	}
	return &Registry{
		doc: Document{
			Version:  CurrentVersion,
			Features: map[string]*Feature{},
		},
		plannedCap: plannedCap,
	}
}

// Load reads a registry document from path. A missing file yields an empty
// registry bound to path (so a subsequent Save creates it).
func Load(path string, plannedCap int) (*Registry, error) {
	r := New(plannedCap)
	r.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	if doc.Features == nil {
		doc.Features = map[string]*Feature{}
	}
	if doc.Version == "" {
		doc.Version = CurrentVersion
	}
	r.doc = doc
	return r, nil
}

// LoadFromBytes parses a registry document already held in memory — the
// sync engine's path for the copy it reads from the workstation over the
// transport, rather than from a local file.
func LoadFromBytes(data []byte, plannedCap int) (*Registry, error) {
	r := New(plannedCap)
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	if doc.Features == nil {
		doc.Features = map[string]*Feature{}
	}
	if doc.Version == "" {
		doc.Version = CurrentVersion
	}
	r.doc = doc
	return r, nil
}

// Bytes marshals the current document, for a caller (the sync engine)
// that needs to write it somewhere other than r.path.
func (r *Registry) Bytes() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return json.MarshalIndent(r.doc, "", "  ")
}

// Save atomically rewrites the registry file at r.path.
func (r *Registry) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked()
}

func (r *Registry) saveLocked() error {
	if r.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(r.doc, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(r.path, data, 0o644)
}

// AddInput are the user-supplied fields for a new feature.
type AddInput struct {
	Title       string
	Description string
	Priority    int
	Complexity  Complexity
	ParentID    string
	DependsOn   []string
	Tags        []string
}

// Add creates a new feature in status planned. It fails with a
// *PlannedCapError if doing so would exceed the planned-feature cap, with
// ErrDuplicateID on an identifier clash, and with ErrSelfDependency /
// ErrCyclicDependency if DependsOn is invalid.
func (r *Registry) Add(in AddInput) (*Feature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := GenerateID(in.Title)
	if _, exists := r.doc.Features[id]; exists {
		return nil, ErrDuplicateID
	}

	plannedTitles := r.plannedTitlesLocked()
	if len(plannedTitles) >= r.plannedCap {
		return nil, &PlannedCapError{Limit: r.plannedCap, PlannedTitles: plannedTitles}
	}

	for _, dep := range in.DependsOn {
		if dep == id {
			return nil, ErrSelfDependency
		}
	}
	if err := r.wouldCycleLocked(id, in.DependsOn); err != nil {
		return nil, err
	}

	now := time.Now()
	f := &Feature{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		Status:      StatusPlanned,
		Priority:    in.Priority,
		Complexity:  in.Complexity,
		ParentID:    in.ParentID,
		DependsOn:   append([]string(nil), in.DependsOn...),
		Tags:        append([]string(nil), in.Tags...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	r.doc.Features[id] = f
	if in.ParentID != "" {
		if parent, ok := r.doc.Features[in.ParentID]; ok {
			parent.Children = append(parent.Children, id)
		}
	}
	return f, r.saveLocked()
}

func (r *Registry) plannedTitlesLocked() []string {
	var titles []string
	for _, f := range r.doc.Features {
		if f.Status == StatusPlanned {
			titles = append(titles, f.Title)
		}
	}
	sort.Strings(titles)
	return titles
}

// wouldCycleLocked reports whether adding edges id -> deps would create a
// cycle in the dependency graph.
func (r *Registry) wouldCycleLocked(id string, deps []string) error {
	visited := map[string]bool{}
	var visit func(string) error
	visit = func(cur string) error {
		if cur == id {
			return ErrCyclicDependency
		}
		if visited[cur] {
			return nil
		}
		visited[cur] = true
		f, ok := r.doc.Features[cur]
		if !ok {
			return nil
		}
		for _, d := range f.DependsOn {
			if err := visit(d); err != nil {
				return err
			}
		}
		return nil
	}
	for _, d := range deps {
		if err := visit(d); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the feature with the given id.
func (r *Registry) Get(id string) (*Feature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.doc.Features[id]
	if !ok {
		return nil, ErrFeatureNotFound
	}
	return f, nil
}

// Patch describes a partial update to a feature; nil fields are untouched.
type Patch struct {
	Title         *string
	Description   *string
	Status        *FeatureStatus
	Priority      *int
	Complexity    *Complexity
	Branch        *string
	WorkspacePath *string
	Tags          *[]string
	Blockers      *[]string
	DependsOn     *[]string
}

// Update applies patch to feature id, bumping UpdatedAt. It refuses an
// unrecognized status.
func (r *Registry) Update(id string, patch Patch) (*Feature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.doc.Features[id]
	if !ok {
		return nil, ErrFeatureNotFound
	}

	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, ErrInvalidStatus
		}
		f.Status = *patch.Status
	}
	if patch.Title != nil {
		f.Title = *patch.Title
	}
	if patch.Description != nil {
		f.Description = *patch.Description
	}
	if patch.Priority != nil {
		f.Priority = *patch.Priority
	}
	if patch.Complexity != nil {
		f.Complexity = *patch.Complexity
	}
	if patch.Branch != nil {
		f.Branch = *patch.Branch
	}
	if patch.WorkspacePath != nil {
		f.WorkspacePath = *patch.WorkspacePath
	}
	if patch.Tags != nil {
		f.Tags = *patch.Tags
	}
	if patch.Blockers != nil {
		f.Blockers = *patch.Blockers
	}
	if patch.DependsOn != nil {
		for _, dep := range *patch.DependsOn {
			if dep == id {
				return nil, ErrSelfDependency
			}
		}
		if err := r.wouldCycleLocked(id, *patch.DependsOn); err != nil {
			return nil, err
		}
		f.DependsOn = *patch.DependsOn
	}

	f.UpdatedAt = time.Now()
	if f.Status == StatusCompleted && f.CompletedAt == nil {
		now := time.Now()
		f.CompletedAt = &now
	}
	return f, r.saveLocked()
}

// Remove deletes feature id. It refuses if the feature has children, and
// refuses an in-progress feature unless force is true.
func (r *Registry) Remove(id string, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.doc.Features[id]
	if !ok {
		return ErrFeatureNotFound
	}
	if len(f.Children) > 0 {
		return ErrHasChildren
	}
	if f.Status == StatusInProgress && !force {
		return ErrFeatureInProgress
	}

	if f.ParentID != "" {
		if parent, ok := r.doc.Features[f.ParentID]; ok {
			parent.Children = removeString(parent.Children, id)
		}
	}
	delete(r.doc.Features, id)
	return r.saveLocked()
}

func removeString(s []string, target string) []string {
	out := s[:0]
	for _, v := range s {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

// ListFilter narrows List results; zero-value fields are not filtered on.
type ListFilter struct {
	Status FeatureStatus
	Parent string
	Tag    string
}

// List returns features matching filter, sorted by id for determinism.
func (r *Registry) List(filter ListFilter) []*Feature {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Feature
	for _, f := range r.doc.Features {
		if filter.Status != "" && f.Status != filter.Status {
			continue
		}
		if filter.Parent != "" && f.ParentID != filter.Parent {
			continue
		}
		if filter.Tag != "" && !contains(f.Tags, filter.Tag) {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func contains(s []string, target string) bool {
	for _, v := range s {
		if v == target {
			return true
		}
	}
	return false
}

// GetRoots returns features with no parent.
func (r *Registry) GetRoots() []*Feature {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Feature
	for _, f := range r.doc.Features {
		if f.ParentID == "" {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetChildren returns the child features of id, in the order recorded.
func (r *Registry) GetChildren(id string) ([]*Feature, error) {
	r.mu.Lock()
	f, ok := r.doc.Features[id]
	if !ok {
		r.mu.Unlock()
		return nil, ErrFeatureNotFound
	}
	childIDs := append([]string(nil), f.Children...)
	r.mu.Unlock()

	var children []*Feature
	for _, cid := range childIDs {
		if c, err := r.Get(cid); err == nil {
			children = append(children, c)
		}
	}
	return children, nil
}

// GetReady returns planned features whose dependencies are all completed
// and whose blocker list is empty.
func (r *Registry) GetReady() []*Feature {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ready []*Feature
	for _, f := range r.doc.Features {
		if f.Status != StatusPlanned || len(f.Blockers) > 0 {
			continue
		}
		if r.allDepsCompletedLocked(f) {
			ready = append(ready, f)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })
	return ready
}

func (r *Registry) allDepsCompletedLocked(f *Feature) bool {
	for _, dep := range f.DependsOn {
		d, ok := r.doc.Features[dep]
		if !ok || d.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// GetMergeCandidates returns features in status review.
func (r *Registry) GetMergeCandidates() []*Feature {
	return r.List(ListFilter{Status: StatusReview})
}

// Stats returns counts by status, for the opaque shipping-stats surface.
func (r *Registry) Stats() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	byStatus := map[string]int{}
	for _, f := range r.doc.Features {
		byStatus[string(f.Status)]++
	}
	return map[string]any{
		"total":      len(r.doc.Features),
		"by_status":  byStatus,
		"merge_queue": len(r.doc.MergeQueue),
	}
}

// Document returns a copy of the underlying document, for callers (like the
// cache layer) that need the raw serializable form.
func (r *Registry) Document() Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc
}

// MergeQueue returns a copy of the merge queue.
func (r *Registry) MergeQueue() []MergeQueueItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]MergeQueueItem(nil), r.doc.MergeQueue...)
}

// SetMergeQueueItem upserts an item into the merge queue by feature id.
func (r *Registry) SetMergeQueueItem(item MergeQueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.doc.MergeQueue {
		if existing.FeatureID == item.FeatureID {
			r.doc.MergeQueue[i] = item
			return r.saveLocked()
		}
	}
	r.doc.MergeQueue = append(r.doc.MergeQueue, item)
	return r.saveLocked()
}
