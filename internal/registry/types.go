// Package registry holds the authoritative, on-disk record of features,
// their dependencies, statuses, and the merge queue for one project.
package registry

import "time"

// FeatureStatus is the lifecycle state of a feature (spec.md §3).
type FeatureStatus string

const (
	StatusPlanned    FeatureStatus = "planned"
	StatusInProgress FeatureStatus = "in-progress"
	StatusReview     FeatureStatus = "review"
	StatusCompleted  FeatureStatus = "completed"
	StatusBlocked    FeatureStatus = "blocked"
)

// Valid reports whether s is one of the known statuses.
func (s FeatureStatus) Valid() bool {
	switch s {
	case StatusPlanned, StatusInProgress, StatusReview, StatusCompleted, StatusBlocked:
		return true
	}
	return false
}

// Complexity is a rough size estimate for a feature.
type Complexity string

const (
	ComplexitySmall  Complexity = "small"
	ComplexityMedium Complexity = "medium"
	ComplexityLarge  Complexity = "large"
	ComplexityEpic   Complexity = "epic"
)

// Valid reports whether c is one of the known complexities. Decode paths
// tolerate the zero value (unset) rather than rejecting it, per
// SPEC_FULL.md's forward-compatibility requirement.
func (c Complexity) Valid() bool {
	switch c {
	case "", ComplexitySmall, ComplexityMedium, ComplexityLarge, ComplexityEpic:
		return true
	}
	return false
}

// Feature is the unit of work tracked in the registry.
type Feature struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	Description     string        `json:"description,omitempty"`
	Status          FeatureStatus `json:"status"`
	Priority        int           `json:"priority"`
	Complexity      Complexity    `json:"complexity,omitempty"`
	ParentID        string        `json:"parent_id,omitempty"`
	Children        []string      `json:"children,omitempty"`
	DependsOn       []string      `json:"depends_on,omitempty"`
	Blockers        []string      `json:"blockers,omitempty"`
	Branch          string        `json:"branch,omitempty"`
	WorkspacePath   string        `json:"workspace_path,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	SpecPath        string        `json:"spec_path,omitempty"`
	PromptPath      string        `json:"prompt_path,omitempty"`
	Tags            []string      `json:"tags,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
}

// MergeQueueItem tracks a feature's progress through the merge pipeline.
type MergeQueueItem struct {
	FeatureID         string          `json:"feature_id"`
	QueuedAt          time.Time       `json:"queued_at"`
	Status            MergeItemStatus `json:"status"`
	ValidationOutcome string          `json:"validation_outcome,omitempty"`
	ConflictFiles     []string        `json:"conflict_files,omitempty"`
}

// MergeItemStatus is the lifecycle state of a merge queue item.
type MergeItemStatus string

const (
	MergeItemPending    MergeItemStatus = "pending"
	MergeItemValidating MergeItemStatus = "validating"
	MergeItemReady      MergeItemStatus = "ready"
	MergeItemConflict   MergeItemStatus = "conflict"
	MergeItemMerged      MergeItemStatus = "merged"
)

// Document is the on-disk JSON shape of the registry file (spec.md §6).
type Document struct {
	Version        string                 `json:"version"`
	Features       map[string]*Feature    `json:"features"`
	MergeQueue     []MergeQueueItem       `json:"merge_queue"`
	ShippingStats  map[string]any         `json:"shipping_stats,omitempty"`
}

// CurrentVersion is the schema version written by this implementation.
const CurrentVersion = "1.0.0"
