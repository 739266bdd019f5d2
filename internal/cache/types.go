// Package cache is the offline-first local mirror of a project's registry
// (spec.md §4.G): an embedded relational store holding cached project and
// feature rows, a pending-operation queue for mutations made while the
// workstation is unreachable, and per-project sync state. Grounded on the
// modernc.org/sqlite usage in jra3-linear-fuse's internal/db and
// hugo-lorenzo-mato-quorum-ai, the teacher having no embedded-database
// precedent of its own.
package cache

import "time"

// OperationKind is the mutation kind recorded in the pending queue.
type OperationKind string

const (
	OpAddFeature    OperationKind = "add_feature"
	OpUpdateFeature OperationKind = "update_feature"
	OpDeleteFeature OperationKind = "delete_feature"
)

// OperationStatus is a pending operation's lifecycle state.
type OperationStatus string

const (
	OpPending   OperationStatus = "pending"
	OpSyncing   OperationStatus = "syncing"
	OpCompleted OperationStatus = "completed"
	OpFailed    OperationStatus = "failed"
)

// SyncStatus is a project's reconciliation state.
type SyncStatus string

const (
	SyncSynced   SyncStatus = "synced"
	SyncPending  SyncStatus = "pending"
	SyncConflict SyncStatus = "conflict"
)

// PendingOperation is one queued mutation awaiting replay against the
// workstation.
type PendingOperation struct {
	ID           int64
	ProjectName  string
	Operation    OperationKind
	Payload      map[string]any
	CreatedAt    time.Time
	Status       OperationStatus
	ErrorMessage string
}

// ProjectRow is the cached row for one project.
type ProjectRow struct {
	Name         string
	Path         string
	CachedAt     time.Time
	ConfigJSON   []byte
	RegistryJSON []byte
}

// SyncState is a project's last-known reconciliation state with the
// workstation's registry.
type SyncState struct {
	ProjectName        string
	LastSync           time.Time
	LastRegistryHash   string
	Status             SyncStatus
}
