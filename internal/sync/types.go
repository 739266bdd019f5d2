// Package sync is the offline-first cache/sync engine: a health probe that
// tracks whether the workstation is reachable, and a sync loop that drains
// operations queued while it wasn't, grounded on the teacher's supervised
// cycle-loop idiom (cmd/ao/rpi_loop_supervisor.go) generalized from
// "supervise one external coding loop" to "supervise the health-probe and
// sync-loop goroutines."
package sync

import "time"

// DefaultProbePeriod and DefaultProbeCeiling match spec.md §4.H: the probe
// runs every 30s, and a single probe attempt is abandoned after 5s.
const (
	DefaultProbePeriod  = 30 * time.Second
	DefaultProbeCeiling = 5 * time.Second
	DefaultSyncPeriod   = 60 * time.Second
)

// Conflict records a field the sync engine could not resolve automatically
// while draining a pending operation.
type Conflict struct {
	ProjectName string
	FeatureID   string
	Kind        ConflictKind
	Detail      string
}

// ConflictKind distinguishes the two conflict shapes spec.md §4.H names.
type ConflictKind string

const (
	// ConflictDuplicateTitle: an add_feature payload's title matches an
	// existing remote feature's title case-insensitively.
	ConflictDuplicateTitle ConflictKind = "duplicate_feature"
	// ConflictFieldOwnership: an update_feature payload touched a
	// workstation-owned field (status, branch, workspace_path); the field
	// is left as the workstation has it, whether or not it changed there.
	ConflictFieldOwnership ConflictKind = "field_ownership"
)

// DrainOutcome summarizes one sync_project pass.
type DrainOutcome struct {
	ProjectName     string
	Applied         int
	Failed          int
	Conflicts       []Conflict
	NewRegistryHash string
}
