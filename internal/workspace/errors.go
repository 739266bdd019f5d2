package workspace

import "errors"

// Sentinel errors for the workspace package.
var (
	// ErrAlreadyExists is returned by Create when the target directory exists.
	ErrAlreadyExists = errors.New("workspace already exists")

	// ErrNotMerged is returned by Remove when the branch is not merged into trunk.
	ErrNotMerged = errors.New("branch is not merged into trunk; pass force to remove anyway")

	// ErrUncommittedChanges is returned by SyncFromTrunk when the worktree is dirty.
	ErrUncommittedChanges = errors.New("workspace has uncommitted changes")

	// ErrRebaseConflict is returned when a rebase cannot complete cleanly.
	ErrRebaseConflict = errors.New("rebase conflict; resolve manually")

	// ErrNotFound is returned when a feature has no recorded workspace.
	ErrNotFound = errors.New("workspace not found")
)
