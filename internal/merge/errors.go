package merge

import "errors"

// Sentinel errors for the merge package.
var (
	// ErrConflicts is returned by Merge when the conflict probe finds
	// unmerged paths.
	ErrConflicts = errors.New("feature branch conflicts with trunk")

	// ErrValidationFailed is returned by Merge when the post-merge build
	// command exits non-zero; the merge has already been rolled back.
	ErrValidationFailed = errors.New("post-merge validation failed, merge rolled back")

	// ErrNotReview is returned by Merge when the feature is not in status
	// review.
	ErrNotReview = errors.New("feature is not in status review")

	// ErrCycle is returned by ComputeMergeOrder when the review set's
	// dependency graph contains a cycle it cannot fully order.
	ErrCycle = errors.New("dependency graph among review features contains a cycle")
)
