package executor

import "errors"

// Sentinel errors for the executor package.
var (
	// ErrNotActiveOrQueued is returned by Cancel when featureID has no
	// running or queued execution.
	ErrNotActiveOrQueued = errors.New("feature has no active or queued execution")

	// ErrAlreadyRunning is the error whose text ExecuteFeature puts in the
	// single failed progress record it sends when featureID is already
	// active or queued.
	ErrAlreadyRunning = errors.New("feature is already running or queued")
)
