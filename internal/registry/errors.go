package registry

import "errors"

// Sentinel errors for the registry package. Using sentinels instead of
// ad-hoc fmt.Errorf allows callers to match with errors.Is.
var (
	// ErrFeatureNotFound is returned when a feature id has no entry.
	ErrFeatureNotFound = errors.New("feature not found")

	// ErrDuplicateID is returned when adding a feature whose id already exists.
	ErrDuplicateID = errors.New("feature id already exists")

	// ErrSelfDependency is returned when a feature would depend on itself.
	ErrSelfDependency = errors.New("a feature cannot depend on itself")

	// ErrCyclicDependency is returned when a dependency edge would create a cycle.
	ErrCyclicDependency = errors.New("dependency graph would contain a cycle")

	// ErrInvalidStatus is returned when a status value is not recognized.
	ErrInvalidStatus = errors.New("invalid feature status")

	// ErrHasChildren is returned when removing a feature that still has children.
	ErrHasChildren = errors.New("feature has children; remove or reparent them first")

	// ErrFeatureInProgress is returned when removing an in-progress feature without force.
	ErrFeatureInProgress = errors.New("feature is in-progress; pass force to remove anyway")

	// ErrPlannedCapExceeded is returned by Add when the planned-feature cap would be exceeded.
	ErrPlannedCapExceeded = errors.New("planned feature cap exceeded")
)

// PlannedCapError carries the structured detail spec.md §8 requires:
// the offending titles and the configured limit.
type PlannedCapError struct {
	Limit         int
	PlannedTitles []string
}

func (e *PlannedCapError) Error() string {
	return ErrPlannedCapExceeded.Error()
}

func (e *PlannedCapError) Unwrap() error {
	return ErrPlannedCapExceeded
}
