// Package merge is the dependency-aware merge orchestrator: dry-run
// conflict probes, topological merge ordering, post-merge validation
// with atomic rollback, and worktree cleanup (spec.md §4.F). It is
// grounded in spirit on the teacher's phase runner
// (cmd/ao/rpi_phased_phase_runner.go), which already sequences
// dependent stages and aborts a run rather than skipping ahead on
// failure — the same policy merge_all_safe needs.
package merge

import (
	"context"
	"fmt"
	"time"

	"github.com/flowforge/flowforge/internal/registry"
	"github.com/flowforge/flowforge/internal/transport"
	"github.com/flowforge/flowforge/internal/workspace"
)

// ConflictCheck is the outcome of a dry-run merge probe.
type ConflictCheck struct {
	Success       bool
	ConflictFiles []string
}

// Result is the outcome of a merge attempt.
type Result struct {
	FeatureID      string
	Success        bool
	ConflictFiles  []string
	ValidationRan  bool
	ValidationOut  string
	CleanupWarning string
	Err            error
}

// Orchestrator merges review-status features into trunk, one at a time,
// honoring dependency order.
type Orchestrator struct {
	Registry     *registry.Registry
	Transport    transport.Transport
	Workspaces   *workspace.Manager
	ProjectRoot  string
	TrunkBranch  string
	BuildCommand string // shell-interpreted; empty disables validation
}

// New constructs an Orchestrator.
func New(reg *registry.Registry, t transport.Transport, ws *workspace.Manager, projectRoot, trunkBranch, buildCommand string) *Orchestrator {
	return &Orchestrator{
		Registry:     reg,
		Transport:    t,
		Workspaces:   ws,
		ProjectRoot:  projectRoot,
		TrunkBranch:  trunkBranch,
		BuildCommand: buildCommand,
	}
}

// CheckConflicts checks out trunk, pulls, attempts a no-commit merge of
// id's branch, collects unmerged paths, and always aborts the probe
// merge so the working tree is left clean.
func (o *Orchestrator) CheckConflicts(ctx context.Context, id string) (ConflictCheck, error) {
	f, err := o.Registry.Get(id)
	if err != nil {
		return ConflictCheck{}, err
	}
	if f.Branch == "" {
		return ConflictCheck{}, fmt.Errorf("feature %s has no branch to check", id)
	}

	if err := o.checkoutTrunkAndPull(ctx); err != nil {
		return ConflictCheck{}, err
	}

	conflicts, err := transport.DryRunMergeProbe(ctx, o.Transport, o.ProjectRoot, f.Branch)
	if err != nil {
		return ConflictCheck{}, err
	}
	return ConflictCheck{Success: len(conflicts) == 0, ConflictFiles: conflicts}, nil
}

func (o *Orchestrator) checkoutTrunkAndPull(ctx context.Context) error {
	res := o.Transport.Run(ctx, []string{"git", "-C", o.ProjectRoot, "checkout", o.TrunkBranch}, "", nil)
	if !res.Succeeded() {
		return fmt.Errorf("checkout trunk failed: %s", res.Stderr)
	}
	res = o.Transport.Run(ctx, []string{"git", "-C", o.ProjectRoot, "pull"}, "", nil)
	if !res.Succeeded() {
		return fmt.Errorf("pull trunk failed: %s", res.Stderr)
	}
	return nil
}

// ComputeMergeOrder returns a full topological ordering of all
// review-status features (dependencies first, ties broken by ascending
// priority), or a prefix plus ErrCycle when the restricted graph
// contains a cycle.
func (o *Orchestrator) ComputeMergeOrder() ([]string, error) {
	candidates := o.Registry.GetMergeCandidates()
	return computeOrder(candidates)
}

// Merge merges id's branch into trunk. Steps, per spec.md §4.F: re-probe
// conflicts; checkout+pull trunk; non-fast-forward merge with a
// structured commit message; optional build-command validation with
// hard-reset rollback on failure; mark the feature completed; optional
// cleanup of the worktree and branch.
func (o *Orchestrator) Merge(ctx context.Context, id string, validate, autoCleanup bool) (Result, error) {
	f, err := o.Registry.Get(id)
	if err != nil {
		return Result{FeatureID: id, Err: err}, err
	}
	if f.Status != registry.StatusReview {
		return Result{FeatureID: id, Err: ErrNotReview}, ErrNotReview
	}

	check, err := o.CheckConflicts(ctx, id)
	if err != nil {
		return Result{FeatureID: id, Err: err}, err
	}
	if !check.Success {
		o.recordQueueItem(id, registry.MergeItemConflict, "", check.ConflictFiles)
		return Result{FeatureID: id, Success: false, ConflictFiles: check.ConflictFiles, Err: ErrConflicts}, ErrConflicts
	}

	if err := o.checkoutTrunkAndPull(ctx); err != nil {
		return Result{FeatureID: id, Err: err}, err
	}

	commitMsg := fmt.Sprintf("Merge feature: %s (%s)", f.Title, f.ID)
	mergeRes := o.Transport.Run(ctx, []string{"git", "-C", o.ProjectRoot, "merge", "--no-ff", "-m", commitMsg, f.Branch}, "", nil)
	if !mergeRes.Succeeded() {
		return Result{FeatureID: id, Err: fmt.Errorf("merge failed: %s", mergeRes.Stderr)}, fmt.Errorf("merge failed: %s", mergeRes.Stderr)
	}

	result := Result{FeatureID: id, Success: true}

	if validate && o.BuildCommand != "" {
		result.ValidationRan = true
		buildRes := o.Transport.Run(ctx, []string{"sh", "-c", o.BuildCommand}, o.ProjectRoot, nil)
		result.ValidationOut = buildRes.Stdout + buildRes.Stderr
		if !buildRes.Succeeded() {
			// Atomic rollback: one hard reset undoes exactly the merge
			// commit just created. Registry is untouched since it is only
			// updated after source control succeeds.
			o.Transport.Run(ctx, []string{"git", "-C", o.ProjectRoot, "reset", "--hard", "HEAD~1"}, "", nil)
			result.Success = false
			result.Err = ErrValidationFailed
			return result, ErrValidationFailed
		}
	}

	statusCompleted := registry.StatusCompleted
	if _, err := o.Registry.Update(id, registry.Patch{Status: &statusCompleted}); err != nil {
		return result, err
	}
	o.recordQueueItem(id, registry.MergeItemMerged, "", nil)

	if autoCleanup {
		if err := o.Workspaces.Remove(ctx, id, true, true); err != nil {
			result.CleanupWarning = fmt.Sprintf("merge succeeded but cleanup failed: %v", err)
		} else {
			emptyBranch, emptyPath := "", ""
			o.Registry.Update(id, registry.Patch{Branch: &emptyBranch, WorkspacePath: &emptyPath})
		}
	}

	return result, nil
}

func (o *Orchestrator) recordQueueItem(featureID string, status registry.MergeItemStatus, validationOutcome string, conflictFiles []string) {
	o.Registry.SetMergeQueueItem(registry.MergeQueueItem{
		FeatureID:         featureID,
		QueuedAt:          time.Now(),
		Status:            status,
		ValidationOutcome: validationOutcome,
		ConflictFiles:     conflictFiles,
	})
}

// MergeAllSafe merges every review-status feature in dependency order,
// stopping at the first failure — later features may depend on the one
// that failed, so skipping ahead would be unsafe.
func (o *Orchestrator) MergeAllSafe(ctx context.Context, validate bool) ([]Result, error) {
	order, orderErr := o.ComputeMergeOrder()

	var results []Result
	for _, id := range order {
		res, err := o.Merge(ctx, id, validate, true)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	if orderErr != nil {
		return results, orderErr
	}
	return results, nil
}

// SyncFeature rebases id's branch onto trunk, inside its worktree.
func (o *Orchestrator) SyncFeature(ctx context.Context, id string) error {
	return o.Workspaces.SyncFromTrunk(ctx, id)
}
