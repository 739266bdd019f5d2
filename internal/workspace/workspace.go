// Package workspace creates and removes the isolated source-control
// worktrees the parallel executor spawns the coding assistant inside.
// Grounded on the teacher's internal/rpi/worktree.go, adapted from
// detached-checkout RPI runs to named feature branches, since FlowForge's
// registry invariants require status=in-progress to imply a named branch.
package workspace

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/flowforge/flowforge/internal/registry"
	"github.com/flowforge/flowforge/internal/transport"
)

// DefaultWorktreeBase is used when a project's config does not override it.
const DefaultWorktreeBase = ".flowforge-worktrees"

// Manager creates and removes worktrees for one project.
type Manager struct {
	ProjectRoot  string
	WorktreeBase string // relative to ProjectRoot
	MainBranch   string
	Transport    transport.Transport
}

// NewManager constructs a Manager, defaulting WorktreeBase when empty.
func NewManager(projectRoot, worktreeBase, mainBranch string, t transport.Transport) *Manager {
	if worktreeBase == "" {
		worktreeBase = DefaultWorktreeBase
	}
	return &Manager{ProjectRoot: projectRoot, WorktreeBase: worktreeBase, MainBranch: mainBranch, Transport: t}
}

// Path returns the worktree directory for a feature id, relative to the
// configured base under the project root.
func (m *Manager) Path(featureID string) string {
	return filepath.Join(m.ProjectRoot, m.WorktreeBase, featureID)
}

// Create creates a branch feature/<id> from baseBranch (if it does not
// already exist) and a worktree at Path(id). It fails if that directory
// already exists.
func (m *Manager) Create(ctx context.Context, featureID, baseBranch string) (path, branch string, err error) {
	path = m.Path(featureID)
	branch = registry.BranchName(featureID)

	if exists, _ := m.Transport.Exists(ctx, path, transport.KindDir); exists {
		return "", "", ErrAlreadyExists
	}

	base := filepath.Join(m.ProjectRoot, m.WorktreeBase)
	m.Transport.Run(ctx, []string{"mkdir", "-p", base}, "", nil)

	branchExists := m.branchExists(ctx, branch)
	res := transport.AddWorktree(ctx, m.Transport, m.ProjectRoot, path, branch, baseBranch, branchExists)
	if !res.Succeeded() {
		return "", "", fmt.Errorf("git worktree add failed: %s", res.Stderr)
	}
	return path, branch, nil
}

func (m *Manager) branchExists(ctx context.Context, branch string) bool {
	res := m.Transport.Run(ctx, []string{"git", "-C", m.ProjectRoot, "show-ref", "--verify", "--quiet", "refs/heads/" + branch}, "", nil)
	return res.Succeeded()
}

// Remove removes the worktree for featureID. It refuses when the branch is
// not merged into MainBranch unless force is true; with force, the force
// flag is passed through to the worktree-remove call. When deleteBranch is
// set, the branch ref itself is deleted afterward.
func (m *Manager) Remove(ctx context.Context, featureID string, force, deleteBranch bool) error {
	path := m.Path(featureID)
	branch := registry.BranchName(featureID)

	if !force {
		merged, err := transport.ListMergedBranches(ctx, m.Transport, m.ProjectRoot, m.MainBranch)
		if err != nil {
			return err
		}
		if !containsBranch(merged, branch) {
			return ErrNotMerged
		}
	}

	res := transport.RemoveWorktree(ctx, m.Transport, m.ProjectRoot, path, force)
	if !res.Succeeded() {
		return fmt.Errorf("git worktree remove failed: %s", res.Stderr)
	}

	if deleteBranch {
		// Branch deletion is best-effort and tolerates non-zero exit
		// (already deleted, or never pushed) per spec.md §6.
		m.Transport.Run(ctx, []string{"git", "-C", m.ProjectRoot, "branch", "-D", branch}, "", nil)
	}
	return nil
}

func containsBranch(branches []string, target string) bool {
	for _, b := range branches {
		if b == target {
			return true
		}
	}
	return false
}

// Status reports the live state of a feature's workspace.
type Status struct {
	Exists               bool
	HasUncommittedChanges bool
	CommitsAheadOfTrunk  int
	DirtyPaths           []string
	Ahead                int
	Behind               int
}

// Status returns the current state of featureID's workspace.
func (m *Manager) Status(ctx context.Context, featureID string) (Status, error) {
	path := m.Path(featureID)

	exists, err := m.Transport.Exists(ctx, path, transport.KindDir)
	if err != nil {
		return Status{}, err
	}
	if !exists {
		return Status{Exists: false}, nil
	}

	dirtyRes := m.Transport.Run(ctx, []string{"git", "-C", path, "status", "--porcelain"}, "", nil)
	var dirty []string
	for _, line := range strings.Split(strings.TrimRight(dirtyRes.Stdout, "\n"), "\n") {
		if strings.TrimSpace(line) != "" {
			dirty = append(dirty, strings.TrimSpace(line[3:]))
		}
	}

	ahead, behind := m.aheadBehind(ctx, path)

	return Status{
		Exists:                true,
		HasUncommittedChanges: len(dirty) > 0,
		CommitsAheadOfTrunk:   ahead,
		DirtyPaths:            dirty,
		Ahead:                 ahead,
		Behind:                behind,
	}, nil
}

func (m *Manager) aheadBehind(ctx context.Context, path string) (ahead, behind int) {
	res := m.Transport.Run(ctx, []string{"git", "-C", path, "rev-list", "--left-right", "--count", m.MainBranch + "...HEAD"}, "", nil)
	if !res.Succeeded() {
		return 0, 0
	}
	fields := strings.Fields(strings.TrimSpace(res.Stdout))
	if len(fields) != 2 {
		return 0, 0
	}
	behind, _ = strconv.Atoi(fields[0])
	ahead, _ = strconv.Atoi(fields[1])
	return ahead, behind
}

// SyncFromTrunk rebases featureID's workspace onto the freshly fetched
// trunk. It refuses when there are uncommitted changes and never attempts
// auto-resolution: on conflict it aborts the rebase and returns a hint.
func (m *Manager) SyncFromTrunk(ctx context.Context, featureID string) error {
	path := m.Path(featureID)

	status, err := m.Status(ctx, featureID)
	if err != nil {
		return err
	}
	if !status.Exists {
		return ErrNotFound
	}
	if status.HasUncommittedChanges {
		return ErrUncommittedChanges
	}

	fetchRes := m.Transport.Run(ctx, []string{"git", "-C", path, "fetch", "origin", m.MainBranch}, "", nil)
	if !fetchRes.Succeeded() {
		return fmt.Errorf("fetch trunk failed: %s", fetchRes.Stderr)
	}

	rebaseRes := m.Transport.Run(ctx, []string{"git", "-C", path, "rebase", "origin/" + m.MainBranch}, "", nil)
	if rebaseRes.Succeeded() {
		return nil
	}

	conflictRes := m.Transport.Run(ctx, []string{"git", "-C", path, "diff", "--name-only", "--diff-filter=U"}, "", nil)
	m.Transport.Run(ctx, []string{"git", "-C", path, "rebase", "--abort"}, "", nil)

	files := strings.TrimSpace(conflictRes.Stdout)
	return fmt.Errorf("%w: conflicting files:\n%s\nResolve manually in %s", ErrRebaseConflict, files, path)
}

// ListWorktrees lists all git worktrees for the project.
func (m *Manager) ListWorktrees(ctx context.Context) ([]transport.Worktree, error) {
	return transport.ListWorktrees(ctx, m.Transport, m.ProjectRoot)
}

// Prune runs `git worktree prune`.
func (m *Manager) Prune(ctx context.Context) error {
	res := m.Transport.Run(ctx, []string{"git", "-C", m.ProjectRoot, "worktree", "prune"}, "", nil)
	if !res.Succeeded() {
		return fmt.Errorf("worktree prune failed: %s", res.Stderr)
	}
	return nil
}
