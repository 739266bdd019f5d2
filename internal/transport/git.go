package transport

import (
	"context"
	"strings"
)

// Worktree describes one entry from `git worktree list --porcelain`.
type Worktree struct {
	Path   string
	Branch string // empty when detached
	Head   string
}

// AddWorktree runs `git worktree add <path> <branch>` in repoRoot, creating
// branch from base if it does not already exist.
func AddWorktree(ctx context.Context, t Transport, repoRoot, path, branch, base string, branchExists bool) Result {
	args := []string{"git", "-C", repoRoot, "worktree", "add"}
	if !branchExists {
		args = append(args, "-b", branch, path, base)
	} else {
		args = append(args, path, branch)
	}
	return t.Run(ctx, args, "", nil)
}

// RemoveWorktree runs `git worktree remove`, optionally forced.
func RemoveWorktree(ctx context.Context, t Transport, repoRoot, path string, force bool) Result {
	args := []string{"git", "-C", repoRoot, "worktree", "remove", path}
	if force {
		args = append(args, "--force")
	}
	return t.Run(ctx, args, "", nil)
}

// ListWorktrees returns the machine-readable worktree list.
func ListWorktrees(ctx context.Context, t Transport, repoRoot string) ([]Worktree, error) {
	res := t.Run(ctx, []string{"git", "-C", repoRoot, "worktree", "list", "--porcelain"}, "", nil)
	if !res.Succeeded() {
		return nil, errorFromResult(res)
	}
	return parseWorktreePorcelain(res.Stdout), nil
}

func parseWorktreePorcelain(out string) []Worktree {
	var result []Worktree
	var current *Worktree
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			if current != nil {
				result = append(result, *current)
			}
			current = &Worktree{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "HEAD "):
			if current != nil {
				current.Head = strings.TrimPrefix(line, "HEAD ")
			}
		case strings.HasPrefix(line, "branch "):
			if current != nil {
				current.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
			}
		}
	}
	if current != nil {
		result = append(result, *current)
	}
	return result
}

// ListMergedBranches returns branches merged into targetBranch.
func ListMergedBranches(ctx context.Context, t Transport, repoRoot, targetBranch string) ([]string, error) {
	res := t.Run(ctx, []string{"git", "-C", repoRoot, "branch", "--merged", targetBranch, "--format=%(refname:short)"}, "", nil)
	if !res.Succeeded() {
		return nil, errorFromResult(res)
	}
	var branches []string
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && line != targetBranch {
			branches = append(branches, line)
		}
	}
	return branches, nil
}

// DryRunMergeProbe attempts a no-commit merge of branch into the currently
// checked-out HEAD in repoRoot and always aborts afterward, even on
// success, so the working tree is left untouched. It returns the list of
// conflicting paths, empty when the merge would succeed cleanly.
func DryRunMergeProbe(ctx context.Context, t Transport, repoRoot, branch string) ([]string, error) {
	mergeRes := t.Run(ctx, []string{"git", "-C", repoRoot, "merge", "--no-commit", "--no-ff", branch}, "", nil)

	var conflicts []string
	if !mergeRes.Succeeded() {
		statusRes := t.Run(ctx, []string{"git", "-C", repoRoot, "diff", "--name-only", "--diff-filter=U"}, "", nil)
		if statusRes.Succeeded() {
			conflicts = splitNonEmptyLines(statusRes.Stdout)
		}
	}

	// Always abort: a dry-run probe must never leave state behind, whether
	// the merge succeeded or conflicted.
	abortRes := t.Run(ctx, []string{"git", "-C", repoRoot, "merge", "--abort"}, "", nil)
	if !abortRes.Succeeded() {
		// No commit was made in the no-commit case, so "merge --abort" can
		// legitimately fail with "no merge to abort"; that is not an error
		// for the probe's purposes. Reset as a fallback to guarantee a
		// clean tree.
		t.Run(ctx, []string{"git", "-C", repoRoot, "reset", "--hard", "HEAD"}, "", nil)
	}

	if mergeRes.ReturnCode == -1 {
		return nil, errorFromResult(mergeRes)
	}
	return conflicts, nil
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func errorFromResult(r Result) error {
	return &CommandError{ReturnCode: r.ReturnCode, Stderr: r.Stderr}
}

// CommandError wraps a failed Result as an error for callers that prefer
// Go error semantics over inspecting ReturnCode directly.
type CommandError struct {
	ReturnCode int
	Stderr     string
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return "command failed"
}
