package workspace

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/flowforge/flowforge/internal/transport"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func newTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-b", "main")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "initial")
	return dir
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func TestCreateAndRemoveWorktree(t *testing.T) {
	requireGit(t)
	repo := newTestRepo(t)
	mgr := NewManager(repo, "", "main", transport.LocalTransport{})

	path, branch, err := mgr.Create(context.Background(), "dark-mode", "main")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if branch != "feature/dark-mode" {
		t.Fatalf("got branch %q", branch)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected worktree dir, got %v", err)
	}

	_, _, err = mgr.Create(context.Background(), "dark-mode", "main")
	if err != ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	// Give the branch a commit of its own so it is not merged into main;
	// remove without force should then fail.
	runGit(t, path, "commit", "--allow-empty", "-m", "wip")
	if err := mgr.Remove(context.Background(), "dark-mode", false, false); err != ErrNotMerged {
		t.Fatalf("expected ErrNotMerged, got %v", err)
	}

	if err := mgr.Remove(context.Background(), "dark-mode", true, true); err != nil {
		t.Fatalf("forced remove: %v", err)
	}
}

func TestStatusReportsDirty(t *testing.T) {
	requireGit(t)
	repo := newTestRepo(t)
	mgr := NewManager(repo, "", "main", transport.LocalTransport{})

	path, _, err := mgr.Create(context.Background(), "feat-x", "main")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	status, err := mgr.Status(context.Background(), "feat-x")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Exists || status.HasUncommittedChanges {
		t.Fatalf("got %+v", status)
	}

	if err := os.WriteFile(filepath.Join(path, "new.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	status, err = mgr.Status(context.Background(), "feat-x")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.HasUncommittedChanges {
		t.Fatalf("expected dirty workspace")
	}
}

func TestStatusOnMissingWorkspace(t *testing.T) {
	requireGit(t)
	repo := newTestRepo(t)
	mgr := NewManager(repo, "", "main", transport.LocalTransport{})

	status, err := mgr.Status(context.Background(), "never-created")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Exists {
		t.Fatalf("expected missing workspace")
	}
}
