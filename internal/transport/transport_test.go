package transport

import (
	"context"
	"testing"
	"time"
)

func TestShellQuoteEscapesSingleQuotes(t *testing.T) {
	got := shellQuote(`it's a test`)
	want := `'it'\''s a test'`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestBuildArgvVerbatimWhenNoCwdOrEnv(t *testing.T) {
	got := buildArgv([]string{"git", "status"}, "", nil)
	if got != "'git' 'status'" {
		t.Fatalf("got %q", got)
	}
}

func TestBuildArgvWrapsCwdAndEnv(t *testing.T) {
	got := buildArgv([]string{"make", "build"}, "/repo", map[string]string{"FOO": "bar"})
	want := "cd '/repo' && export FOO='bar' && 'make' 'build'"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestLocalTransportRunSuccess(t *testing.T) {
	lt := LocalTransport{}
	res := lt.Run(context.Background(), []string{"echo", "hello"}, "", nil)
	if !res.Succeeded() {
		t.Fatalf("expected success, got %+v", res)
	}
}

func TestLocalTransportRunFailureReturnCode(t *testing.T) {
	lt := LocalTransport{}
	res := lt.Run(context.Background(), []string{"sh", "-c", "exit 3"}, "", nil)
	if res.ReturnCode != 3 {
		t.Fatalf("got return code %d", res.ReturnCode)
	}
}

func TestLocalTransportWriteAndReadFile(t *testing.T) {
	dir := t.TempDir()
	lt := LocalTransport{}
	path := dir + "/sub/file.txt"
	if err := lt.WriteFile(context.Background(), path, []byte("payload")); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := lt.ReadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("got %q", data)
	}
}

func TestLocalTransportExists(t *testing.T) {
	dir := t.TempDir()
	lt := LocalTransport{}
	ok, err := lt.Exists(context.Background(), dir, KindDir)
	if err != nil || !ok {
		t.Fatalf("expected dir to exist, ok=%v err=%v", ok, err)
	}
	ok, err = lt.Exists(context.Background(), dir+"/missing", KindFile)
	if err != nil || ok {
		t.Fatalf("expected missing file to not exist, ok=%v err=%v", ok, err)
	}
}

func TestLocalTransportTimeout(t *testing.T) {
	lt := LocalTransport{}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	res := lt.Run(ctx, []string{"sleep", "1"}, "", nil)
	if res.ReturnCode != -1 {
		t.Fatalf("expected timeout return code -1, got %+v", res)
	}
}

func TestResolveEngine(t *testing.T) {
	if got := ResolveEngine("", ""); got != EngineGo {
		t.Fatalf("got %q", got)
	}
	if got := ResolveEngine("", "/usr/bin/ssh"); got != EngineExec {
		t.Fatalf("got %q", got)
	}
	if got := ResolveEngine(EngineGo, "/usr/bin/ssh"); got != EngineGo {
		t.Fatalf("got %q", got)
	}
}

func TestParseWorktreePorcelain(t *testing.T) {
	out := "worktree /repo\nHEAD abc123\nbranch refs/heads/main\n\nworktree /repo-feat\nHEAD def456\nbranch refs/heads/feature/x\n"
	wts := parseWorktreePorcelain(out)
	if len(wts) != 2 {
		t.Fatalf("got %d worktrees", len(wts))
	}
	if wts[0].Branch != "main" || wts[1].Branch != "feature/x" {
		t.Fatalf("got %+v", wts)
	}
}
