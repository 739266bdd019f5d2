package executor

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTimeoutErr mimics the error *os.File returns once a deadline set by
// SetReadDeadline elapses.
type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string { return "i/o timeout" }
func (fakeTimeoutErr) Timeout() bool { return true }

// fakeRawChild serves Read from a fixed string; once exhausted, if stall
// is set, it blocks until its deadline and then reports a timeout exactly
// as a real pipe would, instead of returning io.EOF.
type fakeRawChild struct {
	mu       sync.Mutex
	r        *strings.Reader
	deadline time.Time
	stall    bool
	killed   bool
}

func newFakeRawChild(output string, stall bool) *fakeRawChild {
	return &fakeRawChild{r: strings.NewReader(output), stall: stall}
}

func (c *fakeRawChild) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if err == io.EOF && c.stall {
		c.mu.Lock()
		deadline := c.deadline
		c.mu.Unlock()
		if wait := time.Until(deadline); wait > 0 {
			time.Sleep(wait)
		}
		return 0, fakeTimeoutErr{}
	}
	return n, err
}

func (c *fakeRawChild) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadline = t
	c.mu.Unlock()
	return nil
}

func (c *fakeRawChild) Wait() (int, error) { return 0, nil }

func (c *fakeRawChild) Kill() error {
	c.mu.Lock()
	c.killed = true
	c.mu.Unlock()
	return nil
}

type fakeRawSpawner struct {
	child *fakeRawChild
	argv  []string
	cwd   string
}

func (f *fakeRawSpawner) SpawnRaw(ctx context.Context, argv []string, cwd string) (RawChild, error) {
	f.argv = argv
	f.cwd = cwd
	return f.child, nil
}

func setBrainstormTimeouts(chunk, turn time.Duration) {
	BrainstormChunkTimeout = chunk
	BrainstormTurnCeiling = turn
}

func drainChunks(t *testing.T, ch <-chan ChatChunk, timeout time.Duration) []ChatChunk {
	t.Helper()
	var out []ChatChunk
	deadline := time.After(timeout)
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, c)
		case <-deadline:
			t.Fatal("timed out draining chat chunk channel")
			return nil
		}
	}
}

func TestStreamBrainstormYieldsChunksAndCleanClose(t *testing.T) {
	child := newFakeRawChild("hello from the assistant", false)
	spawner := &fakeRawSpawner{child: child}

	chunks := drainChunks(t, StreamBrainstorm(context.Background(), spawner, []string{"claude"}, nil, "hi"), 2*time.Second)

	var combined strings.Builder
	for _, c := range chunks {
		combined.Write(c.Data)
	}
	assert.Equal(t, "hello from the assistant", combined.String())

	last := chunks[len(chunks)-1]
	assert.True(t, last.Done)
	assert.False(t, last.TimedOut)

	require.Equal(t, []string{"claude", BuildBrainstormPrompt(nil, "hi")}, spawner.argv)
	assert.Equal(t, "", spawner.cwd, "chat variant must not run inside a project workspace")
}

func TestStreamBrainstormChunkTimeoutKillsChild(t *testing.T) {
	child := newFakeRawChild("", true)
	spawner := &fakeRawSpawner{child: child}

	origChunk, origTurn := BrainstormChunkTimeout, BrainstormTurnCeiling
	setBrainstormTimeouts(20*time.Millisecond, time.Hour)
	defer setBrainstormTimeouts(origChunk, origTurn)

	chunks := drainChunks(t, StreamBrainstorm(context.Background(), spawner, []string{"claude"}, nil, "hi"), 2*time.Second)

	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].TimedOut)
	assert.True(t, chunks[0].Done)

	child.mu.Lock()
	killed := child.killed
	child.mu.Unlock()
	assert.True(t, killed, "child should be killed on chunk timeout")
}

func TestStreamBrainstormTurnCeilingKillsChild(t *testing.T) {
	child := newFakeRawChild("", true)
	spawner := &fakeRawSpawner{child: child}

	origChunk, origTurn := BrainstormChunkTimeout, BrainstormTurnCeiling
	setBrainstormTimeouts(time.Hour, 20*time.Millisecond)
	defer setBrainstormTimeouts(origChunk, origTurn)

	chunks := drainChunks(t, StreamBrainstorm(context.Background(), spawner, []string{"claude"}, nil, "hi"), 2*time.Second)

	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].TimedOut)
	assert.Contains(t, chunks[0].Message, "turn ceiling")
}

func TestBuildBrainstormPromptRebuildsTranscript(t *testing.T) {
	transcript := []ChatTurn{
		{Role: "user", Text: "what should we build?"},
		{Role: "assistant", Text: "a dashboard"},
	}
	prompt := BuildBrainstormPrompt(transcript, "make it dark mode")

	assert.Contains(t, prompt, "user: what should we build?")
	assert.Contains(t, prompt, "assistant: a dashboard")
	assert.Contains(t, prompt, "user: make it dark mode")
	assert.True(t, strings.Index(prompt, "what should we build?") < strings.Index(prompt, "make it dark mode"))
}
