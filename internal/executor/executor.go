package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flowforge/flowforge/internal/workspace"
)

// Workspacer is the subset of workspace.Manager the executor needs,
// narrowed to an interface so tests can substitute a fake.
type Workspacer interface {
	Create(ctx context.Context, featureID, baseBranch string) (path, branch string, err error)
	Path(featureID string) string
}

// maxHistoryPerFeature bounds the in-memory progress history kept for a
// feature once its original caller's channel has terminated. Only the most
// recent records are kept; callers needing the full raw output should read
// Result.RawOutput from the terminal record instead.
const maxHistoryPerFeature = 256

// Executor is the bounded-concurrency scheduler (spec.md §4.E). Capacity
// active executions run concurrently; overflow is queued FIFO. The active
// set and pending queue are guarded by one mutex, held only across the
// small critical sections that touch them, never across I/O (spec.md §5).
//
// A caller's returned channel is live only for the execution it started
// directly. Once a request is queued, spec.md is explicit that "the
// sequence yields exactly one pending record and terminates" — the
// original channel closes there. Progress for a later, drained run is
// recorded into per-feature history instead, polled through History.
type Executor struct {
	mu       sync.Mutex
	capacity int
	active   map[string]*activeExecution
	queue    []*pendingRequest
	history  map[string][]Progress

	Workspaces     Workspacer
	Spawner        Spawner
	Command        []string // argv of the external assistant, prompt appended
	PromptTemplate string
}

type activeExecution struct {
	cancel context.CancelFunc
	child  Child
}

type pendingRequest struct {
	featureID  string
	spec       string
	project    string
	baseBranch string
}

// New creates an Executor with the given concurrency cap (spec.md
// reference value 5).
func New(capacity int, ws Workspacer, spawner Spawner, command []string) *Executor {
	if capacity <= 0 {
		capacity = 5
	}
	if command == nil {
		command = []string{"claude"}
	}
	return &Executor{
		capacity:       capacity,
		active:         map[string]*activeExecution{},
		history:        map[string][]Progress{},
		Workspaces:     ws,
		Spawner:        spawner,
		Command:        command,
		PromptTemplate: DefaultPromptTemplate,
	}
}

// ActiveCount returns the number of currently running executions.
func (e *Executor) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// QueueLen returns the number of queued (not yet started) requests.
func (e *Executor) QueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// History returns the progress records recorded for featureID, oldest
// first. It is the only way to observe a drained queued execution's
// progress, since its original caller's channel already closed at queue
// time; it also works for an execution started immediately.
func (e *Executor) History(featureID string) []Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	recs := e.history[featureID]
	out := make([]Progress, len(recs))
	copy(out, recs)
	return out
}

func (e *Executor) recordHistory(featureID string, p Progress) {
	e.mu.Lock()
	defer e.mu.Unlock()
	recs := append(e.history[featureID], p)
	if len(recs) > maxHistoryPerFeature {
		recs = recs[len(recs)-maxHistoryPerFeature:]
	}
	e.history[featureID] = recs
}

// ExecuteFeature runs the external assistant inside featureID's workspace
// and returns a lazy stream of progress records. If a slot is available it
// starts immediately; otherwise the request is queued and the returned
// channel yields exactly one pending record before closing, per spec.md
// §4.E. baseBranch is the trunk branch the workspace is created from.
func (e *Executor) ExecuteFeature(ctx context.Context, featureID, spec, project, baseBranch string) <-chan Progress {
	e.mu.Lock()
	if _, running := e.active[featureID]; running {
		e.mu.Unlock()
		return oneShot(Progress{FeatureID: featureID, Kind: KindFailed, Message: ErrAlreadyRunning.Error(), At: time.Now()})
	}
	for _, q := range e.queue {
		if q.featureID == featureID {
			e.mu.Unlock()
			return oneShot(Progress{FeatureID: featureID, Kind: KindFailed, Message: ErrAlreadyRunning.Error(), At: time.Now()})
		}
	}

	if len(e.active) >= e.capacity {
		p := Progress{FeatureID: featureID, Kind: KindPending, Message: "queued: all execution slots busy", At: time.Now()}
		e.queue = append(e.queue, &pendingRequest{featureID: featureID, spec: spec, project: project, baseBranch: baseBranch})
		e.mu.Unlock()
		e.recordHistory(featureID, p)
		return oneShot(p)
	}
	e.mu.Unlock()

	return e.start(ctx, featureID, spec, project, baseBranch, true)
}

func oneShot(p Progress) <-chan Progress {
	ch := make(chan Progress, 1)
	ch <- p
	close(ch)
	return ch
}

// start launches one execution. When forward is true the caller's returned
// channel receives every record live, in addition to it being recorded in
// history; when false (a request drained from the queue, whose original
// caller already stopped listening), records go to history only and the
// run is never blocked on an unread channel.
//
// The two background goroutines this spawns (the progress collector and
// the child reader) run under an errgroup.Group so a panic in either is
// recovered, turned into an error, and observed by a supervising
// goroutine instead of crashing the process and silently wedging every
// other execution the scheduler is running.
func (e *Executor) start(parent context.Context, featureID, spec, project, baseBranch string, forward bool) <-chan Progress {
	internal := make(chan Progress, 32)
	ctx, cancel := context.WithCancel(parent)

	e.mu.Lock()
	e.active[featureID] = &activeExecution{cancel: cancel}
	e.mu.Unlock()

	var external chan Progress
	if forward {
		external = make(chan Progress, 16)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.collectSupervised(internal, external) })
	g.Go(func() error { return e.runSupervised(gctx, cancel, featureID, spec, project, baseBranch, internal) })

	go func() {
		if err := g.Wait(); err != nil {
			e.recordHistory(featureID, Progress{FeatureID: featureID, Kind: KindFailed, Message: err.Error(), At: time.Now()})
		}
	}()

	if external == nil {
		return nil
	}
	return external
}

// collect drains internal, recording every record to history and, when
// external is non-nil, relaying it onward before closing external.
func (e *Executor) collect(internal <-chan Progress, external chan Progress) {
	if external != nil {
		defer close(external)
	}
	for p := range internal {
		e.recordHistory(p.FeatureID, p)
		if external != nil {
			external <- p
		}
	}
}

// collectSupervised is collect wrapped for errgroup.Group.Go: a panic
// while relaying progress is recovered and reported as an error rather
// than crashing the scheduler.
func (e *Executor) collectSupervised(internal <-chan Progress, external chan Progress) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("progress collector panicked: %v", r)
		}
	}()
	e.collect(internal, external)
	return nil
}

// runSupervised is run wrapped for errgroup.Group.Go, recovering a panic
// the same way collectSupervised does. run's own deferred cleanup
// (closing out, freeing the active slot, cancelling ctx) still executes
// during the panic unwind, since those defers are registered in run's own
// frame; only the crash is prevented.
func (e *Executor) runSupervised(ctx context.Context, cancel context.CancelFunc, featureID, spec, project, baseBranch string, out chan<- Progress) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("execution %s panicked: %v", featureID, r)
		}
	}()
	e.run(ctx, cancel, featureID, spec, project, baseBranch, out)
	return nil
}

func (e *Executor) run(ctx context.Context, cancel context.CancelFunc, featureID, spec, project, baseBranch string, out chan<- Progress) {
	defer close(out)
	defer e.finish(featureID)
	defer cancel()

	out <- Progress{FeatureID: featureID, Kind: KindCreatingWorkspace, Message: "creating workspace", At: time.Now()}

	path, _, err := e.Workspaces.Create(ctx, featureID, baseBranch)
	if err != nil && !isAlreadyExists(err) {
		out <- Progress{FeatureID: featureID, Kind: KindFailed, Message: fmt.Sprintf("workspace creation failed: %v", err), At: time.Now(),
			Result: &Result{Success: false}}
		return
	}
	if path == "" {
		path = e.Workspaces.Path(featureID)
	}

	prompt := BuildPrompt(e.PromptTemplate, project, spec)
	argv := append(append([]string(nil), e.Command...), prompt)

	child, err := e.Spawner.Spawn(ctx, argv, path)
	if err != nil {
		out <- Progress{FeatureID: featureID, Kind: KindFailed, Message: fmt.Sprintf("spawn failed: %v", err), At: time.Now(),
			Result: &Result{Success: false}}
		return
	}

	e.mu.Lock()
	if ae, ok := e.active[featureID]; ok {
		ae.child = child
	}
	e.mu.Unlock()

	out <- Progress{FeatureID: featureID, Kind: KindRunning, Message: "assistant running", At: time.Now()}

	var sb strings.Builder
	sawSentinel := false
	for line := range child.Lines() {
		sb.WriteString(line)
		sb.WriteString("\n")
		out <- Progress{FeatureID: featureID, Kind: KindRunning, Line: line, At: time.Now()}
		if strings.Contains(line, CompletionSentinel) {
			sawSentinel = true
			break
		}
	}

	exitCode, waitErr := child.Wait()
	rawOutput := sb.String()
	_, changedFiles, summary := parseCompletion(rawOutput)

	success := sawSentinel && exitCode == 0 && waitErr == nil
	result := &Result{
		Success:      success,
		ExitCode:     exitCode,
		ChangedFiles: changedFiles,
		Summary:      summary,
		RawOutput:    rawOutput,
	}

	kind := KindFailed
	msg := "execution failed"
	if success {
		kind = KindCompleted
		msg = "execution completed"
	}
	out <- Progress{FeatureID: featureID, Kind: kind, Message: msg, At: time.Now(), Result: result}
}

func isAlreadyExists(err error) bool {
	return err == workspace.ErrAlreadyExists
}

// finish releases featureID's slot and promotes the next queued request,
// if any. The promoted request's progress is not forwarded anywhere —
// its original caller's channel is long closed — it only accumulates in
// History.
func (e *Executor) finish(featureID string) {
	e.mu.Lock()
	delete(e.active, featureID)

	var next *pendingRequest
	if len(e.queue) > 0 {
		next = e.queue[0]
		e.queue = e.queue[1:]
	}
	e.mu.Unlock()

	if next == nil {
		return
	}

	e.start(context.Background(), next.featureID, next.spec, next.project, next.baseBranch, false)
}

// Cancel kills a running execution or removes a queued one, by feature id.
func (e *Executor) Cancel(featureID string) error {
	e.mu.Lock()
	if ae, ok := e.active[featureID]; ok {
		delete(e.active, featureID)
		child := ae.child
		cancel := ae.cancel
		e.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if child != nil {
			return child.Kill()
		}
		return nil
	}

	for i, q := range e.queue {
		if q.featureID == featureID {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			e.mu.Unlock()
			return nil
		}
	}
	e.mu.Unlock()
	return ErrNotActiveOrQueued
}
