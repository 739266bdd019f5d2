package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowforge/flowforge/internal/cache"
)

// Loop drives the probe and the periodic drain together: the drain only
// runs while the probe currently reports the workstation reachable, and a
// drain failure never stops the loop — it is logged and retried on the
// next tick, mirroring the teacher's cycle-failure-policy idiom
// (cmd/ao/rpi_loop_supervisor.go) generalized to "continue" since the
// sync engine has no equivalent of the CLI's fail-fast supervised run.
type Loop struct {
	Probe    *HealthProbe
	Period   time.Duration
	Projects func() []Project
	Engine   *Engine
	Logger   *slog.Logger
}

// NewLoop builds a Loop with spec.md §4.H's default 60s drain cadence.
// logger is required: components never fall back to slog.Default(), so
// callers (cmd/flowforge) must pass the one logger constructed at startup.
func NewLoop(probe *HealthProbe, engine *Engine, projects func() []Project, logger *slog.Logger) *Loop {
	return &Loop{Probe: probe, Period: DefaultSyncPeriod, Projects: projects, Engine: engine, Logger: logger}
}

// Run ticks every Period until ctx is canceled. Each tick is a no-op
// unless the probe currently reports reachable and at least one project
// has pending work.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	if !l.Probe.Reachable() {
		return
	}
	ops, err := l.Engine.Cache.GetPending(ctx, "")
	if err != nil {
		l.Logger.Warn("load pending operations failed", "error", err)
		return
	}
	hasPending := false
	for _, op := range ops {
		if op.Status == cache.OpPending {
			hasPending = true
			break
		}
	}
	if !hasPending {
		return
	}
	for _, p := range l.Projects() {
		if _, err := l.Engine.SyncProject(ctx, p); err != nil {
			l.Logger.Warn("sync project failed", "project", p.Name, "error", err)
		}
	}
}
