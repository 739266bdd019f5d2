package sync

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/flowforge/flowforge/internal/transport"
)

// HealthProbe periodically checks whether the workstation answers a
// trivial command, and tells a callback about reachability transitions
// only — not every tick — so callers don't need their own debouncing.
type HealthProbe struct {
	Transport    transport.Transport
	Period       time.Duration
	Ceiling      time.Duration
	OnTransition func(reachable bool)

	reachable atomic.Bool
	started   atomic.Bool
}

// NewHealthProbe builds a probe with spec.md §4.H's default cadence.
func NewHealthProbe(t transport.Transport, onTransition func(reachable bool)) *HealthProbe {
	return &HealthProbe{
		Transport:    t,
		Period:       DefaultProbePeriod,
		Ceiling:      DefaultProbeCeiling,
		OnTransition: onTransition,
	}
}

// Reachable reports the probe's last-observed state. Before the first
// tick completes, this is false.
func (p *HealthProbe) Reachable() bool { return p.reachable.Load() }

// Run ticks every Period until ctx is canceled, checking reachability once
// per tick and firing OnTransition exactly once per state change.
func (p *HealthProbe) Run(ctx context.Context) {
	p.started.Store(true)
	p.tick(ctx)

	ticker := time.NewTicker(p.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *HealthProbe) tick(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, p.Ceiling)
	defer cancel()

	res := p.Transport.Run(probeCtx, []string{"true"}, "", nil)
	now := res.Succeeded()
	prev := p.reachable.Swap(now)
	if prev != now && p.OnTransition != nil {
		p.OnTransition(now)
	}
}
