package rpc

import (
	"context"

	"github.com/flowforge/flowforge/internal/cache"
)

// HealthChecker reports the current reachability of the workstation.
// *sync.HealthProbe satisfies this.
type HealthChecker interface {
	Reachable() bool
}

// mutatingOps maps each mutating tool name to the cache operation kind
// recorded for it when the workstation cannot be reached directly.
var mutatingOps = map[string]cache.OperationKind{
	"add_feature":    cache.OpAddFeature,
	"update_feature": cache.OpUpdateFeature,
	"delete_feature": cache.OpDeleteFeature,
}

// OfflineAware wraps a Dispatcher so that, while Health reports the
// workstation unreachable, the three mutating tool calls are appended to
// Cache's pending-operation queue instead of touching the registry
// directly — spec.md §4.H's offline-mutation-replay walkthrough. Every
// other tool (reads, start/stop/merge, which all require a live
// workstation regardless) still passes straight through to Inner.
type OfflineAware struct {
	Inner  *Dispatcher
	Health HealthChecker
	Cache  *cache.Store
}

// Dispatch implements the same signature as Dispatcher.Dispatch.
func (o *OfflineAware) Dispatch(ctx context.Context, name string, args map[string]any) (Result, error) {
	op, mutating := mutatingOps[name]
	if !mutating || o.Health == nil || o.Health.Reachable() {
		return o.Inner.Dispatch(ctx, name, args)
	}

	project, err := stringArg(args, "project")
	if err != nil {
		return Result{}, err
	}

	payload := make(map[string]any, len(args))
	for k, v := range args {
		if k == "project" {
			continue
		}
		payload[k] = v
	}

	id, err := o.Cache.QueueOperation(ctx, project, op, payload)
	if err != nil {
		return Result{}, err
	}
	return ok("workstation unreachable; queued for sync", map[string]any{
		"queued":       true,
		"operation_id": id,
	})
}
