package transport

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Transport and paces its Run calls through a token
// bucket, matching linear-fuse's outbound rate limiting pattern. It exists
// for callers that retry against an intermittently reachable workstation
// (the sync engine's health probe and drain loop) and would otherwise
// hammer it on every reconnect attempt.
type RateLimited struct {
	Transport
	Limiter *rate.Limiter
}

// NewRateLimited wraps t with a limiter allowing burst immediate calls and
// refilling at ratePerSecond tokens/second.
func NewRateLimited(t Transport, ratePerSecond float64, burst int) RateLimited {
	return RateLimited{Transport: t, Limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Run blocks until the limiter admits the call (or ctx is done), then
// delegates to the wrapped Transport.
func (r RateLimited) Run(ctx context.Context, argv []string, cwd string, env map[string]string) Result {
	if err := r.Limiter.Wait(ctx); err != nil {
		return ErrorResult(err)
	}
	return r.Transport.Run(ctx, argv, cwd, env)
}
