package broker

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Throttled spaces orders out to respect the exchange's order rate limit.
type Throttled struct {
	next    Executor
	limiter *rate.Limiter
}

func NewThrottled(next Executor, perSecond float64, burst int) *Throttled {
	if burst < 1 {
		burst = 1
	}
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (t *Throttled) Execute(ctx context.Context, o Order) (Result, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("order rate limit: %w", err)
	}
	return t.next.Execute(ctx, o)
}
