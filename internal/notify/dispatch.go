package notify

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Status is the outcome of handling one new item.
type Status string

const (
	StatusDelivered  Status = "delivered"
	StatusFailed     Status = "failed"
	StatusSuppressed Status = "suppressed"
	StatusSkipped    Status = "skipped"
)

// Outcome reports a best-effort delivery.
type Outcome struct {
	Status Status
	Err    error
}

// Dispatcher spaces out deliveries so the sink's rate limits are not hit.
type Dispatcher struct {
	notifier Notifier
	limiter  *rate.Limiter
}

// NewDispatcher creates a dispatcher allowing one delivery per pacing
// interval. The first delivery is immediate; zero pacing disables the wait.
func NewDispatcher(n Notifier, pacing time.Duration) *Dispatcher {
	limit := rate.Inf
	if pacing > 0 {
		limit = rate.Every(pacing)
	}
	return &Dispatcher{notifier: n, limiter: rate.NewLimiter(limit, 1)}
}

// Dispatch waits for its pacing slot and delivers msg. Failures are
// returned in the Outcome, never as an error. The pacing wait ignores
// cancellation of ctx.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) Outcome {
	_ = d.limiter.Wait(context.WithoutCancel(ctx))

	if err := d.notifier.Notify(ctx, msg); err != nil {
		return Outcome{Status: StatusFailed, Err: err}
	}
	return Outcome{Status: StatusDelivered}
}
