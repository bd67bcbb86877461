package payments

import (
	"context"
	"time"

	"github.com/korle-health/clinic-platform/pkg/logging"
)

// PollOutcome is the result of awaiting settlement.
type PollOutcome string

const (
	// PollCompleted means the rail reported the charge settled.
	PollCompleted PollOutcome = "completed"
	// PollFailed means the rail reported a terminal failure.
	PollFailed PollOutcome = "failed"
	// PollTimedOut means the attempt budget ran out with the charge still
	// pending. The payment may settle later and is reconciled out-of-band;
	// callers must not treat this as a failure.
	PollTimedOut PollOutcome = "timed_out"
)

// StatusFunc queries the current settlement status once.
type StatusFunc func(ctx context.Context) (Status, error)

// Poller drives client-visible settlement for asynchronous rails by
// re-querying payment status until a terminal state or the attempt budget
// is exhausted. No query is issued after the caller's context is cancelled.
type Poller struct {
	interval time.Duration
	attempts int
	logger   *logging.Logger
}

// NewPoller creates a poller with the deployment interval and budget.
func NewPoller(interval time.Duration, attempts int, logger *logging.Logger) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if attempts <= 0 {
		attempts = 30
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Poller{interval: interval, attempts: attempts, logger: logger}
}

// Await polls check until completed, failed, context cancellation, or
// budget exhaustion. Transient query errors and non-terminal statuses both
// consume an attempt and keep polling.
func (p *Poller) Await(ctx context.Context, check StatusFunc) (PollOutcome, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= p.attempts; attempt++ {
		status, err := check(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return PollTimedOut, ctx.Err()
			}
			p.logger.Warn("settlement poll attempt failed", "attempt", attempt, "error", err)
		} else {
			switch status {
			case StatusCompleted:
				return PollCompleted, nil
			case StatusFailed:
				return PollFailed, nil
			}
		}

		if attempt == p.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return PollTimedOut, ctx.Err()
		case <-ticker.C:
		}
	}

	p.logger.Info("settlement poll budget exhausted", "attempts", p.attempts)
	return PollTimedOut, nil
}
