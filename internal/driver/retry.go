package driver

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds how a driver repeats a failed transaction.
type RetryPolicy struct {
	// Budget is the number of retries after the first attempt.
	Budget int
	// Delay is the pause before the first retry.
	Delay time.Duration
	// Backoff multiplies the delay after every failed retry. Values
	// below 1 are treated as 1 (fixed delay).
	Backoff float64
}

// Retry runs fn up to p.Budget+1 times. TRANSPORT and PROTOCOL failures
// are retried; every other classification is terminal for this invocation.
// Context cancellation aborts between attempts.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	delay := p.Delay
	factor := p.Backoff
	if factor < 1 {
		factor = 1
	}

	var err error
	for attempt := 0; attempt <= p.Budget; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Transport("retry", ctx.Err())
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * factor)
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrTransport) && !errors.Is(err, ErrProtocol) {
			return err
		}
	}
	return err
}
