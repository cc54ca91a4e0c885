// Package backoff runs an operation a bounded number of times with a linear
// delay between attempts.
package backoff

import (
	"context"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultStep        = 2 * time.Second
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy describes how many attempts are made and how long to wait between
// them. The wait before attempt n+1 is n*Step.
type Policy struct {
	MaxAttempts int
	Step        time.Duration
	Sleep       Sleeper

	// OnRetry, when set, is called before each wait.
	OnRetry func(attempt int, delay time.Duration)
}

// Default returns the policy used for the generative-language API: three
// attempts, waiting 2s and then 4s.
func Default() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Step: DefaultStep}
}

// Operation performs one attempt. It returns retry=true when the failure is
// transient and another attempt may succeed.
type Operation func(ctx context.Context, attempt int) (retry bool, err error)

// Do runs op until it succeeds, reports a permanent failure, or the attempts
// are exhausted. The last error is returned.
func (p Policy) Do(ctx context.Context, op Operation) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var retry bool
		retry, err = op(ctx, attempt)
		if err == nil || !retry || attempt == maxAttempts {
			return err
		}

		delay := time.Duration(attempt) * p.Step
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return err
}

// SleepContext blocks for d, returning early with ctx.Err() if ctx ends.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
