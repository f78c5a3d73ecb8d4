// Package resilience provides the bounded-retry and bounded-deadline
// combinators composed around every network operation of the client.
package resilience

import (
	"time"

	"go.uber.org/zap"

	"digital.vasic.ftpfetch/pkg/faults"
)

// Policy bounds the attempts for one logical operation. It is immutable
// and supplied at construction.
type Policy struct {
	// MaxAttempts is the total attempt budget. Zero runs the operation
	// exactly once with no retry bookkeeping.
	MaxAttempts uint
	// BackoffBase scales the sleep between attempts. Zero disables the
	// sleep entirely.
	BackoffBase time.Duration
}

// Do invokes op until it succeeds or the policy's budget is spent, in
// which case the last failure is wrapped in a *faults.RetryExhaustedError.
//
// Session-fatal and authentication faults are propagated after a single
// attempt: retrying is useless until the caller re-establishes the
// session, or fixes its credentials.
func Do(policy Policy, logger *zap.Logger, op func() error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.MaxAttempts == 0 {
		return op()
	}
	var last error
	for attempt := uint(1); attempt <= policy.MaxAttempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if faults.IsSessionFatal(err) {
			logger.Debug("session-fatal fault, not retrying",
				zap.Uint("attempt", attempt), zap.Error(err))
			return err
		}
		if faults.IsAuth(err) {
			logger.Debug("authentication rejected, not retrying", zap.Error(err))
			return err
		}
		last = err
		logger.Debug("attempt failed",
			zap.Uint("attempt", attempt),
			zap.Uint("max_attempts", policy.MaxAttempts),
			zap.Error(err))
		if policy.BackoffBase > 0 && attempt < policy.MaxAttempts {
			wait := backoff(policy.BackoffBase, attempt)
			logger.Debug("backing off", zap.Duration("wait", wait))
			time.Sleep(wait)
		}
	}
	return &faults.RetryExhaustedError{Attempts: policy.MaxAttempts, Last: last}
}

// backoff grows steeply: one base unit per attempt so far, plus ten units
// for every attempt before that.
func backoff(base time.Duration, attempt uint) time.Duration {
	return base*time.Duration(attempt) + base*time.Duration(attempt-1)*10
}

// WithDeadline runs op, failing with faults.ErrDeadlineExceeded if it has
// not returned within d. On expiry the abort hook is invoked so a blocked
// network call can be cut loose by closing its socket; the abandoned
// goroutine is left to drain on its own. A non-positive d disables
// enforcement and runs op on the calling goroutine.
//
// Each call owns its own timer and channel, so nested and concurrent
// deadlines never interfere with each other.
func WithDeadline(d time.Duration, abort func(), op func() error) error {
	_, err := WithDeadlineValue(d, abort, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// WithDeadlineValue is WithDeadline for operations that produce a value.
// The value travels through the completion channel, never through shared
// captures: an attempt abandoned on expiry cannot publish into state a
// later attempt reads.
func WithDeadlineValue[T any](d time.Duration, abort func(), op func() (T, error)) (T, error) {
	if d <= 0 {
		return op()
	}
	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := op()
		done <- outcome{value: value, err: err}
	}()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case out := <-done:
		return out.value, out.err
	case <-timer.C:
		if abort != nil {
			abort()
		}
		var zero T
		return zero, faults.ErrDeadlineExceeded
	}
}
