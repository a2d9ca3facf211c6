// package executor drives every provider call through rate limiting, bounded
// concurrency, and retry with backoff.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/plexist/internal/shared"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// AuthHandler is notified when a call fails with an authentication error.
// OnAuthFailure refreshes the service's credentials; the executor then
// replays the failed call exactly once. Implemented by the credential
// manager.
type AuthHandler interface {
	OnAuthFailure(ctx context.Context, service string) error
}

// Executor wraps remote operations with a per-service token-bucket rate
// limiter, a process-wide in-flight cap, per-call timeouts, and the retry
// policy for transient failures.
//
// The in-flight semaphore is shared across all services and sync pairs so a
// constrained destination server is protected globally, not per pair.
type Executor struct {
	limits shared.LimitsConfig
	logger *log.Logger
	sem    *semaphore.Weighted
	auth   AuthHandler

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	retries  map[string]int
}

// New creates an Executor from the configured limits.
func New(limits shared.LimitsConfig, logger *log.Logger) *Executor {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	inFlight := limits.MaxInFlight
	if inFlight <= 0 {
		inFlight = 4
	}
	return &Executor{
		limits:   limits,
		logger:   logger.With("component", "executor"),
		sem:      semaphore.NewWeighted(inFlight),
		limiters: map[string]*rate.Limiter{},
		retries:  map[string]int{},
	}
}

// SetAuthHandler wires in the credential manager. Optional; without one,
// authentication failures propagate immediately.
func (e *Executor) SetAuthHandler(h AuthHandler) {
	e.auth = h
}

// limiter returns the service's token bucket, creating it on first use.
func (e *Executor) limiter(service string) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok := e.limiters[service]; ok {
		return l
	}
	rps, burst := e.limits.ServiceRate(service)
	l := rate.NewLimiter(rate.Limit(rps), burst)
	e.limiters[service] = l
	return l
}

func (e *Executor) recordRetry(service string) {
	e.mu.Lock()
	e.retries[service]++
	e.mu.Unlock()
}

// Retries returns how many retries have been performed against a service
// since process start. Used for cycle summaries and tests.
func (e *Executor) Retries(service string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retries[service]
}

// attempt runs op once under the rate limiter, the in-flight cap, and the
// per-call timeout. Blocking on the limiter is cooperative: ctx cancellation
// aborts the wait.
func (e *Executor) attempt(ctx context.Context, service string, op func(ctx context.Context) error) error {
	if err := e.limiter(service).Wait(ctx); err != nil {
		return err
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, e.limits.CallTimeout())
	defer cancel()
	return op(callCtx)
}

// Do executes op against the named service under the full policy.
//
// Transient failures (timeouts, connection resets, 429/502/503/504) are
// retried up to the configured maximum with exponential backoff plus jitter;
// a Retry-After carried on the error overrides the computed delay. An
// authentication failure triggers one refresh-and-replay through the
// AuthHandler; a second consecutive auth failure propagates as a
// [shared.ServiceAuthError] naming the failing service. Permanent
// failures propagate immediately.
func (e *Executor) Do(ctx context.Context, service string, op func(ctx context.Context) error) error {
	maxRetries := e.limits.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 0
	bo.Reset()

	retries := 0
	replayedAuth := false

	for {
		err := e.attempt(ctx, service, op)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if shared.IsAuthFailure(err) {
			if e.auth == nil || replayedAuth {
				return &shared.ServiceAuthError{Service: service,
					Err: fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)}
			}
			if refreshErr := e.auth.OnAuthFailure(ctx, service); refreshErr != nil {
				return &shared.ServiceAuthError{Service: service,
					Err: fmt.Errorf("%w: %v", shared.ErrAuthFailed, refreshErr)}
			}
			replayedAuth = true
			e.logger.Warn("replaying call after credential refresh", "service", service)
			continue
		}

		if !shared.IsTransient(err) {
			return err
		}
		if retries >= maxRetries {
			return fmt.Errorf("%s after %d retries: %w: %v", service, retries, shared.ErrRetriesExhausted, err)
		}

		delay := bo.NextBackOff()
		if ra := shared.RetryAfter(err); ra > 0 {
			delay = ra
		}
		e.logger.Debug("retrying transient failure", "service", service, "attempt", retries+1, "delay", delay, "err", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		retries++
		e.recordRetry(service)
	}
}

// Call is the typed form of [Executor.Do] for operations with a result.
func Call[T any](ctx context.Context, e *Executor, service string, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, service, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}
