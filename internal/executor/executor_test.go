package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/plexist/internal/shared"
)

func testLimits() shared.LimitsConfig {
	return shared.LimitsConfig{
		RequestsPerSecond:  1000,
		Burst:              1000,
		MaxInFlight:        8,
		MaxRetries:         3,
		CallTimeoutSeconds: 5,
	}
}

func TestDo(t *testing.T) {
	t.Run("transient failure retried until success", func(t *testing.T) {
		limits := testLimits()
		ex := New(limits, nil)

		calls := 0
		err := ex.Do(context.Background(), "plex", func(ctx context.Context) error {
			calls++
			if calls <= 2 {
				return &shared.StatusError{Code: 503}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("expected success after retries, got %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 attempts, got %d", calls)
		}
		if got := ex.Retries("plex"); got != 2 {
			t.Errorf("expected 2 recorded retries, got %d", got)
		}
	})

	t.Run("permanent failure not retried", func(t *testing.T) {
		ex := New(testLimits(), nil)

		calls := 0
		err := ex.Do(context.Background(), "plex", func(ctx context.Context) error {
			calls++
			return &shared.StatusError{Code: 404}
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if calls != 1 {
			t.Errorf("expected 1 attempt for 404, got %d", calls)
		}
		if got := ex.Retries("plex"); got != 0 {
			t.Errorf("expected 0 recorded retries, got %d", got)
		}
	})

	t.Run("retries exhausted", func(t *testing.T) {
		limits := testLimits()
		limits.MaxRetries = 2
		ex := New(limits, nil)

		calls := 0
		err := ex.Do(context.Background(), "plex", func(ctx context.Context) error {
			calls++
			return &shared.StatusError{Code: 502}
		})
		if !errors.Is(err, shared.ErrRetriesExhausted) {
			t.Fatalf("expected ErrRetriesExhausted, got %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 attempts (1 + 2 retries), got %d", calls)
		}
	})

	t.Run("retry-after overrides backoff", func(t *testing.T) {
		ex := New(testLimits(), nil)

		start := time.Now()
		calls := 0
		err := ex.Do(context.Background(), "spotify", func(ctx context.Context) error {
			calls++
			if calls == 1 {
				return &shared.StatusError{Code: 429, RetryAfter: 300 * time.Millisecond}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
			t.Errorf("expected at least 300ms delay, got %v", elapsed)
		}
	})

	t.Run("cancellation aborts retry wait", func(t *testing.T) {
		ex := New(testLimits(), nil)
		ctx, cancel := context.WithCancel(context.Background())

		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		err := ex.Do(ctx, "plex", func(ctx context.Context) error {
			return &shared.StatusError{Code: 503, RetryAfter: 10 * time.Second}
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

type fakeAuthHandler struct {
	mu       sync.Mutex
	refreshs int
	err      error
}

func (f *fakeAuthHandler) OnAuthFailure(ctx context.Context, service string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshs++
	return f.err
}

func TestAuthReplay(t *testing.T) {
	t.Run("single replay after refresh", func(t *testing.T) {
		ex := New(testLimits(), nil)
		handler := &fakeAuthHandler{}
		ex.SetAuthHandler(handler)

		calls := 0
		err := ex.Do(context.Background(), "spotify", func(ctx context.Context) error {
			calls++
			if calls == 1 {
				return &shared.StatusError{Code: 401}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("expected replay to succeed, got %v", err)
		}
		if handler.refreshs != 1 {
			t.Errorf("expected 1 refresh, got %d", handler.refreshs)
		}
	})

	t.Run("second consecutive 401 is fatal", func(t *testing.T) {
		ex := New(testLimits(), nil)
		handler := &fakeAuthHandler{}
		ex.SetAuthHandler(handler)

		calls := 0
		err := ex.Do(context.Background(), "spotify", func(ctx context.Context) error {
			calls++
			return &shared.StatusError{Code: 401}
		})
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Fatalf("expected ErrAuthFailed, got %v", err)
		}
		if calls != 2 {
			t.Errorf("expected exactly 2 attempts, got %d", calls)
		}
		if handler.refreshs != 1 {
			t.Errorf("expected 1 refresh, got %d", handler.refreshs)
		}
		if got := shared.AuthFailureService(err, "unknown"); got != "spotify" {
			t.Errorf("failure attributed to %q, want spotify", got)
		}
	})

	t.Run("refresh failure is fatal", func(t *testing.T) {
		ex := New(testLimits(), nil)
		handler := &fakeAuthHandler{err: fmt.Errorf("refresh token revoked")}
		ex.SetAuthHandler(handler)

		err := ex.Do(context.Background(), "spotify", func(ctx context.Context) error {
			return &shared.StatusError{Code: 401}
		})
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})
}

func TestRateLimiting(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping wall-clock rate limiter test in short mode")
	}

	// 5 req/s with burst 5: 20 calls need 15 refills beyond the initial
	// burst, so total wall time must be at least 3 seconds.
	limits := shared.LimitsConfig{
		RequestsPerSecond:  5,
		Burst:              5,
		MaxInFlight:        20,
		MaxRetries:         0,
		CallTimeoutSeconds: 10,
	}
	ex := New(limits, nil)

	var completed atomic.Int64
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ex.Do(context.Background(), "plex", func(ctx context.Context) error {
				completed.Add(1)
				return nil
			})
			if err != nil {
				t.Errorf("call failed under rate limiting: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := completed.Load(); got != 20 {
		t.Errorf("expected all 20 calls to complete, got %d", got)
	}
	if elapsed := time.Since(start); elapsed < 3*time.Second {
		t.Errorf("expected at least 3s wall clock for 20 calls at 5 req/s burst 5, got %v", elapsed)
	}
}

func TestConcurrencyCap(t *testing.T) {
	limits := testLimits()
	limits.MaxInFlight = 2
	ex := New(limits, nil)

	var inFlight, peak atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ex.Do(context.Background(), "plex", func(ctx context.Context) error {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if p := peak.Load(); p > 2 {
		t.Errorf("in-flight peak %d exceeded cap 2", p)
	}
}

func TestCall(t *testing.T) {
	ex := New(testLimits(), nil)

	got, err := Call(context.Background(), ex, "deezer", func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("Call() = %q, want ok", got)
	}

	_, err = Call(context.Background(), ex, "deezer", func(ctx context.Context) (string, error) {
		return "", &shared.StatusError{Code: 400}
	})
	if err == nil {
		t.Error("expected error to propagate")
	}
}
