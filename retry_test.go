package iotanomaly

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRetryerSuccess(t *testing.T) {
	r := NewRetryer(RetryConfig{})

	calls := 0
	result := r.Do(context.Background(), func() error {
		calls++
		return nil
	})

	if result.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", result.Attempts)
	}
	if result.LastErr != nil {
		t.Errorf("expected no error, got %v", result.LastErr)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryerFailureThenSuccess(t *testing.T) {
	r := NewRetryer(RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
	})

	calls := 0
	result := r.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient error")
		}
		return nil
	})

	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Attempts)
	}
	if result.LastErr != nil {
		t.Errorf("expected no error, got %v", result.LastErr)
	}
}

func TestRetryerAllFailures(t *testing.T) {
	r := NewRetryer(RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	})

	expectedErr := errors.New("persistent error")
	calls := 0
	result := r.Do(context.Background(), func() error {
		calls++
		return expectedErr
	})

	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Attempts)
	}
	if !errors.Is(result.LastErr, expectedErr) {
		t.Errorf("expected %v, got %v", expectedErr, result.LastErr)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryerContextCancellation(t *testing.T) {
	r := NewRetryer(RetryConfig{
		MaxAttempts:    10,
		InitialBackoff: time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan RetryResult)
	go func() {
		done <- r.Do(ctx, func() error {
			return errors.New("error")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	result := <-done
	if !errors.Is(result.LastErr, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", result.LastErr)
	}
}

func TestRetryerRetryIf(t *testing.T) {
	r := NewRetryer(RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		RetryIf:        IsRetryable,
	})

	calls := 0
	result := r.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("503 service unavailable")
		}
		return nil
	})
	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts for retryable, got %d", result.Attempts)
	}

	notFound := errors.New("NoSuchKey")
	calls = 0
	result = r.Do(context.Background(), func() error {
		calls++
		return notFound
	})
	if result.Attempts != 1 {
		t.Errorf("expected 1 attempt for non-retryable, got %d", result.Attempts)
	}
	if !errors.Is(result.LastErr, notFound) {
		t.Errorf("expected non-retryable error, got %v", result.LastErr)
	}
}

func TestRetryValue(t *testing.T) {
	r := NewRetryer(RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	})

	calls := 0
	val, err := retryValue(context.Background(), r, func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("connection reset")
		}
		return "success", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "success" {
		t.Errorf("expected 'success', got %v", val)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"context deadline", context.DeadlineExceeded, false},
		{"circuit open", ErrCircuitOpen, false},
		{"connection refused", errors.New("connection refused"), true},
		{"timeout", errors.New("request Timeout"), true},
		{"503", errors.New("status 503"), true},
		{"429", errors.New("429 Too Many Requests"), true},
		{"slow down", errors.New("SlowDown: Slow Down"), true},
		{"generic error", errors.New("something went wrong"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker(3, 50*time.Millisecond)
	outage := errors.New("connection refused")

	if cb.State() != "closed" {
		t.Errorf("expected closed state, got %s", cb.State())
	}

	// Non-transient errors do not trip the breaker.
	for i := 0; i < 5; i++ {
		_ = cb.Execute(func() error { return errors.New("NoSuchKey") })
	}
	if cb.State() != "closed" {
		t.Errorf("expected closed after non-transient errors, got %s", cb.State())
	}

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return outage })
	}
	if cb.State() != "open" {
		t.Errorf("expected open state, got %s", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}

	time.Sleep(70 * time.Millisecond)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("expected half-open probe to pass, got %v", err)
	}
	if cb.State() != "closed" {
		t.Errorf("expected closed after successful probe, got %s", cb.State())
	}
}

func TestCircuitBreakerHalfOpenFailure(t *testing.T) {
	cb := NewCircuitBreaker(1, 20*time.Millisecond)
	outage := errors.New("503")

	_ = cb.Execute(func() error { return outage })
	if cb.State() != "open" {
		t.Fatalf("expected open, got %s", cb.State())
	}
	time.Sleep(30 * time.Millisecond)
	_ = cb.Execute(func() error { return outage })
	if cb.State() != "open" {
		t.Errorf("expected failed probe to reopen, got %s", cb.State())
	}
}

func TestCircuitBreakerConcurrent(t *testing.T) {
	cb := NewCircuitBreaker(1000, time.Second)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = cb.Execute(func() error {
				if i%2 == 0 {
					return errors.New("timeout")
				}
				return nil
			})
		}(i)
	}
	wg.Wait()
	if s := cb.State(); s != "closed" && s != "open" {
		t.Errorf("unexpected state %s", s)
	}
}
