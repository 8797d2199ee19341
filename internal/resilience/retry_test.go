package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

// runWithMockClock runs fn in a goroutine and advances mock in small steps
// until fn returns, so backoff timers fire without real sleeping.
func runWithMockClock(t *testing.T, mock *clock.Mock, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-done:
			return
		case <-deadline:
			t.Fatal("retry did not finish")
		default:
			mock.Add(100 * time.Millisecond)
		}
	}
}

func TestRetry_AlwaysFailing(t *testing.T) {
	mock := clock.NewMock()
	start := mock.Now()

	var calls int
	var (
		attempts int
		err      error
	)
	runWithMockClock(t, mock, func() {
		_, attempts, err = Retry(context.Background(), RetryPolicy{
			MaxAttempts: 3,
			Backoff:     time.Second,
			Clock:       mock,
		}, func(context.Context, int) (string, error) {
			calls++
			return "", errTest
		})
	})

	if calls != 3 || attempts != 3 {
		t.Fatalf("calls = %d attempts = %d, want 3", calls, attempts)
	}
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}
	if !errors.Is(err, errTest) {
		t.Errorf("err = %v, want it to wrap the last attempt's error", err)
	}
	if elapsed := mock.Since(start); elapsed < 2*time.Second {
		t.Errorf("mock elapsed %s, want at least two 1s backoffs", elapsed)
	}
}

func TestRetry_SucceedsOnSecondAttempt(t *testing.T) {
	mock := clock.NewMock()
	var (
		got      string
		attempts int
		err      error
		retried  []int
	)
	runWithMockClock(t, mock, func() {
		got, attempts, err = Retry(context.Background(), RetryPolicy{
			Clock:   mock,
			OnRetry: func(attempt int, _ error) { retried = append(retried, attempt) },
		}, func(_ context.Context, attempt int) (string, error) {
			if attempt == 1 {
				return "", errTest
			}
			return "ok", nil
		})
	})
	if err != nil || got != "ok" || attempts != 2 {
		t.Fatalf("got %q, %d, %v; want ok, 2, nil", got, attempts, err)
	}
	if len(retried) != 1 || retried[0] != 1 {
		t.Errorf("OnRetry attempts = %v, want [1]", retried)
	}
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	errFatal := errors.New("bad schema")
	var calls int
	_, attempts, err := Retry(context.Background(), RetryPolicy{
		Clock:     clock.NewMock(),
		Retryable: func(err error) bool { return !errors.Is(err, errFatal) },
	}, func(context.Context, int) (int, error) {
		calls++
		return 0, errFatal
	})
	if calls != 1 || attempts != 1 {
		t.Fatalf("calls = %d, attempts = %d; want 1", calls, attempts)
	}
	if !errors.Is(err, errFatal) || errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err = %v, want the non-retryable error unwrapped", err)
	}
}

func TestRetry_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mock := clock.NewMock()

	done := make(chan error, 1)
	go func() {
		_, _, err := Retry(ctx, RetryPolicy{Clock: mock, Backoff: time.Hour}, func(context.Context, int) (int, error) {
			return 0, errTest
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Retry did not return after cancellation")
	}
}
