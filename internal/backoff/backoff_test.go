package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func recordingSleeper(delays *[]time.Duration) Sleeper {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestDoRetriesWithLinearDelay(t *testing.T) {
	var delays []time.Duration
	p := Default()
	p.Sleep = recordingSleeper(&delays)

	transient := errors.New("overloaded")
	calls := 0
	err := p.Do(context.Background(), func(_ context.Context, attempt int) (bool, error) {
		calls++
		if attempt != calls {
			t.Errorf("attempt = %d, want %d", attempt, calls)
		}
		return true, transient
	})

	if !errors.Is(err, transient) {
		t.Fatalf("Do() error = %v, want last error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	var delays []time.Duration
	p := Default()
	p.Sleep = recordingSleeper(&delays)

	calls := 0
	err := p.Do(context.Background(), func(context.Context, int) (bool, error) {
		calls++
		return false, errors.New("bad request")
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 || len(delays) != 0 {
		t.Errorf("calls = %d delays = %v, want a single attempt without waiting", calls, delays)
	}
}

func TestDoSucceedsAfterRetry(t *testing.T) {
	var delays []time.Duration
	p := Default()
	p.Sleep = recordingSleeper(&delays)

	retried := 0
	p.OnRetry = func(int, time.Duration) { retried++ }

	err := p.Do(context.Background(), func(_ context.Context, attempt int) (bool, error) {
		if attempt < 2 {
			return true, errors.New("overloaded")
		}
		return false, nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if retried != 1 {
		t.Errorf("OnRetry called %d times, want 1", retried)
	}
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Policy{MaxAttempts: 3, Step: time.Hour}
	err := p.Do(ctx, func(context.Context, int) (bool, error) {
		return true, errors.New("overloaded")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}
