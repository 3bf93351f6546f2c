package resilience_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/jargonaut/internal/resilience"
)

var errBoom = errors.New("boom")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	clk := newClock()
	b := resilience.NewBreaker("llm", resilience.WithMaxFailures(3), resilience.WithClock(clk.Now))
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, succeed)
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	if b.State() != resilience.StateClosed {
		t.Fatalf("state = %v, success must reset the failure count", b.State())
	}
	_ = b.Do(ctx, fail)
	if b.State() != resilience.StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, resilience.ErrCircuitOpen) || called {
		t.Errorf("open breaker: err = %v, called = %v", err, called)
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	t.Parallel()

	clk := newClock()
	b := resilience.NewBreaker("tts",
		resilience.WithMaxFailures(1),
		resilience.WithResetTimeout(10*time.Second),
		resilience.WithHalfOpenProbes(2),
		resilience.WithClock(clk.Now),
	)
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	clk.Advance(9 * time.Second)
	if b.State() != resilience.StateOpen {
		t.Fatalf("state = %v before the reset timeout", b.State())
	}
	clk.Advance(time.Second)
	if b.State() != resilience.StateHalfOpen {
		t.Fatalf("state = %v after the reset timeout", b.State())
	}

	if err := b.Do(ctx, succeed); err != nil {
		t.Fatal(err)
	}
	if b.State() != resilience.StateHalfOpen {
		t.Fatalf("one probe closed the breaker")
	}
	if err := b.Do(ctx, succeed); err != nil {
		t.Fatal(err)
	}
	if b.State() != resilience.StateClosed {
		t.Errorf("state = %v after two probes", b.State())
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()

	clk := newClock()
	b := resilience.NewBreaker("stt", resilience.WithMaxFailures(1), resilience.WithResetTimeout(time.Second), resilience.WithClock(clk.Now))
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	clk.Advance(time.Second)
	if err := b.Do(ctx, fail); !errors.Is(err, errBoom) {
		t.Fatalf("probe err = %v", err)
	}
	if b.State() != resilience.StateOpen {
		t.Errorf("state = %v, want open", b.State())
	}
	// The reset timeout restarts from the failed probe.
	clk.Advance(500 * time.Millisecond)
	if err := b.Do(ctx, succeed); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("err = %v, want circuit open", err)
	}
}

func TestBreaker_HalfOpenLimitsConcurrentProbes(t *testing.T) {
	t.Parallel()

	clk := newClock()
	b := resilience.NewBreaker("llm",
		resilience.WithMaxFailures(1),
		resilience.WithResetTimeout(time.Second),
		resilience.WithHalfOpenProbes(1),
		resilience.WithClock(clk.Now),
	)
	ctx := context.Background()
	_ = b.Do(ctx, fail)
	clk.Advance(time.Second)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(ctx, func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered
	if err := b.Do(ctx, succeed); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("second probe err = %v, want circuit open", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if b.State() != resilience.StateClosed {
		t.Errorf("state = %v", b.State())
	}
}

func TestBreaker_CancellationIsNotAFailure(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker("llm", resilience.WithMaxFailures(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Do(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if b.State() != resilience.StateClosed {
		t.Errorf("state = %v, cancellation opened the breaker", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker("llm", resilience.WithMaxFailures(1), resilience.WithResetTimeout(time.Hour))
	_ = b.Do(context.Background(), fail)
	b.Reset()
	if b.State() != resilience.StateClosed || b.Name() != "llm" {
		t.Errorf("after Reset: %v %q", b.State(), b.Name())
	}
	if err := b.Do(context.Background(), succeed); err != nil {
		t.Error(err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	for s, want := range map[resilience.State]string{
		resilience.StateClosed:   "closed",
		resilience.StateOpen:     "open",
		resilience.StateHalfOpen: "half-open",
		resilience.State(42):     "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}
