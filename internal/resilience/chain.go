package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no entry of a [Chain] could serve a call.
var ErrAllFailed = errors.New("resilience: all providers failed")

// Entry is one named provider in a [Chain].
type Entry[T any] struct {
	Name     string
	Provider T
	breaker  *Breaker
}

// EntryStatus reports the breaker state of one chain entry.
type EntryStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// Chain tries its entries in order. It is immutable after construction and
// safe for concurrent use.
type Chain[T any] struct {
	entries []Entry[T]
}

// NewChain returns a chain serving from primary first, then from each
// fallback in order. Every entry gets its own breaker built from opts.
func NewChain[T any](primaryName string, primary T, opts ...BreakerOption) *Chain[T] {
	c := &Chain[T]{}
	c.entries = append(c.entries, Entry[T]{Name: primaryName, Provider: primary, breaker: NewBreaker(primaryName, opts...)})
	return c
}

// With returns c extended by a fallback entry.
func (c *Chain[T]) With(name string, p T, opts ...BreakerOption) *Chain[T] {
	c.entries = append(c.entries, Entry[T]{Name: name, Provider: p, breaker: NewBreaker(name, opts...)})
	return c
}

// Primary returns the first entry's provider.
func (c *Chain[T]) Primary() T { return c.entries[0].Provider }

// Len returns the number of entries.
func (c *Chain[T]) Len() int { return len(c.entries) }

// Status reports every entry's breaker state in chain order.
func (c *Chain[T]) Status() []EntryStatus {
	out := make([]EntryStatus, len(c.entries))
	for i, e := range c.entries {
		out[i] = EntryStatus{Name: e.Name, State: e.breaker.State().String()}
	}
	return out
}

// Available reports whether at least one entry would currently accept a call.
func (c *Chain[T]) Available() bool {
	for _, e := range c.entries {
		if e.breaker.State() != StateOpen {
			return true
		}
	}
	return false
}

// Call runs fn against each entry of c until one succeeds and returns its
// result. When ctx is done the remaining entries are not tried and ctx's
// error is returned. Otherwise a total failure returns [ErrAllFailed]
// joined with every entry's error.
func Call[T, R any](ctx context.Context, c *Chain[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for i := range c.entries {
		e := &c.entries[i]
		var out R
		err := e.breaker.Do(ctx, func(ctx context.Context) error {
			var err error
			out, err = fn(ctx, e.Provider)
			return err
		})
		if err == nil {
			if i > 0 {
				slog.Debug("resilience: served by fallback", "provider", e.Name)
			}
			return out, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}
		if !errors.Is(err, ErrCircuitOpen) {
			slog.Warn("resilience: provider failed", "provider", e.Name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", e.Name, err))
	}
	return zero, errors.Join(append([]error{ErrAllFailed}, errs...)...)
}
