// Package cache provides a search.Provider decorator that memoises results in
// Redis. Concurrent misses for the same key share one upstream call.
//
// Redis is an optimisation only: when it is unreachable or holds a corrupt
// entry, the decorator logs and falls through to the wrapped provider.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/jargonaut/pkg/provider/search"
	"github.com/MrWong99/jargonaut/pkg/types"
)

var _ search.Provider = (*Provider)(nil)

const (
	// DefaultTTL is how long cached results stay valid.
	DefaultTTL = time.Hour

	// DefaultTimeout bounds one shared upstream search. It is independent of
	// the callers' contexts so that one caller giving up does not fail the
	// others waiting on the same key.
	DefaultTimeout = 30 * time.Second

	keyPrefix = "jargonaut:search:"
)

// Option configures a Provider.
type Option func(*Provider)

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.ttl = d
		}
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// Provider wraps another search.Provider with a Redis cache.
type Provider struct {
	next    search.Provider
	client  redis.UniversalClient
	ttl     time.Duration
	timeout time.Duration
	group   singleflight.Group
}

// New wraps next. client must be non-nil.
func New(next search.Provider, client redis.UniversalClient, opts ...Option) *Provider {
	p := &Provider{next: next, client: client, ttl: DefaultTTL, timeout: DefaultTimeout}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Dial parses a redis:// URL, connects and pings the server.
func Dial(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("search cache: parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("search cache: ping redis: %w", err)
	}
	return client, nil
}

// Key returns the Redis key for query searched at depth with at most
// maxResults raw results.
func Key(query, depth string, maxResults int) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query)) + "|" + depth + "|" + strconv.Itoa(maxResults)))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Search implements search.Provider.
func (p *Provider) Search(ctx context.Context, query string, opts search.Options) ([]types.WebResult, error) {
	depth := opts.Depth
	if depth == "" {
		depth = search.DepthAdvanced
	}
	key := Key(query, depth, opts.MaxResults)

	if cached, ok := p.lookup(ctx, key); ok {
		return cached, nil
	}

	ch := p.group.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		results, err := p.next.Search(shared, query, opts)
		if err != nil {
			return nil, err
		}
		p.store(shared, key, results)
		return results, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]types.WebResult), nil
	}
}

// Ping reports whether Redis is reachable. Used by readiness checks.
func (p *Provider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *Provider) lookup(ctx context.Context, key string) ([]types.WebResult, bool) {
	raw, err := p.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("search cache: get failed", "key", key, "err", err)
		}
		return nil, false
	}
	var results []types.WebResult
	if err := json.Unmarshal(raw, &results); err != nil {
		slog.Warn("search cache: corrupt entry", "key", key, "err", err)
		return nil, false
	}
	return results, true
}

func (p *Provider) store(ctx context.Context, key string, results []types.WebResult) {
	if results == nil {
		results = []types.WebResult{}
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := p.client.Set(ctx, key, raw, p.ttl).Err(); err != nil {
		slog.Warn("search cache: set failed", "key", key, "err", err)
	}
}
