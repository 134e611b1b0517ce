package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-integrations/core"
)

func TestRegistry_ForUsesProviderConfig(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Providers = map[string]core.ProviderConfig{
		"QuickBooks": {RequestsPerSecond: 5, Burst: 2},
		"highway":    {},
	}
	registry := NewRegistry(cfg)

	qb := registry.For("quickbooks")
	if qb == nil {
		t.Fatalf("expected limiter for configured provider")
	}
	if registry.For("QUICKBOOKS") != qb {
		t.Fatalf("expected limiter to be shared per provider")
	}
	if registry.For("highway") != nil {
		t.Fatalf("expected no limiter without requests_per_second")
	}
	if registry.For("dat") != nil {
		t.Fatalf("expected no limiter for unknown provider")
	}
}

func TestLimiter_NilNeverBlocks(t *testing.T) {
	var limiter *Limiter
	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("expected nil limiter to pass, got %v", err)
	}
	limiter.Observe(429, nil)
}

func TestLimiter_RetryAfterHoldsCalls(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	limiter := NewLimiter("dat", 0, 0)
	limiter.now = func() time.Time { return now }

	limiter.Observe(429, map[string]string{"Retry-After": "30"})
	if hold := limiter.hold(); hold != 30*time.Second {
		t.Fatalf("expected 30s hold, got %s", hold)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := limiter.Wait(ctx)
	var throttled ThrottledError
	if !errors.As(err, &throttled) || throttled.RetryAfter != 30*time.Second {
		t.Fatalf("expected throttled error, got %v", err)
	}
	if mapped := throttled.ToServiceError(); mapped.Code != 429 || mapped.TextCode != TextCodeRateLimited {
		t.Fatalf("unexpected service error %+v", mapped)
	}

	limiter.Observe(200, nil)
	if hold := limiter.hold(); hold != 0 {
		t.Fatalf("expected success to clear hold, got %s", hold)
	}
}

func TestLimiter_HoldIsIndependentOfInjectedClockDate(t *testing.T) {
	pinned := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewLimiter("dat", 0, 0)
	limiter.now = func() time.Time { return pinned }

	limiter.Observe(429, map[string]string{"Retry-After": "30"})
	short, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	var throttled ThrottledError
	if err := limiter.Wait(short); !errors.As(err, &throttled) {
		t.Fatalf("expected throttled error with a short deadline, got %v", err)
	}

	limiter.mu.Lock()
	limiter.throttledUntil = pinned.Add(20 * time.Millisecond)
	limiter.mu.Unlock()
	long, cancelLong := context.WithTimeout(context.Background(), time.Second)
	defer cancelLong()
	startedAt := time.Now()
	if err := limiter.Wait(long); err != nil {
		t.Fatalf("expected call to wait out a short hold, got %v", err)
	}
	if waited := time.Since(startedAt); waited < 15*time.Millisecond {
		t.Fatalf("expected to wait for the hold, waited %s", waited)
	}
}

func TestLimiter_BackoffDoublesWithoutRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	limiter := NewLimiter("dat", 0, 0)
	limiter.now = func() time.Time { return now }

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i, expected := range want {
		limiter.Observe(429, nil)
		if hold := limiter.hold(); hold != expected {
			t.Fatalf("observation %d: expected %s, got %s", i+1, expected, hold)
		}
	}
	limiter.Observe(503, nil)
	if limiter.hold() != 4*time.Second {
		t.Fatalf("expected server errors to leave the hold in place")
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	if d, ok := parseRetryAfter("Sun, 01 Mar 2026 08:00:10 GMT", now); !ok || d != 10*time.Second {
		t.Fatalf("expected http date to parse, got %s ok=%v", d, ok)
	}
	if _, ok := parseRetryAfter("-1", now); ok {
		t.Fatalf("expected negative seconds to be ignored")
	}
	if _, ok := parseRetryAfter("soon", now); ok {
		t.Fatalf("expected garbage to be ignored")
	}
}
