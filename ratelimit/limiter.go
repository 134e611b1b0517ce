package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/time/rate"

	"github.com/goliatone/go-integrations/core"
)

const TextCodeRateLimited = "RATE_LIMITED"

type ThrottledError struct {
	Provider   core.Provider
	RetryAfter time.Duration
	Cause      error
}

func (e ThrottledError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ratelimit: provider %q throttled for %s: %v", e.Provider, e.RetryAfter, e.Cause)
	}
	return fmt.Sprintf("ratelimit: provider %q throttled for %s", e.Provider, e.RetryAfter)
}

func (e ThrottledError) Unwrap() error { return e.Cause }

func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{"provider": string(e.Provider)}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(TextCodeRateLimited).
		WithMetadata(metadata)
}

// Limiter paces calls to one provider with a token bucket and backs off
// after the provider answers 429. A nil *Limiter never blocks.
type Limiter struct {
	provider core.Provider
	bucket   *rate.Limiter
	now      func() time.Time

	initialBackoff time.Duration
	maxBackoff     time.Duration

	mu             sync.Mutex
	attempts       int
	throttledUntil time.Time
}

func NewLimiter(provider core.Provider, rps float64, burst int) *Limiter {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		provider:       core.NormalizeProvider(string(provider)),
		bucket:         rate.NewLimiter(limit, burst),
		now:            time.Now,
		initialBackoff: time.Second,
		maxBackoff:     time.Minute,
	}
}

// Wait blocks until the provider may be called. It fails fast with a
// ThrottledError when ctx would expire before the hold ends. The hold is a
// duration, so the deadline is measured on the wall clock the context uses.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if hold := l.hold(); hold > 0 {
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < hold {
			return ThrottledError{Provider: l.provider, RetryAfter: hold}
		}
		timer := time.NewTimer(hold)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	if err := l.bucket.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ThrottledError{Provider: l.provider, Cause: err}
	}
	return nil
}

// Observe feeds a provider response back into the limiter.
func (l *Limiter) Observe(status int, headers map[string]string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if status != http.StatusTooManyRequests {
		if status < 500 {
			l.attempts = 0
			l.throttledUntil = time.Time{}
		}
		return
	}
	l.attempts++
	delay, ok := parseRetryAfter(headerValue(headers, "retry-after"), now)
	if !ok {
		delay = l.nextBackoff(l.attempts)
	}
	l.throttledUntil = now.Add(delay)
}

func (l *Limiter) hold() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.throttledUntil.IsZero() {
		return 0
	}
	return l.throttledUntil.Sub(l.now())
}

func (l *Limiter) nextBackoff(attempt int) time.Duration {
	delay := l.initialBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= l.maxBackoff {
			return l.maxBackoff
		}
	}
	return delay
}

// Registry hands out one Limiter per provider, sized from provider config.
type Registry struct {
	mu        sync.Mutex
	providers map[core.Provider]core.ProviderConfig
	limiters  map[core.Provider]*Limiter
}

func NewRegistry(cfg core.Config) *Registry {
	providers := make(map[core.Provider]core.ProviderConfig, len(cfg.Providers))
	for name, provider := range cfg.Providers {
		providers[core.NormalizeProvider(name)] = provider
	}
	return &Registry{
		providers: providers,
		limiters:  map[core.Provider]*Limiter{},
	}
}

// For returns nil when the provider has no requests_per_second configured.
func (r *Registry) For(provider core.Provider) *Limiter {
	if r == nil {
		return nil
	}
	provider = core.NormalizeProvider(string(provider))
	r.mu.Lock()
	defer r.mu.Unlock()
	if limiter, ok := r.limiters[provider]; ok {
		return limiter
	}
	cfg, ok := r.providers[provider]
	if !ok || cfg.RequestsPerSecond <= 0 {
		return nil
	}
	limiter := NewLimiter(provider, cfg.RequestsPerSecond, cfg.Burst)
	r.limiters[provider] = limiter
	return limiter
}

func parseRetryAfter(raw string, now time.Time) (time.Duration, bool) {
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if retryAt, err := http.ParseTime(raw); err == nil && retryAt.After(now) {
		return retryAt.Sub(now), true
	}
	return 0, false
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
