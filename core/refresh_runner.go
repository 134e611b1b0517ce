package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	defaultRefreshLockTTL      = 30 * time.Second
	defaultRefreshLockPollWait = 50 * time.Millisecond
)

// refreshAccessToken renews the token set for rec. Concurrent callers in the
// same process serialize on the connection locker; across processes the
// version-guarded UpdateTokens makes losers adopt the winner's token.
func (r *CredentialResolver) refreshAccessToken(ctx context.Context, rec Integration) (string, bool, error) {
	fields := map[string]any{
		"integration_id":  rec.ID,
		"organization_id": rec.OrganizationID,
		"provider":        string(rec.Provider),
	}
	startedAt := r.observer.clock()

	if r.refresher == nil || strings.TrimSpace(rec.RefreshTokenEncrypted) == "" {
		r.markExpired(ctx, rec, "refresh token unavailable")
		r.observer.observeOperation(ctx, startedAt, "refresh_token", ErrTokenRefreshFailed, fields)
		return "", false, nil
	}

	unlock, err := r.acquireRefreshLock(ctx, rec.ID)
	if err != nil {
		return "", false, err
	}
	defer unlock()

	current, err := r.store.GetByID(ctx, rec.ID)
	if err != nil {
		return "", false, err
	}
	if current.Version != rec.Version && !r.needsRefresh(current) {
		return r.adoptStoredToken(ctx, current)
	}

	refreshToken, err := r.cipher.Decrypt(ctx, current.RefreshTokenEncrypted)
	if err != nil {
		return "", false, fmt.Errorf("core: decrypt refresh token: %w", err)
	}

	token, err := r.refresher.Refresh(ctx, current.Provider, refreshToken)
	if err != nil {
		if errors.Is(err, ErrOAuthClientMissing) {
			r.observer.observeOperation(ctx, startedAt, "refresh_token", err, fields)
			return "", false, err
		}
		r.markExpired(ctx, current, err.Error())
		r.observer.observeOperation(ctx, startedAt, "refresh_token", err, fields)
		return "", false, nil
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		r.markExpired(ctx, current, "token endpoint returned an empty access token")
		r.observer.observeOperation(ctx, startedAt, "refresh_token", ErrTokenRefreshFailed, fields)
		return "", false, nil
	}

	update := TokenUpdate{
		RefreshTokenEncrypted: current.RefreshTokenEncrypted,
		TokenExpiresAt:        token.ExpiresAt,
	}
	if update.AccessTokenEncrypted, err = r.cipher.Encrypt(ctx, token.AccessToken); err != nil {
		return "", false, fmt.Errorf("core: encrypt access token: %w", err)
	}
	if strings.TrimSpace(token.RefreshToken) != "" {
		if update.RefreshTokenEncrypted, err = r.cipher.Encrypt(ctx, token.RefreshToken); err != nil {
			return "", false, fmt.Errorf("core: encrypt refresh token: %w", err)
		}
	}

	if _, err := r.store.UpdateTokens(ctx, current.ID, current.Version, update); err != nil {
		if !errors.Is(err, ErrTokenVersionConflict) {
			r.observer.observeOperation(ctx, startedAt, "refresh_token", err, fields)
			return "", false, err
		}
		winner, getErr := r.store.GetByID(ctx, current.ID)
		if getErr != nil {
			return "", false, getErr
		}
		r.observer.warn(ctx, "token refresh lost version race", fields)
		return r.adoptStoredToken(ctx, winner)
	}

	r.observer.observeOperation(ctx, startedAt, "refresh_token", nil, fields)
	return token.AccessToken, true, nil
}

func (r *CredentialResolver) adoptStoredToken(ctx context.Context, rec Integration) (string, bool, error) {
	if rec.Status != IntegrationStatusConnected || strings.TrimSpace(rec.AccessTokenEncrypted) == "" {
		return "", false, nil
	}
	access, err := r.cipher.Decrypt(ctx, rec.AccessTokenEncrypted)
	if err != nil {
		return "", false, fmt.Errorf("core: decrypt access token: %w", err)
	}
	return access, true, nil
}

func (r *CredentialResolver) markExpired(ctx context.Context, rec Integration, reason string) {
	if err := r.store.UpdateStatus(ctx, rec.ID, IntegrationStatusExpired, reason); err != nil {
		r.observer.warn(ctx, "mark integration expired failed", map[string]any{
			"integration_id": rec.ID,
			"provider":       string(rec.Provider),
			"error":          err.Error(),
		})
	}
}

func (r *CredentialResolver) acquireRefreshLock(ctx context.Context, integrationID string) (func(), error) {
	if r.locker == nil {
		return func() {}, nil
	}
	deadline := r.observer.clock().Add(r.lockTTL)
	for {
		handle, err := r.locker.Acquire(ctx, "refresh:"+integrationID, r.lockTTL)
		if err == nil {
			return func() { _ = handle.Unlock(ctx) }, nil
		}
		if !errors.Is(err, ErrRefreshLocked) || !r.observer.clock().Before(deadline) {
			return nil, err
		}
		if waitErr := waitWithContext(ctx, defaultRefreshLockPollWait); waitErr != nil {
			return nil, waitErr
		}
	}
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type MemoryConnectionLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time
	nowFn func() time.Time
}

func NewMemoryConnectionLocker() *MemoryConnectionLocker {
	return &MemoryConnectionLocker{
		locks: make(map[string]time.Time),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryConnectionLocker) Acquire(_ context.Context, key string, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: connection locker is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("core: lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultRefreshLockTTL
	}

	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	if until, ok := l.locks[key]; ok && now.Before(until) {
		return nil, fmt.Errorf("%w for %q", ErrRefreshLocked, key)
	}
	l.locks[key] = now.Add(ttl)
	return &memoryLockHandle{locker: l, key: key}, nil
}

type memoryLockHandle struct {
	locker *MemoryConnectionLocker
	key    string
	once   sync.Once
}

func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		delete(h.locker.locks, h.key)
		h.locker.mu.Unlock()
	})
	return nil
}
