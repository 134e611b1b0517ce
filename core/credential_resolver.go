package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const DefaultAPIKeyField = "api_key"

type ResolverDependencies struct {
	Store           IntegrationStore
	Cipher          SecretCipher
	Refresher       TokenRefresher
	Locker          ConnectionLocker
	Logger          Logger
	MetricsRecorder MetricsRecorder
	ExpiryBuffer    time.Duration
	LockTTL         time.Duration
	Now             func() time.Time
}

// CredentialResolver turns stored, possibly stale credentials into values a
// request can use.
type CredentialResolver struct {
	store     IntegrationStore
	cipher    SecretCipher
	refresher TokenRefresher
	locker    ConnectionLocker
	buffer    time.Duration
	lockTTL   time.Duration
	observer  observer
}

func NewCredentialResolver(deps ResolverDependencies) (*CredentialResolver, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("core: integration store is required")
	}
	if deps.Cipher == nil {
		return nil, fmt.Errorf("core: cipher is required")
	}
	buffer := deps.ExpiryBuffer
	if buffer <= 0 {
		buffer = DefaultExpiryBuffer
	}
	lockTTL := deps.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultRefreshLockTTL
	}
	return &CredentialResolver{
		store:     deps.Store,
		cipher:    deps.Cipher,
		refresher: deps.Refresher,
		locker:    deps.Locker,
		buffer:    buffer,
		lockTTL:   lockTTL,
		observer: observer{
			logger:  deps.Logger,
			metrics: deps.MetricsRecorder,
			now:     deps.Now,
		},
	}, nil
}

// GetAccessToken returns a usable OAuth access token. ok is false when the
// integration is missing, disconnected, or could not be refreshed; in the
// last case the integration is marked expired. Decryption and configuration
// failures are returned as errors.
func (r *CredentialResolver) GetAccessToken(ctx context.Context, key IntegrationKey) (token string, ok bool, err error) {
	if r == nil || r.store == nil {
		return "", false, fmt.Errorf("core: credential resolver is not configured")
	}
	if err := key.Validate(); err != nil {
		return "", false, err
	}
	key.Provider = NormalizeProvider(string(key.Provider))

	rec, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrIntegrationNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if !usableStatus(rec.Status) {
		return "", false, nil
	}
	if strings.TrimSpace(rec.AccessTokenEncrypted) == "" {
		// a stored refresh token can still mint an access token
		if strings.TrimSpace(rec.RefreshTokenEncrypted) == "" {
			return "", false, nil
		}
		return r.refreshAccessToken(ctx, rec)
	}

	access, err := r.cipher.Decrypt(ctx, rec.AccessTokenEncrypted)
	if err != nil {
		return "", false, fmt.Errorf("core: decrypt access token: %w", err)
	}
	if !r.needsRefresh(rec) {
		return access, true, nil
	}
	return r.refreshAccessToken(ctx, rec)
}

// GetAPIKey extracts field (DefaultAPIKeyField when empty) from the stored
// credentials blob. Every failure reads as not connected.
func (r *CredentialResolver) GetAPIKey(ctx context.Context, key IntegrationKey, field string) (string, bool) {
	credentials, ok := r.GetCredentials(ctx, key)
	if !ok {
		return "", false
	}
	field = strings.TrimSpace(field)
	if field == "" {
		field = DefaultAPIKeyField
	}
	value, ok := credentials[field].(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}

// GetCredentials decrypts and decodes the opaque credentials blob.
func (r *CredentialResolver) GetCredentials(ctx context.Context, key IntegrationKey) (map[string]any, bool) {
	if r == nil || r.store == nil || key.Validate() != nil {
		return nil, false
	}
	key.Provider = NormalizeProvider(string(key.Provider))
	fields := integrationFields(key)

	rec, err := r.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrIntegrationNotFound) {
			fields["error"] = err.Error()
			r.observer.warn(ctx, "load integration for api key failed", fields)
		}
		return nil, false
	}
	if !usableStatus(rec.Status) || strings.TrimSpace(rec.CredentialsEncrypted) == "" {
		return nil, false
	}
	plaintext, err := r.cipher.Decrypt(ctx, rec.CredentialsEncrypted)
	if err != nil {
		fields["error"] = err.Error()
		r.observer.warn(ctx, "decrypt credentials failed", fields)
		return nil, false
	}
	credentials := map[string]any{}
	if err := json.Unmarshal([]byte(plaintext), &credentials); err != nil {
		fields["error"] = err.Error()
		r.observer.warn(ctx, "decode credentials failed", fields)
		return nil, false
	}
	return credentials, true
}

func (r *CredentialResolver) needsRefresh(rec Integration) bool {
	return IsExpiredAt(r.observer.clock(), rec.TokenExpiresAt, r.buffer)
}

func usableStatus(status IntegrationStatus) bool {
	return status.Usable()
}
