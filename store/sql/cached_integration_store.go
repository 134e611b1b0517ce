package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-integrations/core"
)

const integrationCacheKeyPrefix = "go-integrations::integration::v1"

// CachedIntegrationStore serves Get from a read-through cache. Every write
// evicts the affected key after the base store accepts it.
type CachedIntegrationStore struct {
	base  core.IntegrationStore
	cache repositorycache.CacheService
}

func NewCachedIntegrationStore(
	base core.IntegrationStore,
	cacheService repositorycache.CacheService,
) (*CachedIntegrationStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base integration store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: integration cache service is required")
	}
	return &CachedIntegrationStore{base: base, cache: cacheService}, nil
}

// IntegrationCacheKey is go-integrations::integration::v1::<organization>::<provider>
// with each segment URL-path escaped.
func IntegrationCacheKey(key core.IntegrationKey) (string, error) {
	key.OrganizationID = strings.TrimSpace(key.OrganizationID)
	key.Provider = core.NormalizeProvider(string(key.Provider))
	if err := key.Validate(); err != nil {
		return "", err
	}
	return strings.Join([]string{
		integrationCacheKeyPrefix,
		url.PathEscape(key.OrganizationID),
		url.PathEscape(string(key.Provider)),
	}, "::"), nil
}

func (s *CachedIntegrationStore) Upsert(ctx context.Context, in core.UpsertIntegrationInput) (core.Integration, error) {
	if err := s.ready(); err != nil {
		return core.Integration{}, err
	}
	rec, err := s.base.Upsert(ctx, in)
	if err != nil {
		return core.Integration{}, err
	}
	return rec, s.evict(ctx, keyOf(rec))
}

func (s *CachedIntegrationStore) Get(ctx context.Context, key core.IntegrationKey) (core.Integration, error) {
	if err := s.ready(); err != nil {
		return core.Integration{}, err
	}
	cacheKey, err := IntegrationCacheKey(key)
	if err != nil {
		return core.Integration{}, err
	}
	rec, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Integration, error) {
		return s.base.Get(ctx, key)
	})
	if err != nil {
		return core.Integration{}, err
	}
	return cloneIntegration(rec), nil
}

func (s *CachedIntegrationStore) GetByID(ctx context.Context, id string) (core.Integration, error) {
	if err := s.ready(); err != nil {
		return core.Integration{}, err
	}
	return s.base.GetByID(ctx, id)
}

func (s *CachedIntegrationStore) ListByOrganization(ctx context.Context, organizationID string) ([]core.Integration, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.base.ListByOrganization(ctx, organizationID)
}

// UpdateTokens also evicts on a version conflict so the caller's re-read
// sees the winning write.
func (s *CachedIntegrationStore) UpdateTokens(
	ctx context.Context,
	id string,
	expectedVersion int64,
	update core.TokenUpdate,
) (core.Integration, error) {
	if err := s.ready(); err != nil {
		return core.Integration{}, err
	}
	rec, err := s.base.UpdateTokens(ctx, id, expectedVersion, update)
	if err != nil {
		if errors.Is(err, core.ErrTokenVersionConflict) {
			_ = s.evictByID(ctx, id)
		}
		return core.Integration{}, err
	}
	return rec, s.evict(ctx, keyOf(rec))
}

func (s *CachedIntegrationStore) UpdateStatus(ctx context.Context, id string, status core.IntegrationStatus, reason string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.base.UpdateStatus(ctx, id, status, reason); err != nil {
		return err
	}
	return s.evictByID(ctx, id)
}

func (s *CachedIntegrationStore) RecordSyncOutcome(ctx context.Context, id string, outcome core.SyncOutcome) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.base.RecordSyncOutcome(ctx, id, outcome); err != nil {
		return err
	}
	return s.evictByID(ctx, id)
}

func (s *CachedIntegrationStore) ClearSecrets(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.base.ClearSecrets(ctx, id); err != nil {
		return err
	}
	return s.evictByID(ctx, id)
}

func (s *CachedIntegrationStore) ready() error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached integration store is not configured")
	}
	return nil
}

func (s *CachedIntegrationStore) evictByID(ctx context.Context, id string) error {
	rec, err := s.base.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.evict(ctx, keyOf(rec))
}

func (s *CachedIntegrationStore) evict(ctx context.Context, key core.IntegrationKey) error {
	cacheKey, err := IntegrationCacheKey(key)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func keyOf(rec core.Integration) core.IntegrationKey {
	return core.IntegrationKey{OrganizationID: rec.OrganizationID, Provider: rec.Provider}
}

func cloneIntegration(rec core.Integration) core.Integration {
	cloned := rec
	cloned.TokenExpiresAt = cloneTime(rec.TokenExpiresAt)
	cloned.LastSyncAt = cloneTime(rec.LastSyncAt)
	cloned.LastErrorAt = cloneTime(rec.LastErrorAt)
	return cloned
}

var _ core.IntegrationStore = (*CachedIntegrationStore)(nil)
