package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-integrations/core"
)

type RepositoryFactory struct {
	db    *bun.DB
	cache repositorycache.CacheService

	integrationStore core.IntegrationStore
	syncLogStore     *SyncLogStore
}

type FactoryOption func(*RepositoryFactory)

// WithIntegrationCache fronts integration reads with cacheService.
func WithIntegrationCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cache = cacheService
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	f := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.integrationStore != nil && f.syncLogStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) IntegrationStore() core.IntegrationStore {
	if f == nil {
		return nil
	}
	return f.integrationStore
}

func (f *RepositoryFactory) SyncLogStore() core.SyncLogStore {
	if f == nil || f.syncLogStore == nil {
		return nil
	}
	return f.syncLogStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	integrationStore, err := NewIntegrationStore(f.db)
	if err != nil {
		return err
	}
	f.integrationStore = integrationStore
	if f.cache != nil {
		cached, err := NewCachedIntegrationStore(integrationStore, f.cache)
		if err != nil {
			return err
		}
		f.integrationStore = cached
	}

	syncLogStore, err := NewSyncLogStore(f.db)
	if err != nil {
		return err
	}
	f.syncLogStore = syncLogStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}

var _ core.StoreProvider = (*RepositoryFactory)(nil)
