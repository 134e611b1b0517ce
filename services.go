package integrations

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-integrations/adapters/gocommand"
	"github.com/goliatone/go-integrations/adapters/gojob"
	"github.com/goliatone/go-integrations/adapters/gologger"
	"github.com/goliatone/go-integrations/client"
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/ratelimit"
	"github.com/goliatone/go-integrations/security"
	sqlstore "github.com/goliatone/go-integrations/store/sql"
	integrationsync "github.com/goliatone/go-integrations/sync"
	"github.com/goliatone/go-integrations/transport"
)

type Config = core.Config

type Service = core.Service

type Integration = core.Integration
type IntegrationKey = core.IntegrationKey
type SyncLogEntry = core.SyncLogEntry

type ConnectAPIKeyRequest = core.ConnectAPIKeyRequest
type BeginOAuthRequest = core.BeginOAuthRequest
type CompleteOAuthRequest = core.CompleteOAuthRequest

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Runtime holds every collaborator built for one gateway process. Nothing
// in it is global; callers own its lifecycle through Close.
type Runtime struct {
	Service  *core.Service
	Cipher   *security.Cipher
	OAuth    *providers.OAuth2Provider
	Executor *transport.Executor
	Limiters *ratelimit.Registry
	Syncs    *integrationsync.Runner
	Jobs     *gojob.Handler
	Facade   *Facade
	Hooks    *ExtensionHooks
	Logging  *gologger.Bridge

	db *persistence.Client
}

type runtimeOptions struct {
	logger         glog.Logger
	loggerProvider glog.LoggerProvider
	httpClient     *http.Client
	cacheTTL       time.Duration
	memoryStores   bool
	persistence    *persistence.Client
	hooks          *ExtensionHooks
	retryPolicy    *gojob.RetryPolicy
	serviceOptions []core.Option
}

type RuntimeOption func(*runtimeOptions)

func WithLogger(logger glog.Logger) RuntimeOption {
	return func(o *runtimeOptions) {
		o.logger = logger
	}
}

func WithLoggerProvider(provider glog.LoggerProvider) RuntimeOption {
	return func(o *runtimeOptions) {
		o.loggerProvider = provider
	}
}

// WithHTTPClient is shared by the executor and the OAuth2 token calls.
func WithHTTPClient(httpClient *http.Client) RuntimeOption {
	return func(o *runtimeOptions) {
		o.httpClient = httpClient
	}
}

// WithIntegrationCache fronts integration reads with a repository cache.
// Only SQL-backed runtimes use it.
func WithIntegrationCache(ttl time.Duration) RuntimeOption {
	return func(o *runtimeOptions) {
		o.cacheTTL = ttl
	}
}

// WithMemoryStores keeps integrations and sync logs in process memory.
func WithMemoryStores() RuntimeOption {
	return func(o *runtimeOptions) {
		o.memoryStores = true
	}
}

// WithPersistenceClient reuses an already opened database. Migrations are
// the caller's responsibility.
func WithPersistenceClient(db *persistence.Client) RuntimeOption {
	return func(o *runtimeOptions) {
		o.persistence = db
	}
}

func WithExtensionHooks(hooks *ExtensionHooks) RuntimeOption {
	return func(o *runtimeOptions) {
		o.hooks = hooks
	}
}

func WithJobRetryPolicy(policy gojob.RetryPolicy) RuntimeOption {
	return func(o *runtimeOptions) {
		o.retryPolicy = &policy
	}
}

// WithServiceOptions forwards options to core.NewService, for example a
// metrics recorder or a distributed connection locker.
func WithServiceOptions(opts ...core.Option) RuntimeOption {
	return func(o *runtimeOptions) {
		o.serviceOptions = append(o.serviceOptions, opts...)
	}
}

// New builds a Runtime. It fails fast when the encryption master key is
// missing. Without a database DSN or injected client the stores live in
// memory.
func New(ctx context.Context, cfg Config, opts ...RuntimeOption) (*Runtime, error) {
	options := runtimeOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bridge := gologger.NewBridge(gologger.DefaultName, options.loggerProvider, options.logger)
	rt := &Runtime{Logging: bridge, Hooks: options.hooks}
	if rt.Hooks == nil {
		rt.Hooks = NewExtensionHooks()
	}

	cipher, err := security.NewCipherFromConfig(cfg)
	if err != nil {
		return nil, core.MapError(err)
	}
	rt.Cipher = cipher

	providerOpts := []providers.Option{}
	executorOpts := []transport.ExecutorOption{transport.WithLoggerProvider(bridge.Provider())}
	if options.httpClient != nil {
		providerOpts = append(providerOpts, providers.WithHTTPClient(options.httpClient))
		executorOpts = append(executorOpts, transport.WithHTTPClient(options.httpClient))
	}
	rt.OAuth = providers.NewOAuth2Provider(cfg, providerOpts...)

	stores, err := rt.openStores(ctx, cfg, options)
	if err != nil {
		return nil, err
	}

	serviceOpts := []core.Option{
		core.WithLoggerProvider(bridge.Provider()),
		core.WithCipher(cipher),
		core.WithStoreProvider(stores),
		core.WithTokenRefresher(rt.OAuth),
		core.WithOAuthConnector(rt.OAuth),
		core.WithConnectionLocker(core.NewMemoryConnectionLocker()),
	}
	serviceOpts = append(serviceOpts, options.serviceOptions...)
	svc, err := core.NewService(cfg, serviceOpts...)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Service = svc

	resolved := svc.Config()
	rt.Executor = transport.NewExecutor(resolved.Transport, executorOpts...)
	rt.Limiters = ratelimit.NewRegistry(resolved)

	rt.Syncs, err = integrationsync.NewRunner(svc, integrationsync.WithLogger(bridge.Component("sync")))
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	handlerOpts := []gojob.HandlerOption{gojob.WithHandlerLogger(bridge.Component("jobs"))}
	if options.retryPolicy != nil {
		handlerOpts = append(handlerOpts, gojob.WithRetryPolicy(*options.retryPolicy))
	}
	rt.Jobs = gojob.NewHandler(rt.Syncs, svc, handlerOpts...)
	if err := rt.Hooks.ApplySyncPacks(rt.Jobs); err != nil {
		_ = rt.Close()
		return nil, err
	}

	rt.Facade, err = NewFacade(svc, svc.SyncLogger())
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (r *Runtime) openStores(ctx context.Context, cfg Config, options runtimeOptions) (core.StoreProvider, error) {
	db := options.persistence
	if db == nil && !options.memoryStores && strings.TrimSpace(cfg.Database.DSN) != "" {
		migrationsFS, err := DialectMigrationsFS(cfg.Database.Driver)
		if err != nil {
			return nil, err
		}
		db, err = sqlstore.Open(ctx, cfg.Database, migrationsFS)
		if err != nil {
			return nil, err
		}
		r.db = db
	}
	if db == nil {
		return memoryStores{
			integrations: core.NewMemoryIntegrationStore(),
			syncLogs:     core.NewMemorySyncLogStore(),
		}, nil
	}

	factoryOpts := []sqlstore.FactoryOption{}
	if options.cacheTTL > 0 {
		cacheCfg := repositorycache.DefaultConfig()
		cacheCfg.TTL = options.cacheTTL
		cacheService, err := repositorycache.NewCacheService(cacheCfg)
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("integrations: integration cache: %w", err)
		}
		factoryOpts = append(factoryOpts, sqlstore.WithIntegrationCache(cacheService))
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(db, factoryOpts...)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	return factory, nil
}

// Client builds a provider client for an organization from the provider's
// registered spec.
func (r *Runtime) Client(organizationID string, provider core.Provider) (*client.Base, error) {
	if r == nil || r.Service == nil {
		return nil, fmt.Errorf("integrations: runtime is not configured")
	}
	spec, ok := r.Hooks.ProviderSpec(provider)
	if !ok {
		return nil, fmt.Errorf("integrations: no client spec registered for provider %q", provider)
	}
	return NewClient(spec, organizationID, client.Dependencies{
		Service:  r.Service,
		Executor: r.Executor,
		Limiters: r.Limiters,
	})
}

// RegisterHandlers subscribes the command and query handlers on the
// go-command dispatcher.
func (r *Runtime) RegisterHandlers(adapter *gocommand.RegistryAdapter) (gocommand.Subscriptions, error) {
	if r == nil || r.Facade == nil {
		return nil, fmt.Errorf("integrations: runtime is not configured")
	}
	return r.Facade.Handlers().Register(adapter)
}

// Close releases the database opened by New. An injected persistence
// client is left open.
func (r *Runtime) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	db := r.db
	r.db = nil
	if err := db.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

type memoryStores struct {
	integrations *core.MemoryIntegrationStore
	syncLogs     *core.MemorySyncLogStore
}

func (m memoryStores) IntegrationStore() core.IntegrationStore { return m.integrations }
func (m memoryStores) SyncLogStore() core.SyncLogStore         { return m.syncLogs }
