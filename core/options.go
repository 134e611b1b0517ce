package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig    Config
	logger           Logger
	loggerProvider   LoggerProvider
	metricsRecorder  MetricsRecorder
	errorMapper      ErrorMapper
	configProvider   ConfigProvider
	optionsResolver  OptionsResolver
	cipher           SecretCipher
	storeProvider    StoreProvider
	integrationStore IntegrationStore
	syncLogStore     SyncLogStore
	tokenRefresher   TokenRefresher
	oauthConnector   OAuthConnector
	oauthStateStore  OAuthStateStore
	connectionLocker ConnectionLocker
	now              func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithCipher(cipher SecretCipher) Option {
	return func(b *serviceBuilder) {
		b.cipher = cipher
	}
}

// WithStoreProvider supplies both stores at once. Explicit store options win.
func WithStoreProvider(provider StoreProvider) Option {
	return func(b *serviceBuilder) {
		b.storeProvider = provider
	}
}

func WithIntegrationStore(store IntegrationStore) Option {
	return func(b *serviceBuilder) {
		b.integrationStore = store
	}
}

func WithSyncLogStore(store SyncLogStore) Option {
	return func(b *serviceBuilder) {
		b.syncLogStore = store
	}
}

func WithTokenRefresher(refresher TokenRefresher) Option {
	return func(b *serviceBuilder) {
		b.tokenRefresher = refresher
	}
}

func WithOAuthConnector(connector OAuthConnector) Option {
	return func(b *serviceBuilder) {
		b.oauthConnector = connector
	}
}

func WithOAuthStateStore(store OAuthStateStore) Option {
	return func(b *serviceBuilder) {
		b.oauthStateStore = store
	}
}

func WithConnectionLocker(locker ConnectionLocker) Option {
	return func(b *serviceBuilder) {
		b.connectionLocker = locker
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("integrations", nil, nil)
	return serviceBuilder{
		runtimeConfig:    runtime,
		loggerProvider:   loggerProvider,
		logger:           logger,
		metricsRecorder:  NopMetricsRecorder{},
		errorMapper:      MapError,
		configProvider:   NewCfgxConfigProvider(nil),
		optionsResolver:  GoOptionsResolver{},
		connectionLocker: NewMemoryConnectionLocker(),
		oauthStateStore:  NewMemoryOAuthStateStore(defaultOAuthStateTTL),
		now:              func() time.Time { return time.Now().UTC() },
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// NewStaticConfigLoader serves a fixed raw map, typically decoded from a file
// or environment by the host application.
func NewStaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults, loaded config and runtime overrides, in
// that order of precedence.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	encryption := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Encryption.MasterKey) != "" {
		encryption["master_key"] = cfg.Encryption.MasterKey
	}
	if includeZero || cfg.Encryption.KDFIterations != 0 {
		encryption["kdf_iterations"] = cfg.Encryption.KDFIterations
	}
	if len(encryption) > 0 {
		layer["encryption"] = encryption
	}

	if includeZero || cfg.Credentials.ExpiryBufferSeconds != 0 {
		layer["credentials"] = map[string]any{
			"expiry_buffer_seconds": cfg.Credentials.ExpiryBufferSeconds,
		}
	}

	transport := map[string]any{}
	if includeZero || cfg.Transport.TimeoutMS != 0 {
		transport["timeout_ms"] = cfg.Transport.TimeoutMS
	}
	if includeZero || cfg.Transport.Retries != 0 {
		transport["retries"] = cfg.Transport.Retries
	}
	if includeZero || cfg.Transport.RetryDelayMS != 0 {
		transport["retry_delay_ms"] = cfg.Transport.RetryDelayMS
	}
	if len(transport) > 0 {
		layer["transport"] = transport
	}

	if includeZero || len(cfg.Providers) > 0 {
		providers := make(map[string]any, len(cfg.Providers))
		for name, provider := range cfg.Providers {
			providers[string(NormalizeProvider(name))] = providerToLayerMap(provider)
		}
		layer["providers"] = providers
	}

	database := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Database.Driver) != "" {
		database["driver"] = cfg.Database.Driver
	}
	if includeZero || strings.TrimSpace(cfg.Database.DSN) != "" {
		database["dsn"] = cfg.Database.DSN
	}
	if includeZero || cfg.Database.Debug {
		database["debug"] = cfg.Database.Debug
	}
	if len(database) > 0 {
		layer["database"] = database
	}
	return layer
}

func providerToLayerMap(cfg ProviderConfig) map[string]any {
	return map[string]any{
		"client_id":           cfg.ClientID,
		"client_secret":       cfg.ClientSecret,
		"auth_url":            cfg.AuthURL,
		"token_url":           cfg.TokenURL,
		"redirect_url":        cfg.RedirectURL,
		"scopes":              append([]string(nil), cfg.Scopes...),
		"base_url":            cfg.BaseURL,
		"concurrency":         cfg.Concurrency,
		"requests_per_second": cfg.RequestsPerSecond,
		"burst":               cfg.Burst,
	}
}
