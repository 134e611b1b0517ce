package client

import (
	"context"
	"fmt"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/ratelimit"
	"github.com/goliatone/go-integrations/transport"
)

// Dependencies are shared by every client built from one runtime.
type Dependencies struct {
	Service  *core.Service
	Executor *transport.Executor
	Limiters *ratelimit.Registry
}

// Base carries what every provider client needs: the integration it acts
// for, an auth strategy and the shared executor.
type Base struct {
	key      core.IntegrationKey
	baseURL  string
	strategy AuthStrategy
	service  *core.Service
	executor *transport.Executor
	limiter  *ratelimit.Limiter
	logger   glog.Logger
}

func NewBase(
	organizationID string,
	provider core.Provider,
	baseURL string,
	strategy AuthStrategy,
	deps Dependencies,
) (*Base, error) {
	key := core.IntegrationKey{
		OrganizationID: strings.TrimSpace(organizationID),
		Provider:       core.NormalizeProvider(string(provider)),
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if deps.Service == nil {
		return nil, fmt.Errorf("client: service is required")
	}
	if strategy == nil {
		return nil, fmt.Errorf("client: auth strategy is required")
	}
	if strings.TrimSpace(baseURL) == "" {
		if cfg, ok := deps.Service.Config().Provider(key.Provider); ok {
			baseURL = cfg.BaseURL
		}
	}
	executor := deps.Executor
	if executor == nil {
		executor = transport.NewExecutor(deps.Service.Config().Transport)
	}
	logger := deps.Service.Logger()
	if fields, ok := logger.(glog.FieldsLogger); ok {
		logger = fields.WithFields(map[string]any{
			"organization_id": key.OrganizationID,
			"provider":        string(key.Provider),
		})
	}
	return &Base{
		key:      key,
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		strategy: strategy,
		service:  deps.Service,
		executor: executor,
		limiter:  deps.Limiters.For(key.Provider),
		logger:   glog.Ensure(logger),
	}, nil
}

// NewOAuth2Client builds a Base that authenticates with a bearer token.
func NewOAuth2Client(organizationID string, provider core.Provider, baseURL string, deps Dependencies) (*Base, error) {
	if deps.Service == nil {
		return nil, fmt.Errorf("client: service is required")
	}
	strategy := OAuth2Strategy{
		Credentials: deps.Service.Credentials(),
		Key:         core.IntegrationKey{OrganizationID: organizationID, Provider: core.NormalizeProvider(string(provider))},
	}
	return NewBase(organizationID, provider, baseURL, strategy, deps)
}

// NewAPIKeyClient builds a Base that sends a stored API key in headerName.
// An empty scheme sends the bare key.
func NewAPIKeyClient(
	organizationID string,
	provider core.Provider,
	baseURL string,
	headerName string,
	scheme string,
	deps Dependencies,
) (*Base, error) {
	if deps.Service == nil {
		return nil, fmt.Errorf("client: service is required")
	}
	strategy := APIKeyStrategy{
		Credentials: deps.Service.Credentials(),
		Key:         core.IntegrationKey{OrganizationID: organizationID, Provider: core.NormalizeProvider(string(provider))},
		HeaderName:  headerName,
		Scheme:      scheme,
		Field:       core.DefaultAPIKeyField,
	}
	return NewBase(organizationID, provider, baseURL, strategy, deps)
}

func (b *Base) Key() core.IntegrationKey {
	return b.key
}

func (b *Base) Logger() glog.Logger {
	return b.logger
}

func (b *Base) IsConnected(ctx context.Context) bool {
	return b.service.IsConnected(ctx, b.key)
}

// LoadIntegration returns false when the organization never connected the
// provider or the store is unavailable.
func (b *Base) LoadIntegration(ctx context.Context) (*core.Integration, bool) {
	rec, err := b.service.GetIntegration(ctx, b.key)
	if err != nil {
		if !core.IsNotFound(err) {
			b.logger.Warn("load integration failed", "error", err)
		}
		return nil, false
	}
	return &rec, true
}

func (b *Base) SyncLogger() *core.SyncLogger {
	return b.service.SyncLogger()
}

// StartSync opens a running sync log for this client's integration.
func (b *Base) StartSync(ctx context.Context, params core.StartSyncParams) (string, error) {
	rec, ok := b.LoadIntegration(ctx)
	if !ok {
		return "", fmt.Errorf("client: %w: %s", core.ErrIntegrationNotFound, b.key)
	}
	params.IntegrationID = rec.ID
	params.OrganizationID = rec.OrganizationID
	params.Provider = rec.Provider
	return b.SyncLogger().Start(ctx, params)
}

// Do performs an untyped request against the provider.
func (b *Base) Do(ctx context.Context, path string, opts transport.RequestOptions) transport.Result[[]byte] {
	return Request[[]byte](ctx, b, path, opts)
}

// Request resolves path against the client base URL and runs it through
// the executor with this client's auth strategy and rate limiter.
func Request[T any](ctx context.Context, b *Base, path string, opts transport.RequestOptions) transport.Result[T] {
	if b == nil {
		return transport.Result[T]{Error: &transport.RequestError{
			Code:    transport.CodeInvalidRequest,
			Message: "client is not configured",
		}}
	}
	if opts.Auth == nil {
		opts.Auth = b.strategy
	}
	if opts.Limiter == nil && b.limiter != nil {
		opts.Limiter = b.limiter
	}
	res := transport.Request[T](ctx, b.executor, b.endpoint(path), opts)
	if !res.Success && res.Error != nil {
		b.logger.Warn("provider request failed",
			"path", path,
			"code", res.Error.Code,
			"attempts", res.Attempts,
		)
	}
	return res
}

func (b *Base) endpoint(path string) string {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if path == "" {
		return b.baseURL
	}
	return b.baseURL + "/" + strings.TrimLeft(path, "/")
}
