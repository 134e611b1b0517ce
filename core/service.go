package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service owns the integration lifecycle: connecting, disconnecting, and
// handing out the credential resolver and sync logger bound to the same
// stores and cipher.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	cipher          SecretCipher
	integrations    IntegrationStore
	syncLogs        SyncLogStore
	oauthConnector  OAuthConnector
	oauthStates     OAuthStateStore
	resolver        *CredentialResolver
	syncLogger      *SyncLogger
	observer        observer
	now             func() time.Time
}

type ConnectAPIKeyRequest struct {
	OrganizationID    string
	Provider          Provider
	Credentials       map[string]any
	ExternalAccountID string
}

type BeginOAuthRequest struct {
	OrganizationID string
	Provider       Provider
}

type BeginOAuthResponse struct {
	URL   string
	State string
}

type CompleteOAuthRequest struct {
	State             string
	Code              string
	ExternalAccountID string
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("integrations", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("integrations"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = MapError
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.oauthStateStore == nil {
		builder.oauthStateStore = NewMemoryOAuthStateStore(defaultOAuthStateTTL)
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.storeProvider != nil {
		if builder.integrationStore == nil {
			builder.integrationStore = builder.storeProvider.IntegrationStore()
		}
		if builder.syncLogStore == nil {
			builder.syncLogStore = builder.storeProvider.SyncLogStore()
		}
	}
	if builder.integrationStore == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: integration store is required"))
	}
	if builder.syncLogStore == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: sync log store is required"))
	}
	if builder.cipher == nil {
		return nil, mapBuildError(builder.errorMapper, ErrMasterKeyMissing)
	}

	resolver, err := NewCredentialResolver(ResolverDependencies{
		Store:           builder.integrationStore,
		Cipher:          builder.cipher,
		Refresher:       builder.tokenRefresher,
		Locker:          builder.connectionLocker,
		Logger:          logger,
		MetricsRecorder: builder.metricsRecorder,
		ExpiryBuffer:    finalConfig.ExpiryBuffer(),
		Now:             builder.now,
	})
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	syncLogger, err := NewSyncLogger(SyncLoggerDependencies{
		Logs:            builder.syncLogStore,
		Integrations:    builder.integrationStore,
		Logger:          logger,
		MetricsRecorder: builder.metricsRecorder,
		Now:             builder.now,
	})
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		cipher:          builder.cipher,
		integrations:    builder.integrationStore,
		syncLogs:        builder.syncLogStore,
		oauthConnector:  builder.oauthConnector,
		oauthStates:     builder.oauthStateStore,
		resolver:        resolver,
		syncLogger:      syncLogger,
		observer: observer{
			logger:  logger,
			metrics: builder.metricsRecorder,
			now:     builder.now,
		},
		now: builder.now,
	}, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() Logger {
	if s == nil {
		return glog.Nop()
	}
	return s.logger
}

func (s *Service) LoggerProvider() LoggerProvider {
	if s == nil {
		return nil
	}
	return s.loggerProvider
}

func (s *Service) MetricsRecorder() MetricsRecorder {
	if s == nil {
		return NopMetricsRecorder{}
	}
	return s.metricsRecorder
}

func (s *Service) Credentials() *CredentialResolver {
	if s == nil {
		return nil
	}
	return s.resolver
}

func (s *Service) SyncLogger() *SyncLogger {
	if s == nil {
		return nil
	}
	return s.syncLogger
}

func (s *Service) Integrations() IntegrationStore {
	if s == nil {
		return nil
	}
	return s.integrations
}

func (s *Service) SyncLogs() SyncLogStore {
	if s == nil {
		return nil
	}
	return s.syncLogs
}

func (s *Service) GetIntegration(ctx context.Context, key IntegrationKey) (Integration, error) {
	if s == nil || s.integrations == nil {
		return Integration{}, fmt.Errorf("core: service is not configured")
	}
	if err := key.Validate(); err != nil {
		return Integration{}, s.mapError(err)
	}
	key.Provider = NormalizeProvider(string(key.Provider))
	rec, err := s.integrations.Get(ctx, key)
	if err != nil {
		return Integration{}, s.mapError(err)
	}
	return rec, nil
}

func (s *Service) ListIntegrations(ctx context.Context, organizationID string) ([]Integration, error) {
	if s == nil || s.integrations == nil {
		return nil, fmt.Errorf("core: service is not configured")
	}
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, s.mapError(goerrors.NewValidation("organization id is required",
			goerrors.FieldError{Field: "organization_id", Message: "is required"},
		).WithTextCode(ErrorBadInput))
	}
	out, err := s.integrations.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, s.mapError(err)
	}
	return out, nil
}

// ListSyncLogs returns log entries newest first.
func (s *Service) ListSyncLogs(ctx context.Context, query SyncLogQuery) ([]SyncLogEntry, error) {
	if s == nil || s.syncLogs == nil {
		return nil, fmt.Errorf("core: service is not configured")
	}
	if query.Provider != "" {
		query.Provider = NormalizeProvider(string(query.Provider))
	}
	out, err := s.syncLogs.List(ctx, query)
	if err != nil {
		return nil, s.mapError(err)
	}
	return out, nil
}

// IsConnected reports whether the integration exists and can authenticate.
func (s *Service) IsConnected(ctx context.Context, key IntegrationKey) bool {
	rec, err := s.GetIntegration(ctx, key)
	if err != nil {
		return false
	}
	return usableStatus(rec.Status)
}

// ConnectAPIKey encrypts the credentials blob and stores the integration as
// connected.
func (s *Service) ConnectAPIKey(ctx context.Context, req ConnectAPIKeyRequest) (rec Integration, err error) {
	if s == nil || s.integrations == nil {
		return Integration{}, fmt.Errorf("core: service is not configured")
	}
	key := IntegrationKey{OrganizationID: req.OrganizationID, Provider: NormalizeProvider(string(req.Provider))}
	startedAt := s.now()
	defer func() {
		s.observer.observeOperation(ctx, startedAt, "connect_api_key", err, integrationFields(key))
	}()

	if err := key.Validate(); err != nil {
		return Integration{}, s.mapError(err)
	}
	if len(req.Credentials) == 0 {
		return Integration{}, s.mapError(goerrors.NewValidation("credentials are required",
			goerrors.FieldError{Field: "credentials", Message: "must not be empty"},
		).WithTextCode(ErrorBadInput))
	}
	payload, err := json.Marshal(req.Credentials)
	if err != nil {
		return Integration{}, s.mapError(fmt.Errorf("core: encode credentials: %w", err))
	}
	encrypted, err := s.cipher.Encrypt(ctx, string(payload))
	if err != nil {
		return Integration{}, s.mapError(err)
	}
	rec, err = s.integrations.Upsert(ctx, UpsertIntegrationInput{
		OrganizationID:       key.OrganizationID,
		Provider:             key.Provider,
		Status:               IntegrationStatusConnected,
		CredentialsEncrypted: encrypted,
		ExternalAccountID:    req.ExternalAccountID,
	})
	if err != nil {
		return Integration{}, s.mapError(err)
	}
	return rec, nil
}

// BeginOAuth issues a single-use state and returns the provider consent URL.
// An existing integration without usable credentials moves to connecting;
// connected and error integrations keep serving their stored credentials
// until the callback completes.
func (s *Service) BeginOAuth(ctx context.Context, req BeginOAuthRequest) (BeginOAuthResponse, error) {
	if s == nil || s.oauthConnector == nil {
		return BeginOAuthResponse{}, s.mapError(fmt.Errorf("%w: connector unavailable", ErrOAuthClientMissing))
	}
	key := IntegrationKey{OrganizationID: req.OrganizationID, Provider: NormalizeProvider(string(req.Provider))}
	if err := key.Validate(); err != nil {
		return BeginOAuthResponse{}, s.mapError(err)
	}
	state, err := generateOAuthState()
	if err != nil {
		return BeginOAuthResponse{}, s.mapError(err)
	}
	url, err := s.oauthConnector.AuthCodeURL(key.Provider, state)
	if err != nil {
		return BeginOAuthResponse{}, s.mapError(err)
	}
	if err := s.oauthStates.Save(ctx, OAuthState{
		State:          state,
		OrganizationID: strings.TrimSpace(key.OrganizationID),
		Provider:       key.Provider,
	}); err != nil {
		return BeginOAuthResponse{}, s.mapError(err)
	}
	if existing, err := s.integrations.Get(ctx, key); err == nil {
		if !existing.Status.Usable() && existing.Status.CanTransition(IntegrationStatusConnecting) {
			_ = s.integrations.UpdateStatus(ctx, existing.ID, IntegrationStatusConnecting, "")
		}
	}
	return BeginOAuthResponse{URL: url, State: state}, nil
}

// CompleteOAuth consumes the callback state, exchanges the code and stores
// the encrypted token set.
func (s *Service) CompleteOAuth(ctx context.Context, req CompleteOAuthRequest) (rec Integration, err error) {
	if s == nil || s.oauthConnector == nil {
		return Integration{}, s.mapError(fmt.Errorf("%w: connector unavailable", ErrOAuthClientMissing))
	}
	startedAt := s.now()
	state, err := s.oauthStates.Consume(ctx, req.State)
	if err != nil {
		return Integration{}, s.mapError(err)
	}
	key := IntegrationKey{OrganizationID: state.OrganizationID, Provider: state.Provider}
	defer func() {
		s.observer.observeOperation(ctx, startedAt, "complete_oauth", err, integrationFields(key))
	}()

	code := strings.TrimSpace(req.Code)
	if code == "" {
		return Integration{}, s.mapError(fmt.Errorf("core: authorization code is required"))
	}
	token, err := s.oauthConnector.Exchange(ctx, key.Provider, code)
	if err != nil {
		s.markConnectFailed(ctx, key, err)
		return Integration{}, s.mapError(err)
	}
	return s.StoreOAuthToken(ctx, key, token, req.ExternalAccountID)
}

// StoreOAuthToken encrypts and persists a token set obtained out of band.
func (s *Service) StoreOAuthToken(ctx context.Context, key IntegrationKey, token OAuthToken, externalAccountID string) (Integration, error) {
	if s == nil || s.integrations == nil {
		return Integration{}, fmt.Errorf("core: service is not configured")
	}
	if err := key.Validate(); err != nil {
		return Integration{}, s.mapError(err)
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return Integration{}, s.mapError(fmt.Errorf("core: access token is required"))
	}
	access, err := s.cipher.Encrypt(ctx, token.AccessToken)
	if err != nil {
		return Integration{}, s.mapError(err)
	}
	refresh := ""
	if strings.TrimSpace(token.RefreshToken) != "" {
		if refresh, err = s.cipher.Encrypt(ctx, token.RefreshToken); err != nil {
			return Integration{}, s.mapError(err)
		}
	}
	rec, err := s.integrations.Upsert(ctx, UpsertIntegrationInput{
		OrganizationID:        key.OrganizationID,
		Provider:              NormalizeProvider(string(key.Provider)),
		Status:                IntegrationStatusConnected,
		AccessTokenEncrypted:  access,
		RefreshTokenEncrypted: refresh,
		TokenExpiresAt:        token.ExpiresAt,
		ExternalAccountID:     externalAccountID,
	})
	if err != nil {
		return Integration{}, s.mapError(err)
	}
	return rec, nil
}

// Disconnect wipes secret material and transitions to disconnected. The
// record itself is kept.
func (s *Service) Disconnect(ctx context.Context, key IntegrationKey) (err error) {
	if s == nil || s.integrations == nil {
		return fmt.Errorf("core: service is not configured")
	}
	startedAt := s.now()
	defer func() {
		s.observer.observeOperation(ctx, startedAt, "disconnect", err, integrationFields(key))
	}()

	rec, err := s.GetIntegration(ctx, key)
	if err != nil {
		return err
	}
	if err := s.integrations.ClearSecrets(ctx, rec.ID); err != nil {
		return s.mapError(err)
	}
	if err := s.integrations.UpdateStatus(ctx, rec.ID, IntegrationStatusDisconnected, ""); err != nil {
		return s.mapError(err)
	}
	return nil
}

// RefreshCredential resolves the access token, refreshing it when it sits
// inside the expiry buffer. ok is false when the integration needs reconnecting.
func (s *Service) RefreshCredential(ctx context.Context, key IntegrationKey) (bool, error) {
	if s == nil || s.resolver == nil {
		return false, fmt.Errorf("core: service is not configured")
	}
	_, ok, err := s.resolver.GetAccessToken(ctx, key)
	if err != nil {
		return false, s.mapError(err)
	}
	return ok, nil
}

func (s *Service) markConnectFailed(ctx context.Context, key IntegrationKey, cause error) {
	existing, err := s.integrations.Get(ctx, key)
	if err != nil {
		return
	}
	if existing.Status.CanTransition(IntegrationStatusError) {
		_ = s.integrations.UpdateStatus(ctx, existing.ID, IntegrationStatusError, cause.Error())
	}
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	if mapped := s.errorMapper(err); mapped != nil {
		return mapped
	}
	return err
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}

// IsNotFound reports whether err denotes a missing integration or log.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrIntegrationNotFound) || errors.Is(err, ErrSyncLogNotFound) {
		return true
	}
	var richErr *goerrors.Error
	return goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryNotFound
}
