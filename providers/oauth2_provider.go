package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/goliatone/go-integrations/core"
)

const defaultTokenRequestTimeout = 30 * time.Second

type Option func(*OAuth2Provider)

// WithHTTPClient overrides the client used against token endpoints.
func WithHTTPClient(client *http.Client) Option {
	return func(p *OAuth2Provider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

func WithTokenRequestTimeout(timeout time.Duration) Option {
	return func(p *OAuth2Provider) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// OAuth2Provider talks to provider token endpoints for every provider in
// config. Client credentials are sent with HTTP Basic auth.
type OAuth2Provider struct {
	providers  map[core.Provider]core.ProviderConfig
	httpClient *http.Client
	timeout    time.Duration
}

func NewOAuth2Provider(cfg core.Config, opts ...Option) *OAuth2Provider {
	providers := make(map[core.Provider]core.ProviderConfig, len(cfg.Providers))
	for name, provider := range cfg.Providers {
		providers[core.NormalizeProvider(name)] = provider
	}
	p := &OAuth2Provider{
		providers: providers,
		timeout:   defaultTokenRequestTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{Timeout: p.timeout}
	}
	return p
}

func (p *OAuth2Provider) AuthCodeURL(provider core.Provider, state string) (string, error) {
	conf, err := p.config(provider)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(conf.Endpoint.AuthURL) == "" {
		return "", fmt.Errorf("providers: auth url is required for provider %q: %w", provider, core.ErrOAuthClientMissing)
	}
	return conf.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

func (p *OAuth2Provider) Exchange(ctx context.Context, provider core.Provider, code string) (core.OAuthToken, error) {
	conf, err := p.config(provider)
	if err != nil {
		return core.OAuthToken{}, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return core.OAuthToken{}, fmt.Errorf("providers: auth code is required")
	}
	ctx, cancel := p.requestContext(ctx)
	defer cancel()

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return core.OAuthToken{}, fmt.Errorf("providers: exchange code for %q: %s", provider, describeTokenError(err))
	}
	return toOAuthToken(token), nil
}

// Refresh posts grant_type=refresh_token to the provider token endpoint.
func (p *OAuth2Provider) Refresh(ctx context.Context, provider core.Provider, refreshToken string) (core.OAuthToken, error) {
	conf, err := p.config(provider)
	if err != nil {
		return core.OAuthToken{}, err
	}
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return core.OAuthToken{}, fmt.Errorf("providers: %w: refresh token is required", core.ErrTokenRefreshFailed)
	}
	ctx, cancel := p.requestContext(ctx)
	defer cancel()

	// An empty access token forces the source to hit the token endpoint.
	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return core.OAuthToken{}, fmt.Errorf("providers: %w for %q: %s", core.ErrTokenRefreshFailed, provider, describeTokenError(err))
	}
	return toOAuthToken(token), nil
}

func (p *OAuth2Provider) config(provider core.Provider) (*oauth2.Config, error) {
	if p == nil {
		return nil, fmt.Errorf("providers: oauth2 provider is nil")
	}
	provider = core.NormalizeProvider(string(provider))
	cfg, ok := p.providers[provider]
	if !ok || !cfg.HasOAuthClient() {
		return nil, fmt.Errorf("providers: %w: %q", core.ErrOAuthClientMissing, provider)
	}
	return &oauth2.Config{
		ClientID:     strings.TrimSpace(cfg.ClientID),
		ClientSecret: strings.TrimSpace(cfg.ClientSecret),
		RedirectURL:  strings.TrimSpace(cfg.RedirectURL),
		Scopes:       append([]string(nil), cfg.Scopes...),
		Endpoint: oauth2.Endpoint{
			AuthURL:   strings.TrimSpace(cfg.AuthURL),
			TokenURL:  strings.TrimSpace(cfg.TokenURL),
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}, nil
}

func (p *OAuth2Provider) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	return context.WithTimeout(ctx, p.timeout)
}

func toOAuthToken(token *oauth2.Token) core.OAuthToken {
	out := core.OAuthToken{
		AccessToken:  strings.TrimSpace(token.AccessToken),
		RefreshToken: strings.TrimSpace(token.RefreshToken),
		TokenType:    normalizeTokenType(token.TokenType),
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		out.ExpiresAt = &expiry
	}
	return out
}

func describeTokenError(err error) string {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		switch {
		case strings.TrimSpace(retrieveErr.ErrorDescription) != "":
			return fmt.Sprintf("%d %s", status, strings.TrimSpace(retrieveErr.ErrorDescription))
		case strings.TrimSpace(retrieveErr.ErrorCode) != "":
			return fmt.Sprintf("%d %s", status, strings.TrimSpace(retrieveErr.ErrorCode))
		}
		return fmt.Sprintf("%d %s", status, http.StatusText(status))
	}
	return err.Error()
}

func normalizeTokenType(value string) string {
	if strings.EqualFold(strings.TrimSpace(value), "bearer") || strings.TrimSpace(value) == "" {
		return "Bearer"
	}
	return strings.TrimSpace(value)
}

var (
	_ core.TokenRefresher = (*OAuth2Provider)(nil)
	_ core.OAuthConnector = (*OAuth2Provider)(nil)
)
