package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/transport"
)

// AuthStrategy produces the auth header for a single request attempt.
type AuthStrategy = transport.AuthStrategy

// OAuth2Strategy sends Authorization: Bearer <access token>, refreshing the
// token through the resolver when it is near expiry.
type OAuth2Strategy struct {
	Credentials *core.CredentialResolver
	Key         core.IntegrationKey
}

func (s OAuth2Strategy) AuthHeader(ctx context.Context) (string, string, bool, error) {
	if s.Credentials == nil {
		return "", "", false, fmt.Errorf("client: credential resolver is required")
	}
	token, ok, err := s.Credentials.GetAccessToken(ctx, s.Key)
	if err != nil || !ok {
		return "", "", false, err
	}
	return "Authorization", "Bearer " + token, true, nil
}

// APIKeyStrategy reads one field from the stored credentials blob and sends
// it in HeaderName, prefixed by Scheme when set.
type APIKeyStrategy struct {
	Credentials *core.CredentialResolver
	Key         core.IntegrationKey
	HeaderName  string
	Scheme      string
	Field       string
}

func (s APIKeyStrategy) AuthHeader(ctx context.Context) (string, string, bool, error) {
	if s.Credentials == nil {
		return "", "", false, fmt.Errorf("client: credential resolver is required")
	}
	header := strings.TrimSpace(s.HeaderName)
	if header == "" {
		header = "X-API-Key"
	}
	value, ok := s.Credentials.GetAPIKey(ctx, s.Key, s.Field)
	if !ok {
		return "", "", false, nil
	}
	if scheme := strings.TrimSpace(s.Scheme); scheme != "" {
		value = scheme + " " + value
	}
	return header, value, true, nil
}

var (
	_ AuthStrategy = OAuth2Strategy{}
	_ AuthStrategy = APIKeyStrategy{}
)
