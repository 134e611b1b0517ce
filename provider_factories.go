package integrations

import (
	"fmt"

	"github.com/goliatone/go-integrations/client"
)

// NewClient builds a provider client for organizationID according to spec.
func NewClient(spec ProviderSpec, organizationID string, deps client.Dependencies) (*client.Base, error) {
	switch spec.Auth {
	case AuthOAuth2:
		return client.NewOAuth2Client(organizationID, spec.Provider, spec.BaseURL, deps)
	case AuthAPIKey:
		return client.NewAPIKeyClient(organizationID, spec.Provider, spec.BaseURL, spec.APIKeyHeader, spec.APIKeyScheme, deps)
	default:
		return nil, fmt.Errorf("integrations: provider %q has unsupported auth kind %q", spec.Provider, spec.Auth)
	}
}
