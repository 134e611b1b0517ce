package command

import (
	"strings"

	"github.com/goliatone/go-integrations/core"
)

const (
	TypeConnectAPIKey     = "integrations.command.connect.api_key"
	TypeBeginOAuth        = "integrations.command.oauth.begin"
	TypeCompleteOAuth     = "integrations.command.oauth.complete"
	TypeDisconnect        = "integrations.command.disconnect"
	TypeRefreshCredential = "integrations.command.credential.refresh"
	TypeReconcileSync     = "integrations.command.sync.reconcile"
)

type ConnectAPIKeyMessage struct {
	Request core.ConnectAPIKeyRequest
}

func (ConnectAPIKeyMessage) Type() string { return TypeConnectAPIKey }

func (m ConnectAPIKeyMessage) Validate() error {
	if err := validateKey(m.Request.OrganizationID, m.Request.Provider); err != nil {
		return err
	}
	if len(m.Request.Credentials) == 0 {
		return commandValidationError("credentials", "must not be empty")
	}
	return nil
}

type BeginOAuthMessage struct {
	Request core.BeginOAuthRequest
}

func (BeginOAuthMessage) Type() string { return TypeBeginOAuth }

func (m BeginOAuthMessage) Validate() error {
	return validateKey(m.Request.OrganizationID, m.Request.Provider)
}

type CompleteOAuthMessage struct {
	Request core.CompleteOAuthRequest
}

func (CompleteOAuthMessage) Type() string { return TypeCompleteOAuth }

func (m CompleteOAuthMessage) Validate() error {
	if strings.TrimSpace(m.Request.State) == "" {
		return commandValidationError("state", "is required")
	}
	if strings.TrimSpace(m.Request.Code) == "" {
		return commandValidationError("code", "is required")
	}
	return nil
}

type DisconnectMessage struct {
	Key core.IntegrationKey
}

func (DisconnectMessage) Type() string { return TypeDisconnect }

func (m DisconnectMessage) Validate() error {
	return validateKey(m.Key.OrganizationID, m.Key.Provider)
}

type RefreshCredentialMessage struct {
	Key core.IntegrationKey
}

func (RefreshCredentialMessage) Type() string { return TypeRefreshCredential }

func (m RefreshCredentialMessage) Validate() error {
	return validateKey(m.Key.OrganizationID, m.Key.Provider)
}

// RefreshResult reports whether the integration still holds a usable token.
type RefreshResult struct {
	Key       core.IntegrationKey
	Connected bool
}

type ReconcileSyncMessage struct {
	IntegrationID string
}

func (ReconcileSyncMessage) Type() string { return TypeReconcileSync }

func (m ReconcileSyncMessage) Validate() error {
	if strings.TrimSpace(m.IntegrationID) == "" {
		return commandValidationError("integration_id", "is required")
	}
	return nil
}

func validateKey(organizationID string, provider core.Provider) error {
	key := core.IntegrationKey{OrganizationID: organizationID, Provider: provider}
	if err := key.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid integration key")
	}
	return nil
}
