package query

import (
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
)

const (
	TypeGetIntegration   = "integrations.query.integration.get"
	TypeListIntegrations = "integrations.query.integration.list"
	TypeListSyncLogs     = "integrations.query.sync_log.list"

	maxSyncLogPageSize = 500
)

type GetIntegrationMessage struct {
	Key core.IntegrationKey
}

func (GetIntegrationMessage) Type() string { return TypeGetIntegration }

func (m GetIntegrationMessage) Validate() error {
	if err := m.Key.Validate(); err != nil {
		return queryWrapValidation(err, "query: invalid integration key")
	}
	return nil
}

type ListIntegrationsMessage struct {
	OrganizationID string
}

func (ListIntegrationsMessage) Type() string { return TypeListIntegrations }

func (m ListIntegrationsMessage) Validate() error {
	if strings.TrimSpace(m.OrganizationID) == "" {
		return queryValidationError("organization_id", "is required")
	}
	return nil
}

type ListSyncLogsMessage struct {
	Query core.SyncLogQuery
}

func (ListSyncLogsMessage) Type() string { return TypeListSyncLogs }

func (m ListSyncLogsMessage) Validate() error {
	if strings.TrimSpace(m.Query.IntegrationID) == "" && strings.TrimSpace(m.Query.OrganizationID) == "" {
		return queryValidationError("integration_id", "integration id or organization id is required")
	}
	if m.Query.Limit < 0 || m.Query.Limit > maxSyncLogPageSize {
		return queryValidationError("limit", "must be between 0 and 500")
	}
	if m.Query.Offset < 0 {
		return queryValidationError("offset", "must be >= 0")
	}
	return nil
}

// IntegrationView is the read model for an integration. Encrypted secret
// material never leaves the service through queries.
type IntegrationView struct {
	ID                string
	OrganizationID    string
	Provider          core.Provider
	Status            core.IntegrationStatus
	Connected         bool
	HasCredentials    bool
	TokenExpiresAt    *time.Time
	ExternalAccountID string
	LastSyncAt        *time.Time
	LastSyncStatus    string
	LastSyncMessage   string
	LastError         string
	LastErrorAt       *time.Time
	ErrorCount        int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func NewIntegrationView(rec core.Integration) IntegrationView {
	return IntegrationView{
		ID:                rec.ID,
		OrganizationID:    rec.OrganizationID,
		Provider:          rec.Provider,
		Status:            rec.Status,
		Connected:         rec.Status.Usable(),
		HasCredentials:    rec.AccessTokenEncrypted != "" || rec.CredentialsEncrypted != "",
		TokenExpiresAt:    rec.TokenExpiresAt,
		ExternalAccountID: rec.ExternalAccountID,
		LastSyncAt:        rec.LastSyncAt,
		LastSyncStatus:    rec.LastSyncStatus,
		LastSyncMessage:   rec.LastSyncMessage,
		LastError:         rec.LastError,
		LastErrorAt:       rec.LastErrorAt,
		ErrorCount:        rec.ErrorCount,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
}
