package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-integrations/core"
)

type integrationRecord struct {
	bun.BaseModel `bun:"table:integrations,alias:it"`

	ID                    string     `bun:"id,pk"`
	OrganizationID        string     `bun:"organization_id,notnull"`
	Provider              string     `bun:"provider,notnull"`
	Status                string     `bun:"status,notnull"`
	AccessTokenEncrypted  string     `bun:"access_token_encrypted,notnull"`
	RefreshTokenEncrypted string     `bun:"refresh_token_encrypted,notnull"`
	TokenExpiresAt        *time.Time `bun:"token_expires_at,nullzero"`
	CredentialsEncrypted  string     `bun:"credentials_encrypted,notnull"`
	ExternalAccountID     string     `bun:"external_account_id,notnull"`
	LastSyncAt            *time.Time `bun:"last_sync_at,nullzero"`
	LastSyncStatus        string     `bun:"last_sync_status,notnull"`
	LastSyncMessage       string     `bun:"last_sync_message,notnull"`
	LastError             string     `bun:"last_error,notnull"`
	LastErrorAt           *time.Time `bun:"last_error_at,nullzero"`
	ErrorCount            int        `bun:"error_count,notnull"`
	Version               int64      `bun:"version,notnull"`
	CreatedAt             time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt             time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type syncLogRecord struct {
	bun.BaseModel `bun:"table:integration_sync_logs,alias:isl"`

	ID              string         `bun:"id,pk"`
	IntegrationID   string         `bun:"integration_id,notnull"`
	OrganizationID  string         `bun:"organization_id,notnull"`
	Provider        string         `bun:"provider,notnull"`
	Operation       string         `bun:"operation,notnull"`
	Direction       string         `bun:"direction,notnull"`
	Status          string         `bun:"status,notnull"`
	EntityType      string         `bun:"entity_type,notnull"`
	EntityID        string         `bun:"entity_id,notnull"`
	ExternalID      string         `bun:"external_id,notnull"`
	RequestSummary  map[string]any `bun:"request_summary,type:jsonb,notnull"`
	ResponseSummary map[string]any `bun:"response_summary,type:jsonb,notnull"`
	ErrorCode       string         `bun:"error_code,notnull"`
	ErrorMessage    string         `bun:"error_message,notnull"`
	Trigger         string         `bun:"trigger,notnull"`
	StartedAt       time.Time      `bun:"started_at,notnull"`
	CompletedAt     *time.Time     `bun:"completed_at,nullzero"`
	DurationMS      int64          `bun:"duration_ms,notnull"`
}

func (r *integrationRecord) toDomain() core.Integration {
	if r == nil {
		return core.Integration{}
	}
	return core.Integration{
		ID:                    r.ID,
		OrganizationID:        r.OrganizationID,
		Provider:              core.Provider(r.Provider),
		Status:                core.IntegrationStatus(r.Status),
		AccessTokenEncrypted:  r.AccessTokenEncrypted,
		RefreshTokenEncrypted: r.RefreshTokenEncrypted,
		TokenExpiresAt:        cloneTime(r.TokenExpiresAt),
		CredentialsEncrypted:  r.CredentialsEncrypted,
		ExternalAccountID:     r.ExternalAccountID,
		LastSyncAt:            cloneTime(r.LastSyncAt),
		LastSyncStatus:        r.LastSyncStatus,
		LastSyncMessage:       r.LastSyncMessage,
		LastError:             r.LastError,
		LastErrorAt:           cloneTime(r.LastErrorAt),
		ErrorCount:            r.ErrorCount,
		Version:               r.Version,
		CreatedAt:             r.CreatedAt.UTC(),
		UpdatedAt:             r.UpdatedAt.UTC(),
	}
}

func newSyncLogRecord(in core.CreateSyncLogInput) *syncLogRecord {
	return &syncLogRecord{
		IntegrationID:   in.IntegrationID,
		OrganizationID:  in.OrganizationID,
		Provider:        string(core.NormalizeProvider(string(in.Provider))),
		Operation:       in.Operation,
		Direction:       string(in.Direction),
		Status:          string(core.SyncStatusRunning),
		EntityType:      in.EntityType,
		EntityID:        in.EntityID,
		RequestSummary:  copyAnyMap(in.RequestSummary),
		ResponseSummary: map[string]any{},
		Trigger:         string(in.Trigger),
		StartedAt:       in.StartedAt.UTC(),
	}
}

func (r *syncLogRecord) toDomain() core.SyncLogEntry {
	if r == nil {
		return core.SyncLogEntry{}
	}
	return core.SyncLogEntry{
		ID:              r.ID,
		IntegrationID:   r.IntegrationID,
		OrganizationID:  r.OrganizationID,
		Provider:        core.Provider(r.Provider),
		Operation:       r.Operation,
		Direction:       core.SyncDirection(r.Direction),
		Status:          core.SyncStatus(r.Status),
		EntityType:      r.EntityType,
		EntityID:        r.EntityID,
		ExternalID:      r.ExternalID,
		RequestSummary:  copyAnyMap(r.RequestSummary),
		ResponseSummary: copyAnyMap(r.ResponseSummary),
		ErrorCode:       r.ErrorCode,
		ErrorMessage:    r.ErrorMessage,
		Trigger:         core.SyncTrigger(r.Trigger),
		StartedAt:       r.StartedAt.UTC(),
		CompletedAt:     cloneTime(r.CompletedAt),
		DurationMS:      r.DurationMS,
	}
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := value.UTC()
	return &copied
}

func copyAnyMap(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}
