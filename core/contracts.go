package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// SecretCipher encrypts values before they are persisted.
type SecretCipher interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

type UpsertIntegrationInput struct {
	OrganizationID        string
	Provider              Provider
	Status                IntegrationStatus
	AccessTokenEncrypted  string
	RefreshTokenEncrypted string
	TokenExpiresAt        *time.Time
	CredentialsEncrypted  string
	ExternalAccountID     string
}

// TokenUpdate replaces the encrypted token set of an integration.
type TokenUpdate struct {
	AccessTokenEncrypted  string
	RefreshTokenEncrypted string
	TokenExpiresAt        *time.Time
}

type IntegrationStore interface {
	// Upsert creates or replaces the record for (organization, provider).
	Upsert(ctx context.Context, in UpsertIntegrationInput) (Integration, error)
	Get(ctx context.Context, key IntegrationKey) (Integration, error)
	GetByID(ctx context.Context, id string) (Integration, error)
	ListByOrganization(ctx context.Context, organizationID string) ([]Integration, error)
	// UpdateTokens applies the update only when the stored version equals
	// expectedVersion and returns ErrTokenVersionConflict otherwise.
	UpdateTokens(ctx context.Context, id string, expectedVersion int64, update TokenUpdate) (Integration, error)
	UpdateStatus(ctx context.Context, id string, status IntegrationStatus, reason string) error
	RecordSyncOutcome(ctx context.Context, id string, outcome SyncOutcome) error
	ClearSecrets(ctx context.Context, id string) error
}

type CreateSyncLogInput struct {
	IntegrationID  string
	OrganizationID string
	Provider       Provider
	Operation      string
	Direction      SyncDirection
	EntityType     string
	EntityID       string
	RequestSummary map[string]any
	Trigger        SyncTrigger
	StartedAt      time.Time
}

type CompleteSyncLogInput struct {
	Status          SyncStatus
	ExternalID      string
	ResponseSummary map[string]any
	ErrorCode       string
	ErrorMessage    string
	CompletedAt     time.Time
}

type SyncLogQuery struct {
	IntegrationID  string
	OrganizationID string
	Provider       Provider
	Status         SyncStatus
	Limit          int
	Offset         int
}

type SyncLogStore interface {
	Create(ctx context.Context, in CreateSyncLogInput) (SyncLogEntry, error)
	Get(ctx context.Context, id string) (SyncLogEntry, error)
	// Complete finalizes a running entry and returns ErrSyncLogFinalized when
	// the entry is already terminal.
	Complete(ctx context.Context, id string, in CompleteSyncLogInput) (SyncLogEntry, error)
	List(ctx context.Context, query SyncLogQuery) ([]SyncLogEntry, error)
	LatestTerminal(ctx context.Context, integrationID string) (SyncLogEntry, error)
}

// OAuthToken is the token set returned by a provider token endpoint.
type OAuthToken struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    *time.Time
}

type TokenRefresher interface {
	Refresh(ctx context.Context, provider Provider, refreshToken string) (OAuthToken, error)
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

type ConnectionLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

// OAuthConnector drives the authorization code flow for a provider.
type OAuthConnector interface {
	AuthCodeURL(provider Provider, state string) (string, error)
	Exchange(ctx context.Context, provider Provider, code string) (OAuthToken, error)
}

// StoreProvider exposes the persistence collaborators built from a
// persistence client.
type StoreProvider interface {
	IntegrationStore() IntegrationStore
	SyncLogStore() SyncLogStore
}
