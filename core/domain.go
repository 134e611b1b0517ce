package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrIntegrationNotFound                = errors.New("core: integration not found")
	ErrInvalidIntegrationStatusTransition = errors.New("core: invalid integration status transition")
	ErrSyncLogNotFound                    = errors.New("core: sync log not found")
	ErrSyncLogFinalized                   = errors.New("core: sync log already finalized")
	ErrInvalidSyncStatus                  = errors.New("core: invalid sync status")
	ErrInvalidSyncDirection               = errors.New("core: invalid sync direction")
	ErrInvalidSyncTrigger                 = errors.New("core: invalid sync trigger")
	ErrTokenVersionConflict               = errors.New("core: token version conflict")
)

// Provider identifies an external system an organization integrates with.
type Provider string

func (p Provider) String() string { return string(p) }

func NormalizeProvider(value string) Provider {
	return Provider(strings.ToLower(strings.TrimSpace(value)))
}

type IntegrationStatus string

const (
	IntegrationStatusDisconnected IntegrationStatus = "disconnected"
	IntegrationStatusConnecting   IntegrationStatus = "connecting"
	IntegrationStatusConnected    IntegrationStatus = "connected"
	IntegrationStatusError        IntegrationStatus = "error"
	IntegrationStatusExpired      IntegrationStatus = "expired"
)

func (s IntegrationStatus) Valid() bool {
	switch s {
	case IntegrationStatusDisconnected,
		IntegrationStatusConnecting,
		IntegrationStatusConnected,
		IntegrationStatusError,
		IntegrationStatusExpired:
		return true
	default:
		return false
	}
}

// Usable reports whether credentials in this status may still be used. An
// error status keeps its credentials; expired requires reconnecting.
func (s IntegrationStatus) Usable() bool {
	return s == IntegrationStatusConnected || s == IntegrationStatusError
}

// CanTransition reports whether moving from s to next is permitted.
func (s IntegrationStatus) CanTransition(next IntegrationStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case "", IntegrationStatusDisconnected:
		return next == IntegrationStatusConnecting || next == IntegrationStatusConnected
	case IntegrationStatusConnecting:
		return next == IntegrationStatusConnected ||
			next == IntegrationStatusError ||
			next == IntegrationStatusDisconnected
	case IntegrationStatusConnected:
		return next == IntegrationStatusError ||
			next == IntegrationStatusExpired ||
			next == IntegrationStatusDisconnected
	case IntegrationStatusError:
		return next != ""
	case IntegrationStatusExpired:
		return next == IntegrationStatusConnecting ||
			next == IntegrationStatusConnected ||
			next == IntegrationStatusDisconnected
	default:
		return false
	}
}

// Integration is the single connection record for an organization and provider.
// Secret material is only ever held in its encrypted form.
type Integration struct {
	ID                    string
	OrganizationID        string
	Provider              Provider
	Status                IntegrationStatus
	AccessTokenEncrypted  string
	RefreshTokenEncrypted string
	TokenExpiresAt        *time.Time
	CredentialsEncrypted  string
	ExternalAccountID     string
	LastSyncAt            *time.Time
	LastSyncStatus        string
	LastSyncMessage       string
	LastError             string
	LastErrorAt           *time.Time
	ErrorCount            int
	Version               int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (i Integration) Key() IntegrationKey {
	return IntegrationKey{OrganizationID: i.OrganizationID, Provider: i.Provider}
}

func (i *Integration) TransitionTo(next IntegrationStatus, now time.Time) error {
	if i == nil {
		return nil
	}
	if !next.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidIntegrationStatusTransition, next)
	}
	if !i.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidIntegrationStatusTransition, i.Status, next)
	}
	i.Status = next
	i.UpdatedAt = now
	return nil
}

// ApplySyncOutcome folds a terminal sync result into the last-sync bookkeeping.
func (i *Integration) ApplySyncOutcome(outcome SyncOutcome) {
	if i == nil {
		return
	}
	at := outcome.At.UTC()
	i.LastSyncAt = &at
	i.LastSyncStatus = string(outcome.Status)
	i.LastSyncMessage = outcome.Message
	if outcome.Status == SyncStatusSuccess {
		i.ErrorCount = 0
		i.LastError = ""
		i.LastErrorAt = nil
	} else {
		i.ErrorCount++
		i.LastError = outcome.Message
		i.LastErrorAt = &at
	}
	i.UpdatedAt = at
}

type IntegrationKey struct {
	OrganizationID string
	Provider       Provider
}

func (k IntegrationKey) Validate() error {
	if strings.TrimSpace(k.OrganizationID) == "" {
		return fmt.Errorf("core: organization id is required")
	}
	if strings.TrimSpace(string(k.Provider)) == "" {
		return fmt.Errorf("core: provider is required")
	}
	return nil
}

func (k IntegrationKey) String() string {
	return strings.TrimSpace(k.OrganizationID) + ":" + string(NormalizeProvider(string(k.Provider)))
}

// Normalize trims the organization id and lowercases the provider.
func (k IntegrationKey) Normalize() IntegrationKey {
	return IntegrationKey{
		OrganizationID: strings.TrimSpace(k.OrganizationID),
		Provider:       NormalizeProvider(string(k.Provider)),
	}
}

type SyncDirection string

const (
	SyncDirectionPush    SyncDirection = "push"
	SyncDirectionPull    SyncDirection = "pull"
	SyncDirectionWebhook SyncDirection = "webhook"
)

func (d SyncDirection) Valid() bool {
	return d == SyncDirectionPush || d == SyncDirectionPull || d == SyncDirectionWebhook
}

type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusRunning SyncStatus = "running"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusError   SyncStatus = "error"
)

func (s SyncStatus) Terminal() bool {
	return s == SyncStatusSuccess || s == SyncStatusError
}

type SyncTrigger string

const (
	SyncTriggerManual   SyncTrigger = "manual"
	SyncTriggerAuto     SyncTrigger = "auto"
	SyncTriggerWebhook  SyncTrigger = "webhook"
	SyncTriggerSchedule SyncTrigger = "schedule"
)

func (t SyncTrigger) Valid() bool {
	switch t {
	case SyncTriggerManual, SyncTriggerAuto, SyncTriggerWebhook, SyncTriggerSchedule:
		return true
	default:
		return false
	}
}

// SyncLogEntry is one audited sync attempt. It is created running and
// finalized exactly once.
type SyncLogEntry struct {
	ID              string
	IntegrationID   string
	OrganizationID  string
	Provider        Provider
	Operation       string
	Direction       SyncDirection
	Status          SyncStatus
	EntityType      string
	EntityID        string
	ExternalID      string
	RequestSummary  map[string]any
	ResponseSummary map[string]any
	ErrorCode       string
	ErrorMessage    string
	Trigger         SyncTrigger
	StartedAt       time.Time
	CompletedAt     *time.Time
	DurationMS      int64
}

type SyncOutcome struct {
	Status  SyncStatus
	Message string
	At      time.Time
}
