package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type StartSyncParams struct {
	IntegrationID  string
	OrganizationID string
	Provider       Provider
	Operation      string
	Direction      SyncDirection
	EntityType     string
	EntityID       string
	RequestSummary map[string]any
	Trigger        SyncTrigger
}

func (p StartSyncParams) Validate() error {
	if strings.TrimSpace(p.IntegrationID) == "" {
		return fmt.Errorf("core: integration id is required")
	}
	if strings.TrimSpace(p.Operation) == "" {
		return fmt.Errorf("core: sync operation is required")
	}
	if !p.Direction.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSyncDirection, p.Direction)
	}
	if p.Trigger != "" && !p.Trigger.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSyncTrigger, p.Trigger)
	}
	return nil
}

type SyncUpdate struct {
	Status          SyncStatus
	ExternalID      string
	ResponseSummary map[string]any
	ErrorCode       string
	ErrorMessage    string
}

type SyncLoggerDependencies struct {
	Logs            SyncLogStore
	Integrations    IntegrationStore
	Logger          Logger
	MetricsRecorder MetricsRecorder
	Now             func() time.Time
}

// SyncLogger records the lifecycle of sync operations and rolls each
// terminal outcome into the owning integration.
type SyncLogger struct {
	logs         SyncLogStore
	integrations IntegrationStore
	observer     observer
}

func NewSyncLogger(deps SyncLoggerDependencies) (*SyncLogger, error) {
	if deps.Logs == nil {
		return nil, fmt.Errorf("core: sync log store is required")
	}
	return &SyncLogger{
		logs:         deps.Logs,
		integrations: deps.Integrations,
		observer: observer{
			logger:  deps.Logger,
			metrics: deps.MetricsRecorder,
			now:     deps.Now,
		},
	}, nil
}

func (l *SyncLogger) Start(ctx context.Context, params StartSyncParams) (string, error) {
	if l == nil || l.logs == nil {
		return "", fmt.Errorf("core: sync logger is not configured")
	}
	if err := params.Validate(); err != nil {
		return "", err
	}
	trigger := params.Trigger
	if trigger == "" {
		trigger = SyncTriggerManual
	}
	entry, err := l.logs.Create(ctx, CreateSyncLogInput{
		IntegrationID:  strings.TrimSpace(params.IntegrationID),
		OrganizationID: strings.TrimSpace(params.OrganizationID),
		Provider:       NormalizeProvider(string(params.Provider)),
		Operation:      strings.TrimSpace(params.Operation),
		Direction:      params.Direction,
		EntityType:     strings.TrimSpace(params.EntityType),
		EntityID:       strings.TrimSpace(params.EntityID),
		RequestSummary: RedactFields(params.RequestSummary),
		Trigger:        trigger,
		StartedAt:      l.observer.clock(),
	})
	if err != nil {
		return "", err
	}
	return entry.ID, nil
}

// Update performs the single terminal write for a log. A second call returns
// ErrSyncLogFinalized and changes nothing.
func (l *SyncLogger) Update(ctx context.Context, logID string, update SyncUpdate) (SyncLogEntry, error) {
	if l == nil || l.logs == nil {
		return SyncLogEntry{}, fmt.Errorf("core: sync logger is not configured")
	}
	logID = strings.TrimSpace(logID)
	if logID == "" {
		return SyncLogEntry{}, fmt.Errorf("core: sync log id is required")
	}
	if !update.Status.Terminal() {
		return SyncLogEntry{}, fmt.Errorf("%w: %q is not terminal", ErrInvalidSyncStatus, update.Status)
	}

	entry, err := l.logs.Complete(ctx, logID, CompleteSyncLogInput{
		Status:          update.Status,
		ExternalID:      strings.TrimSpace(update.ExternalID),
		ResponseSummary: RedactFields(update.ResponseSummary),
		ErrorCode:       strings.TrimSpace(update.ErrorCode),
		ErrorMessage:    strings.TrimSpace(update.ErrorMessage),
		CompletedAt:     l.observer.clock(),
	})
	if err != nil {
		return SyncLogEntry{}, err
	}

	fields := map[string]any{
		"sync_log_id":     entry.ID,
		"integration_id":  entry.IntegrationID,
		"organization_id": entry.OrganizationID,
		"provider":        string(entry.Provider),
		"operation":       entry.Operation,
		"direction":       string(entry.Direction),
		"trigger":         string(entry.Trigger),
	}
	var outcomeErr error
	if entry.Status == SyncStatusError {
		outcomeErr = fmt.Errorf("%s: %s", entry.ErrorCode, entry.ErrorMessage)
	}
	l.observer.observeOperation(ctx, entry.StartedAt, "sync."+entry.Operation, outcomeErr, fields)

	if err := l.rollup(ctx, entry); err != nil {
		fields["error"] = err.Error()
		l.observer.warn(ctx, "sync outcome rollup failed", fields)
	}
	return entry, nil
}

func (l *SyncLogger) Success(ctx context.Context, logID string, summary map[string]any, externalID string) (SyncLogEntry, error) {
	return l.Update(ctx, logID, SyncUpdate{
		Status:          SyncStatusSuccess,
		ExternalID:      externalID,
		ResponseSummary: summary,
	})
}

func (l *SyncLogger) Error(ctx context.Context, logID string, code string, message string, summary map[string]any) (SyncLogEntry, error) {
	return l.Update(ctx, logID, SyncUpdate{
		Status:          SyncStatusError,
		ErrorCode:       code,
		ErrorMessage:    message,
		ResponseSummary: summary,
	})
}

// Reconcile reapplies the latest terminal log to the integration, repairing a
// rollup lost between the log write and the integration write.
func (l *SyncLogger) Reconcile(ctx context.Context, integrationID string) error {
	if l == nil || l.logs == nil {
		return fmt.Errorf("core: sync logger is not configured")
	}
	entry, err := l.logs.LatestTerminal(ctx, strings.TrimSpace(integrationID))
	if err != nil {
		if errors.Is(err, ErrSyncLogNotFound) {
			return nil
		}
		return err
	}
	if l.integrations == nil {
		return nil
	}
	current, err := l.integrations.GetByID(ctx, entry.IntegrationID)
	if err != nil {
		return err
	}
	if current.LastSyncAt != nil && entry.CompletedAt != nil && !current.LastSyncAt.Before(*entry.CompletedAt) {
		return nil
	}
	return l.rollup(ctx, entry)
}

func (l *SyncLogger) rollup(ctx context.Context, entry SyncLogEntry) error {
	if l.integrations == nil || strings.TrimSpace(entry.IntegrationID) == "" {
		return nil
	}
	at := l.observer.clock()
	if entry.CompletedAt != nil {
		at = *entry.CompletedAt
	}
	return l.integrations.RecordSyncOutcome(ctx, entry.IntegrationID, SyncOutcome{
		Status:  entry.Status,
		Message: outcomeMessage(entry),
		At:      at,
	})
}

func outcomeMessage(entry SyncLogEntry) string {
	if entry.Status == SyncStatusSuccess {
		return entry.Operation + " completed"
	}
	message := strings.TrimSpace(entry.ErrorMessage)
	if message == "" {
		message = entry.Operation + " failed"
	}
	if code := strings.TrimSpace(entry.ErrorCode); code != "" {
		return code + ": " + message
	}
	return message
}
