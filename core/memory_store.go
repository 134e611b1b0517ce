package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryIntegrationStore is an in-process IntegrationStore for tests and
// single-node tooling.
type MemoryIntegrationStore struct {
	mu    sync.Mutex
	byID  map[string]Integration
	byKey map[string]string
	now   func() time.Time
}

func NewMemoryIntegrationStore() *MemoryIntegrationStore {
	return &MemoryIntegrationStore{
		byID:  map[string]Integration{},
		byKey: map[string]string{},
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryIntegrationStore) Upsert(_ context.Context, in UpsertIntegrationInput) (Integration, error) {
	key := IntegrationKey{OrganizationID: in.OrganizationID, Provider: in.Provider}
	if err := key.Validate(); err != nil {
		return Integration{}, err
	}
	status := in.Status
	if status == "" {
		status = IntegrationStatusConnected
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	rec := Integration{
		ID:             uuid.NewString(),
		OrganizationID: strings.TrimSpace(in.OrganizationID),
		Provider:       NormalizeProvider(string(in.Provider)),
		CreatedAt:      now,
	}
	if id, ok := s.byKey[key.String()]; ok {
		rec = s.byID[id]
	}
	rec.Status = status
	rec.AccessTokenEncrypted = in.AccessTokenEncrypted
	rec.RefreshTokenEncrypted = in.RefreshTokenEncrypted
	rec.TokenExpiresAt = cloneTime(in.TokenExpiresAt)
	rec.CredentialsEncrypted = in.CredentialsEncrypted
	rec.ExternalAccountID = strings.TrimSpace(in.ExternalAccountID)
	rec.Version++
	rec.UpdatedAt = now
	s.byID[rec.ID] = rec
	s.byKey[key.String()] = rec.ID
	return rec, nil
}

func (s *MemoryIntegrationStore) Get(_ context.Context, key IntegrationKey) (Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[key.String()]
	if !ok {
		return Integration{}, fmt.Errorf("%w: %s", ErrIntegrationNotFound, key.String())
	}
	return s.byID[id], nil
}

func (s *MemoryIntegrationStore) GetByID(_ context.Context, id string) (Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Integration{}, fmt.Errorf("%w: %s", ErrIntegrationNotFound, id)
	}
	return rec, nil
}

func (s *MemoryIntegrationStore) ListByOrganization(_ context.Context, organizationID string) ([]Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Integration, 0)
	for _, rec := range s.byID {
		if rec.OrganizationID == strings.TrimSpace(organizationID) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (s *MemoryIntegrationStore) UpdateTokens(_ context.Context, id string, expectedVersion int64, update TokenUpdate) (Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Integration{}, fmt.Errorf("%w: %s", ErrIntegrationNotFound, id)
	}
	if rec.Version != expectedVersion {
		return Integration{}, fmt.Errorf("%w: expected %d, stored %d", ErrTokenVersionConflict, expectedVersion, rec.Version)
	}
	rec.AccessTokenEncrypted = update.AccessTokenEncrypted
	rec.RefreshTokenEncrypted = update.RefreshTokenEncrypted
	rec.TokenExpiresAt = cloneTime(update.TokenExpiresAt)
	rec.Status = IntegrationStatusConnected
	rec.Version++
	rec.UpdatedAt = s.now()
	s.byID[rec.ID] = rec
	return rec, nil
}

func (s *MemoryIntegrationStore) UpdateStatus(_ context.Context, id string, status IntegrationStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrIntegrationNotFound, id)
	}
	now := s.now()
	if err := rec.TransitionTo(status, now); err != nil {
		return err
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		rec.LastError = reason
		rec.LastErrorAt = &now
	}
	s.byID[rec.ID] = rec
	return nil
}

func (s *MemoryIntegrationStore) RecordSyncOutcome(_ context.Context, id string, outcome SyncOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrIntegrationNotFound, id)
	}
	rec.ApplySyncOutcome(outcome)
	s.byID[rec.ID] = rec
	return nil
}

func (s *MemoryIntegrationStore) ClearSecrets(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrIntegrationNotFound, id)
	}
	rec.AccessTokenEncrypted = ""
	rec.RefreshTokenEncrypted = ""
	rec.CredentialsEncrypted = ""
	rec.TokenExpiresAt = nil
	rec.Version++
	rec.UpdatedAt = s.now()
	s.byID[rec.ID] = rec
	return nil
}

// MemorySyncLogStore keeps sync logs in memory with the same write-once
// semantics as the SQL store.
type MemorySyncLogStore struct {
	mu      sync.Mutex
	entries map[string]SyncLogEntry
	order   []string
}

func NewMemorySyncLogStore() *MemorySyncLogStore {
	return &MemorySyncLogStore{entries: map[string]SyncLogEntry{}}
}

func (s *MemorySyncLogStore) Create(_ context.Context, in CreateSyncLogInput) (SyncLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := SyncLogEntry{
		ID:             uuid.NewString(),
		IntegrationID:  in.IntegrationID,
		OrganizationID: in.OrganizationID,
		Provider:       in.Provider,
		Operation:      in.Operation,
		Direction:      in.Direction,
		Status:         SyncStatusRunning,
		EntityType:     in.EntityType,
		EntityID:       in.EntityID,
		RequestSummary: cloneFields(in.RequestSummary),
		Trigger:        in.Trigger,
		StartedAt:      in.StartedAt,
	}
	s.entries[entry.ID] = entry
	s.order = append(s.order, entry.ID)
	return entry, nil
}

func (s *MemorySyncLogStore) Get(_ context.Context, id string) (SyncLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[strings.TrimSpace(id)]
	if !ok {
		return SyncLogEntry{}, fmt.Errorf("%w: %s", ErrSyncLogNotFound, id)
	}
	return entry, nil
}

func (s *MemorySyncLogStore) Complete(_ context.Context, id string, in CompleteSyncLogInput) (SyncLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[strings.TrimSpace(id)]
	if !ok {
		return SyncLogEntry{}, fmt.Errorf("%w: %s", ErrSyncLogNotFound, id)
	}
	if entry.Status != SyncStatusRunning {
		return SyncLogEntry{}, fmt.Errorf("%w: %s is %s", ErrSyncLogFinalized, id, entry.Status)
	}
	completedAt := in.CompletedAt
	entry.Status = in.Status
	entry.ExternalID = in.ExternalID
	entry.ResponseSummary = cloneFields(in.ResponseSummary)
	entry.ErrorCode = in.ErrorCode
	entry.ErrorMessage = in.ErrorMessage
	entry.CompletedAt = &completedAt
	entry.DurationMS = completedAt.Sub(entry.StartedAt).Milliseconds()
	s.entries[entry.ID] = entry
	return entry, nil
}

func (s *MemorySyncLogStore) List(_ context.Context, query SyncLogQuery) ([]SyncLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SyncLogEntry, 0)
	for i := len(s.order) - 1; i >= 0; i-- {
		entry := s.entries[s.order[i]]
		if query.IntegrationID != "" && entry.IntegrationID != query.IntegrationID {
			continue
		}
		if query.OrganizationID != "" && entry.OrganizationID != query.OrganizationID {
			continue
		}
		if query.Provider != "" && entry.Provider != query.Provider {
			continue
		}
		if query.Status != "" && entry.Status != query.Status {
			continue
		}
		out = append(out, entry)
	}
	if query.Offset > 0 {
		if query.Offset >= len(out) {
			return []SyncLogEntry{}, nil
		}
		out = out[query.Offset:]
	}
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func (s *MemorySyncLogStore) LatestTerminal(_ context.Context, integrationID string) (SyncLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *SyncLogEntry
	for _, id := range s.order {
		entry := s.entries[id]
		if entry.IntegrationID != integrationID || !entry.Status.Terminal() || entry.CompletedAt == nil {
			continue
		}
		if latest == nil || entry.CompletedAt.After(*latest.CompletedAt) {
			candidate := entry
			latest = &candidate
		}
	}
	if latest == nil {
		return SyncLogEntry{}, fmt.Errorf("%w: no terminal log for %s", ErrSyncLogNotFound, integrationID)
	}
	return *latest, nil
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := value.UTC()
	return &copied
}
