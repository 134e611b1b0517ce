package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-integrations/core"
)

type SyncLogStore struct {
	db   *bun.DB
	repo repository.Repository[*syncLogRecord]
}

func NewSyncLogStore(db *bun.DB) (*SyncLogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*syncLogRecord](db, syncLogHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid sync log repository wiring: %w", err)
		}
	}
	return &SyncLogStore{db: db, repo: repo}, nil
}

func (s *SyncLogStore) Create(ctx context.Context, in core.CreateSyncLogInput) (core.SyncLogEntry, error) {
	if s == nil || s.repo == nil {
		return core.SyncLogEntry{}, fmt.Errorf("sqlstore: sync log store is not configured")
	}
	record := newSyncLogRecord(in)
	record.ID = uuid.NewString()
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.SyncLogEntry{}, err
	}
	return created.toDomain(), nil
}

func (s *SyncLogStore) Get(ctx context.Context, id string) (core.SyncLogEntry, error) {
	if s == nil || s.db == nil {
		return core.SyncLogEntry{}, fmt.Errorf("sqlstore: sync log store is not configured")
	}
	record, err := getSyncLogByID(ctx, s.db, id)
	if err != nil {
		return core.SyncLogEntry{}, err
	}
	return record.toDomain(), nil
}

// Complete finalizes a running entry. The status guard in the UPDATE makes
// a concurrent second completion observe zero affected rows.
func (s *SyncLogStore) Complete(ctx context.Context, id string, in core.CompleteSyncLogInput) (core.SyncLogEntry, error) {
	if s == nil || s.db == nil {
		return core.SyncLogEntry{}, fmt.Errorf("sqlstore: sync log store is not configured")
	}
	var out core.SyncLogEntry
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := getSyncLogByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if record.Status != string(core.SyncStatusRunning) {
			return fmt.Errorf("%w: %s is %s", core.ErrSyncLogFinalized, record.ID, record.Status)
		}
		completedAt := in.CompletedAt.UTC()
		record.Status = string(in.Status)
		record.ExternalID = in.ExternalID
		record.ResponseSummary = copyAnyMap(in.ResponseSummary)
		record.ErrorCode = in.ErrorCode
		record.ErrorMessage = in.ErrorMessage
		record.CompletedAt = &completedAt
		record.DurationMS = completedAt.Sub(record.StartedAt).Milliseconds()

		res, err := tx.NewUpdate().
			Model(record).
			Column("status", "external_id", "response_summary", "error_code", "error_message", "completed_at", "duration_ms").
			Where("id = ?", record.ID).
			Where("status = ?", string(core.SyncStatusRunning)).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return fmt.Errorf("%w: %s", core.ErrSyncLogFinalized, record.ID)
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.SyncLogEntry{}, err
	}
	return out, nil
}

func (s *SyncLogStore) List(ctx context.Context, query core.SyncLogQuery) ([]core.SyncLogEntry, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: sync log store is not configured")
	}
	criteria := []repository.SelectCriteria{
		repository.OrderBy("started_at DESC"),
	}
	if id := strings.TrimSpace(query.IntegrationID); id != "" {
		criteria = append(criteria, repository.SelectBy("integration_id", "=", id))
	}
	if org := strings.TrimSpace(query.OrganizationID); org != "" {
		criteria = append(criteria, repository.SelectBy("organization_id", "=", org))
	}
	if provider := core.NormalizeProvider(string(query.Provider)); provider != "" {
		criteria = append(criteria, repository.SelectBy("provider", "=", string(provider)))
	}
	if query.Status != "" {
		criteria = append(criteria, repository.SelectBy("status", "=", string(query.Status)))
	}
	if query.Limit > 0 {
		criteria = append(criteria, repository.SelectPaginate(query.Limit, max(query.Offset, 0)))
	} else if query.Offset > 0 {
		offset := query.Offset
		criteria = append(criteria, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Offset(offset)
		}))
	}
	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	out := make([]core.SyncLogEntry, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *SyncLogStore) LatestTerminal(ctx context.Context, integrationID string) (core.SyncLogEntry, error) {
	if s == nil || s.db == nil {
		return core.SyncLogEntry{}, fmt.Errorf("sqlstore: sync log store is not configured")
	}
	record := &syncLogRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.integration_id = ?", strings.TrimSpace(integrationID)).
		Where("?TableAlias.status IN (?)", bun.In([]string{string(core.SyncStatusSuccess), string(core.SyncStatusError)})).
		Where("?TableAlias.completed_at IS NOT NULL").
		OrderExpr("?TableAlias.completed_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.SyncLogEntry{}, fmt.Errorf("%w: no terminal log for %s", core.ErrSyncLogNotFound, integrationID)
		}
		return core.SyncLogEntry{}, err
	}
	return record.toDomain(), nil
}

func getSyncLogByID(ctx context.Context, db bun.IDB, id string) (*syncLogRecord, error) {
	record := &syncLogRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", core.ErrSyncLogNotFound, id)
		}
		return nil, err
	}
	return record, nil
}

var _ core.SyncLogStore = (*SyncLogStore)(nil)
