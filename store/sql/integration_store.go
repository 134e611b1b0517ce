package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-integrations/core"
)

type IntegrationStore struct {
	db   *bun.DB
	repo repository.Repository[*integrationRecord]
	now  func() time.Time
}

func NewIntegrationStore(db *bun.DB) (*IntegrationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*integrationRecord](db, integrationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid integration repository wiring: %w", err)
		}
	}
	return &IntegrationStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Upsert keeps exactly one row per (organization_id, provider). A lost
// insert race falls through to the update path on the second pass.
func (s *IntegrationStore) Upsert(ctx context.Context, in core.UpsertIntegrationInput) (core.Integration, error) {
	if s == nil || s.db == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	key := core.IntegrationKey{
		OrganizationID: strings.TrimSpace(in.OrganizationID),
		Provider:       core.NormalizeProvider(string(in.Provider)),
	}
	if err := key.Validate(); err != nil {
		return core.Integration{}, err
	}
	status := in.Status
	if status == "" {
		status = core.IntegrationStatusConnected
	}
	if !status.Valid() {
		return core.Integration{}, fmt.Errorf("%w: unknown status %q", core.ErrInvalidIntegrationStatusTransition, status)
	}

	var out core.Integration
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			now := s.now()
			record, findErr := findIntegrationTx(ctx, tx, key)
			if findErr != nil {
				return findErr
			}
			if record == nil {
				record = &integrationRecord{
					ID:             uuid.NewString(),
					OrganizationID: key.OrganizationID,
					Provider:       string(key.Provider),
					CreatedAt:      now,
				}
				applyUpsert(record, in, status, now)
				record.Version = 1
				if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
					return insertErr
				}
				out = record.toDomain()
				return nil
			}
			applyUpsert(record, in, status, now)
			record.Version++
			if _, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx); updateErr != nil {
				return updateErr
			}
			out = record.toDomain()
			return nil
		})
		if err == nil {
			return out, nil
		}
	}
	return core.Integration{}, err
}

func applyUpsert(record *integrationRecord, in core.UpsertIntegrationInput, status core.IntegrationStatus, now time.Time) {
	record.Status = string(status)
	record.AccessTokenEncrypted = in.AccessTokenEncrypted
	record.RefreshTokenEncrypted = in.RefreshTokenEncrypted
	record.TokenExpiresAt = cloneTime(in.TokenExpiresAt)
	record.CredentialsEncrypted = in.CredentialsEncrypted
	record.ExternalAccountID = strings.TrimSpace(in.ExternalAccountID)
	record.UpdatedAt = now
}

func (s *IntegrationStore) Get(ctx context.Context, key core.IntegrationKey) (core.Integration, error) {
	if s == nil || s.db == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	key.Provider = core.NormalizeProvider(string(key.Provider))
	record, err := findIntegrationTx(ctx, s.db, key)
	if err != nil {
		return core.Integration{}, err
	}
	if record == nil {
		return core.Integration{}, fmt.Errorf("%w: %s", core.ErrIntegrationNotFound, key.String())
	}
	return record.toDomain(), nil
}

func (s *IntegrationStore) GetByID(ctx context.Context, id string) (core.Integration, error) {
	if s == nil || s.db == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	record, err := getIntegrationByID(ctx, s.db, id)
	if err != nil {
		return core.Integration{}, err
	}
	return record.toDomain(), nil
}

func (s *IntegrationStore) ListByOrganization(ctx context.Context, organizationID string) ([]core.Integration, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: integration store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("organization_id", "=", strings.TrimSpace(organizationID)),
		repository.OrderBy("provider ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Integration, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// UpdateTokens is a compare-and-swap on the version column.
func (s *IntegrationStore) UpdateTokens(
	ctx context.Context,
	id string,
	expectedVersion int64,
	update core.TokenUpdate,
) (core.Integration, error) {
	if s == nil || s.db == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	id = strings.TrimSpace(id)
	res, err := s.db.NewUpdate().
		Model((*integrationRecord)(nil)).
		Set("access_token_encrypted = ?", update.AccessTokenEncrypted).
		Set("refresh_token_encrypted = ?", update.RefreshTokenEncrypted).
		Set("token_expires_at = ?", cloneTime(update.TokenExpiresAt)).
		Set("status = ?", string(core.IntegrationStatusConnected)).
		Set("version = version + 1").
		Set("updated_at = ?", s.now()).
		Where("id = ?", id).
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		return core.Integration{}, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		current, getErr := getIntegrationByID(ctx, s.db, id)
		if getErr != nil {
			return core.Integration{}, getErr
		}
		return core.Integration{}, fmt.Errorf("%w: expected %d, stored %d", core.ErrTokenVersionConflict, expectedVersion, current.Version)
	}
	return s.GetByID(ctx, id)
}

func (s *IntegrationStore) UpdateStatus(ctx context.Context, id string, status core.IntegrationStatus, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: integration store is not configured")
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := getIntegrationByID(ctx, tx, id)
		if err != nil {
			return err
		}
		now := s.now()
		candidate := record.toDomain()
		if err := candidate.TransitionTo(status, now); err != nil {
			return err
		}
		query := tx.NewUpdate().
			Model((*integrationRecord)(nil)).
			Set("status = ?", string(status)).
			Set("updated_at = ?", now).
			Where("id = ?", record.ID)
		if reason = strings.TrimSpace(reason); reason != "" {
			query = query.Set("last_error = ?", reason).Set("last_error_at = ?", now)
		}
		_, err = query.Exec(ctx)
		return err
	})
}

// RecordSyncOutcome applies the rollup in one statement so concurrent
// failures never lose an increment.
func (s *IntegrationStore) RecordSyncOutcome(ctx context.Context, id string, outcome core.SyncOutcome) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: integration store is not configured")
	}
	at := outcome.At.UTC()
	query := s.db.NewUpdate().
		Model((*integrationRecord)(nil)).
		Set("last_sync_at = ?", at).
		Set("last_sync_status = ?", string(outcome.Status)).
		Set("last_sync_message = ?", outcome.Message).
		Set("updated_at = ?", at).
		Where("id = ?", strings.TrimSpace(id))
	if outcome.Status == core.SyncStatusSuccess {
		query = query.
			Set("error_count = 0").
			Set("last_error = ''").
			Set("last_error_at = NULL")
	} else {
		query = query.
			Set("error_count = error_count + 1").
			Set("last_error = ?", outcome.Message).
			Set("last_error_at = ?", at)
	}
	res, err := query.Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrIntegrationNotFound, id)
	}
	return nil
}

func (s *IntegrationStore) ClearSecrets(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: integration store is not configured")
	}
	res, err := s.db.NewUpdate().
		Model((*integrationRecord)(nil)).
		Set("access_token_encrypted = ''").
		Set("refresh_token_encrypted = ''").
		Set("credentials_encrypted = ''").
		Set("token_expires_at = NULL").
		Set("version = version + 1").
		Set("updated_at = ?", s.now()).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrIntegrationNotFound, id)
	}
	return nil
}

func findIntegrationTx(ctx context.Context, db bun.IDB, key core.IntegrationKey) (*integrationRecord, error) {
	record := &integrationRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.organization_id = ?", strings.TrimSpace(key.OrganizationID)).
		Where("?TableAlias.provider = ?", string(key.Provider)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func getIntegrationByID(ctx context.Context, db bun.IDB, id string) (*integrationRecord, error) {
	record := &integrationRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", core.ErrIntegrationNotFound, id)
		}
		return nil, err
	}
	return record, nil
}

var _ core.IntegrationStore = (*IntegrationStore)(nil)
