package query

import (
	"context"

	"github.com/goliatone/go-integrations/core"
)

type IntegrationReader interface {
	GetIntegration(ctx context.Context, key core.IntegrationKey) (core.Integration, error)
	ListIntegrations(ctx context.Context, organizationID string) ([]core.Integration, error)
}

type SyncLogReader interface {
	ListSyncLogs(ctx context.Context, query core.SyncLogQuery) ([]core.SyncLogEntry, error)
}

type GetIntegrationQuery struct {
	reader IntegrationReader
}

func NewGetIntegrationQuery(reader IntegrationReader) *GetIntegrationQuery {
	return &GetIntegrationQuery{reader: reader}
}

func (q *GetIntegrationQuery) Query(ctx context.Context, msg GetIntegrationMessage) (IntegrationView, error) {
	if q == nil || q.reader == nil {
		return IntegrationView{}, queryDependencyError("query: integration reader is required")
	}
	if err := msg.Validate(); err != nil {
		return IntegrationView{}, err
	}
	rec, err := q.reader.GetIntegration(ctx, msg.Key)
	if err != nil {
		return IntegrationView{}, err
	}
	return NewIntegrationView(rec), nil
}

type ListIntegrationsQuery struct {
	reader IntegrationReader
}

func NewListIntegrationsQuery(reader IntegrationReader) *ListIntegrationsQuery {
	return &ListIntegrationsQuery{reader: reader}
}

func (q *ListIntegrationsQuery) Query(ctx context.Context, msg ListIntegrationsMessage) ([]IntegrationView, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: integration reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	records, err := q.reader.ListIntegrations(ctx, msg.OrganizationID)
	if err != nil {
		return nil, err
	}
	out := make([]IntegrationView, 0, len(records))
	for _, rec := range records {
		out = append(out, NewIntegrationView(rec))
	}
	return out, nil
}

type ListSyncLogsQuery struct {
	reader SyncLogReader
}

func NewListSyncLogsQuery(reader SyncLogReader) *ListSyncLogsQuery {
	return &ListSyncLogsQuery{reader: reader}
}

func (q *ListSyncLogsQuery) Query(ctx context.Context, msg ListSyncLogsMessage) ([]core.SyncLogEntry, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: sync log reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.reader.ListSyncLogs(ctx, msg.Query)
}
