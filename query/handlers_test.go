package query

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/security"
)

func newQueryService(t *testing.T) *core.Service {
	t.Helper()
	cipher, err := security.NewCipher("query-test-key", security.WithIterations(1000))
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	svc, err := core.NewService(core.Config{},
		core.WithCipher(cipher),
		core.WithIntegrationStore(core.NewMemoryIntegrationStore()),
		core.WithSyncLogStore(core.NewMemorySyncLogStore()),
	)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc
}

func TestGetIntegrationQuery_ReturnsViewWithoutSecrets(t *testing.T) {
	ctx := context.Background()
	svc := newQueryService(t)
	if _, err := svc.ConnectAPIKey(ctx, core.ConnectAPIKeyRequest{
		OrganizationID:    "org_1",
		Provider:          "highway",
		Credentials:       map[string]any{"api_key": "hw-secret"},
		ExternalAccountID: "acct_9",
	}); err != nil {
		t.Fatalf("connect: %v", err)
	}

	view, err := NewGetIntegrationQuery(svc).Query(ctx, GetIntegrationMessage{
		Key: core.IntegrationKey{OrganizationID: "org_1", Provider: "Highway"},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !view.Connected || !view.HasCredentials || view.ExternalAccountID != "acct_9" {
		t.Fatalf("unexpected view %#v", view)
	}
}

func TestGetIntegrationQuery_NotFound(t *testing.T) {
	_, err := NewGetIntegrationQuery(newQueryService(t)).Query(context.Background(), GetIntegrationMessage{
		Key: core.IntegrationKey{OrganizationID: "org_1", Provider: "dat"},
	})
	if !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListIntegrationsQuery_ListsOrganization(t *testing.T) {
	ctx := context.Background()
	svc := newQueryService(t)
	for _, provider := range []core.Provider{"dat", "highway"} {
		if _, err := svc.ConnectAPIKey(ctx, core.ConnectAPIKeyRequest{
			OrganizationID: "org_1",
			Provider:       provider,
			Credentials:    map[string]any{"api_key": "k"},
		}); err != nil {
			t.Fatalf("connect %s: %v", provider, err)
		}
	}
	views, err := NewListIntegrationsQuery(svc).Query(ctx, ListIntegrationsMessage{OrganizationID: "org_1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 integrations, got %d", len(views))
	}
}

func TestListSyncLogsQuery_FiltersByIntegration(t *testing.T) {
	ctx := context.Background()
	svc := newQueryService(t)
	rec, err := svc.ConnectAPIKey(ctx, core.ConnectAPIKeyRequest{
		OrganizationID: "org_1",
		Provider:       "dat",
		Credentials:    map[string]any{"api_key": "k"},
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	logID, err := svc.SyncLogger().Start(ctx, core.StartSyncParams{
		IntegrationID:  rec.ID,
		OrganizationID: rec.OrganizationID,
		Provider:       rec.Provider,
		Operation:      "post_load",
		Direction:      core.SyncDirectionPush,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.SyncLogger().Error(ctx, logID, "HTTP_422", "missing origin", nil); err != nil {
		t.Fatalf("error: %v", err)
	}

	entries, err := NewListSyncLogsQuery(svc).Query(ctx, ListSyncLogsMessage{
		Query: core.SyncLogQuery{IntegrationID: rec.ID, Limit: 10},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 1 || entries[0].ErrorCode != "HTTP_422" {
		t.Fatalf("unexpected entries %#v", entries)
	}
}

func TestListSyncLogsMessage_Validate(t *testing.T) {
	cases := []ListSyncLogsMessage{
		{},
		{Query: core.SyncLogQuery{IntegrationID: "int_1", Limit: -1}},
		{Query: core.SyncLogQuery{IntegrationID: "int_1", Limit: 501}},
		{Query: core.SyncLogQuery{OrganizationID: "org_1", Offset: -2}},
	}
	for i, msg := range cases {
		err := msg.Validate()
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) || rich.TextCode != core.ErrorBadInput {
			t.Fatalf("case %d: expected bad input error, got %v", i, err)
		}
	}
	if err := (ListSyncLogsMessage{Query: core.SyncLogQuery{OrganizationID: "org_1", Limit: 50}}).Validate(); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
}

func TestQueries_NilReaderReturnsRichError(t *testing.T) {
	var q *ListSyncLogsQuery
	_, err := q.Query(context.Background(), ListSyncLogsMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal error envelope, got %v", err)
	}
}
