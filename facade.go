package integrations

import (
	"fmt"

	"github.com/goliatone/go-integrations/adapters/gocommand"
	integrationcommand "github.com/goliatone/go-integrations/command"
	integrationquery "github.com/goliatone/go-integrations/query"
)

type CommandQueryService = gocommand.Service

type Commands struct {
	ConnectAPIKey     *integrationcommand.ConnectAPIKeyCommand
	BeginOAuth        *integrationcommand.BeginOAuthCommand
	CompleteOAuth     *integrationcommand.CompleteOAuthCommand
	Disconnect        *integrationcommand.DisconnectCommand
	RefreshCredential *integrationcommand.RefreshCredentialCommand
	ReconcileSync     *integrationcommand.ReconcileSyncCommand
}

type Queries struct {
	GetIntegration   *integrationquery.GetIntegrationQuery
	ListIntegrations *integrationquery.ListIntegrationsQuery
	ListSyncLogs     *integrationquery.ListSyncLogsQuery
}

// Facade groups the command and query handlers built over one service.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService, reconciler integrationcommand.SyncReconciler) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("integrations: command/query service is required")
	}
	if reconciler == nil {
		if candidate, ok := service.(integrationcommand.SyncReconciler); ok {
			reconciler = candidate
		}
	}
	handlers := gocommand.NewHandlers(service, reconciler)
	return &Facade{
		service: service,
		commands: Commands{
			ConnectAPIKey:     handlers.ConnectAPIKey,
			BeginOAuth:        handlers.BeginOAuth,
			CompleteOAuth:     handlers.CompleteOAuth,
			Disconnect:        handlers.Disconnect,
			RefreshCredential: handlers.RefreshCredential,
			ReconcileSync:     handlers.ReconcileSync,
		},
		queries: Queries{
			GetIntegration:   handlers.GetIntegration,
			ListIntegrations: handlers.ListIntegrations,
			ListSyncLogs:     handlers.ListSyncLogs,
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// Handlers returns the handler set in the shape the go-command adapter
// registers.
func (f *Facade) Handlers() gocommand.Handlers {
	if f == nil {
		return gocommand.Handlers{}
	}
	return gocommand.Handlers{
		ConnectAPIKey:     f.commands.ConnectAPIKey,
		BeginOAuth:        f.commands.BeginOAuth,
		CompleteOAuth:     f.commands.CompleteOAuth,
		Disconnect:        f.commands.Disconnect,
		RefreshCredential: f.commands.RefreshCredential,
		ReconcileSync:     f.commands.ReconcileSync,
		GetIntegration:    f.queries.GetIntegration,
		ListIntegrations:  f.queries.ListIntegrations,
		ListSyncLogs:      f.queries.ListSyncLogs,
	}
}
