package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"

	integrationcommand "github.com/goliatone/go-integrations/command"
	"github.com/goliatone/go-integrations/core"
	integrationquery "github.com/goliatone/go-integrations/query"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) Register(handler any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(handler)
}

// AddQueueResolver mirrors registered commands into a go-job queue registry
// so they can also run from a worker.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

// Subscriptions tracks dispatcher subscriptions so a runtime can detach its
// handlers on shutdown.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, sub := range s {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}

func registerCommand[T any](
	adapter *RegistryAdapter,
	subs *Subscriptions,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) error {
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.Register(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return err
	}
	*subs = append(*subs, subscription)
	return nil
}

func registerQuery[T any, R any](
	adapter *RegistryAdapter,
	subs *Subscriptions,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) error {
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := adapter.Register(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return err
	}
	*subs = append(*subs, subscription)
	return nil
}

// Service is everything the integration handlers call.
type Service interface {
	integrationcommand.MutatingService
	integrationquery.IntegrationReader
	integrationquery.SyncLogReader
}

// Handlers is the full set of integration commands and queries.
type Handlers struct {
	ConnectAPIKey     *integrationcommand.ConnectAPIKeyCommand
	BeginOAuth        *integrationcommand.BeginOAuthCommand
	CompleteOAuth     *integrationcommand.CompleteOAuthCommand
	Disconnect        *integrationcommand.DisconnectCommand
	RefreshCredential *integrationcommand.RefreshCredentialCommand
	ReconcileSync     *integrationcommand.ReconcileSyncCommand

	GetIntegration   *integrationquery.GetIntegrationQuery
	ListIntegrations *integrationquery.ListIntegrationsQuery
	ListSyncLogs     *integrationquery.ListSyncLogsQuery
}

func NewHandlers(service Service, reconciler integrationcommand.SyncReconciler) Handlers {
	return Handlers{
		ConnectAPIKey:     integrationcommand.NewConnectAPIKeyCommand(service),
		BeginOAuth:        integrationcommand.NewBeginOAuthCommand(service),
		CompleteOAuth:     integrationcommand.NewCompleteOAuthCommand(service),
		Disconnect:        integrationcommand.NewDisconnectCommand(service),
		RefreshCredential: integrationcommand.NewRefreshCredentialCommand(service),
		ReconcileSync:     integrationcommand.NewReconcileSyncCommand(reconciler),
		GetIntegration:    integrationquery.NewGetIntegrationQuery(service),
		ListIntegrations:  integrationquery.NewListIntegrationsQuery(service),
		ListSyncLogs:      integrationquery.NewListSyncLogsQuery(service),
	}
}

// Register subscribes every handler on the global dispatcher and adds it to
// the registry. A failure unsubscribes what was already registered.
func (h Handlers) Register(adapter *RegistryAdapter, runnerOpts ...runner.Option) (Subscriptions, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if h.ConnectAPIKey == nil || h.GetIntegration == nil {
		return nil, fmt.Errorf("gocommand: handlers are not configured")
	}
	var subs Subscriptions
	steps := []func() error{
		func() error {
			return registerCommand[integrationcommand.ConnectAPIKeyMessage](adapter, &subs, h.ConnectAPIKey, runnerOpts...)
		},
		func() error {
			return registerCommand[integrationcommand.BeginOAuthMessage](adapter, &subs, h.BeginOAuth, runnerOpts...)
		},
		func() error {
			return registerCommand[integrationcommand.CompleteOAuthMessage](adapter, &subs, h.CompleteOAuth, runnerOpts...)
		},
		func() error {
			return registerCommand[integrationcommand.DisconnectMessage](adapter, &subs, h.Disconnect, runnerOpts...)
		},
		func() error {
			return registerCommand[integrationcommand.RefreshCredentialMessage](adapter, &subs, h.RefreshCredential, runnerOpts...)
		},
		func() error {
			return registerCommand[integrationcommand.ReconcileSyncMessage](adapter, &subs, h.ReconcileSync, runnerOpts...)
		},
		func() error {
			return registerQuery[integrationquery.GetIntegrationMessage, integrationquery.IntegrationView](adapter, &subs, h.GetIntegration, runnerOpts...)
		},
		func() error {
			return registerQuery[integrationquery.ListIntegrationsMessage, []integrationquery.IntegrationView](adapter, &subs, h.ListIntegrations, runnerOpts...)
		},
		func() error {
			return registerQuery[integrationquery.ListSyncLogsMessage, []core.SyncLogEntry](adapter, &subs, h.ListSyncLogs, runnerOpts...)
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			subs.Unsubscribe()
			return nil, err
		}
	}
	return subs, nil
}
