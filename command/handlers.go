package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-integrations/core"
)

type MutatingService interface {
	ConnectAPIKey(ctx context.Context, req core.ConnectAPIKeyRequest) (core.Integration, error)
	BeginOAuth(ctx context.Context, req core.BeginOAuthRequest) (core.BeginOAuthResponse, error)
	CompleteOAuth(ctx context.Context, req core.CompleteOAuthRequest) (core.Integration, error)
	Disconnect(ctx context.Context, key core.IntegrationKey) error
	RefreshCredential(ctx context.Context, key core.IntegrationKey) (bool, error)
}

type SyncReconciler interface {
	Reconcile(ctx context.Context, integrationID string) error
}

type ConnectAPIKeyCommand struct {
	service MutatingService
}

func NewConnectAPIKeyCommand(service MutatingService) *ConnectAPIKeyCommand {
	return &ConnectAPIKeyCommand{service: service}
}

func (c *ConnectAPIKeyCommand) Execute(ctx context.Context, msg ConnectAPIKeyMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: connect service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.ConnectAPIKey(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type BeginOAuthCommand struct {
	service MutatingService
}

func NewBeginOAuthCommand(service MutatingService) *BeginOAuthCommand {
	return &BeginOAuthCommand{service: service}
}

func (c *BeginOAuthCommand) Execute(ctx context.Context, msg BeginOAuthMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: oauth service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.BeginOAuth(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteOAuthCommand struct {
	service MutatingService
}

func NewCompleteOAuthCommand(service MutatingService) *CompleteOAuthCommand {
	return &CompleteOAuthCommand{service: service}
}

func (c *CompleteOAuthCommand) Execute(ctx context.Context, msg CompleteOAuthMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: oauth service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.CompleteOAuth(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DisconnectCommand struct {
	service MutatingService
}

func NewDisconnectCommand(service MutatingService) *DisconnectCommand {
	return &DisconnectCommand{service: service}
}

func (c *DisconnectCommand) Execute(ctx context.Context, msg DisconnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: disconnect service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.service.Disconnect(ctx, msg.Key)
}

type RefreshCredentialCommand struct {
	service MutatingService
}

func NewRefreshCredentialCommand(service MutatingService) *RefreshCredentialCommand {
	return &RefreshCredentialCommand{service: service}
}

func (c *RefreshCredentialCommand) Execute(ctx context.Context, msg RefreshCredentialMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: refresh service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	connected, err := c.service.RefreshCredential(ctx, msg.Key)
	if err != nil {
		return err
	}
	storeResult(ctx, RefreshResult{Key: msg.Key, Connected: connected})
	return nil
}

type ReconcileSyncCommand struct {
	reconciler SyncReconciler
}

func NewReconcileSyncCommand(reconciler SyncReconciler) *ReconcileSyncCommand {
	return &ReconcileSyncCommand{reconciler: reconciler}
}

func (c *ReconcileSyncCommand) Execute(ctx context.Context, msg ReconcileSyncMessage) error {
	if c == nil || c.reconciler == nil {
		return commandDependencyError("command: sync reconciler is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.reconciler.Reconcile(ctx, msg.IntegrationID)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
