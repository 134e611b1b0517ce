package command

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-integrations/core"
)

var (
	_ gocmd.Commander[ConnectAPIKeyMessage]     = (*ConnectAPIKeyCommand)(nil)
	_ gocmd.Commander[BeginOAuthMessage]        = (*BeginOAuthCommand)(nil)
	_ gocmd.Commander[CompleteOAuthMessage]     = (*CompleteOAuthCommand)(nil)
	_ gocmd.Commander[DisconnectMessage]        = (*DisconnectCommand)(nil)
	_ gocmd.Commander[RefreshCredentialMessage] = (*RefreshCredentialCommand)(nil)
	_ gocmd.Commander[ReconcileSyncMessage]     = (*ReconcileSyncCommand)(nil)

	_ MutatingService = (*core.Service)(nil)
	_ SyncReconciler  = (*core.SyncLogger)(nil)
)
