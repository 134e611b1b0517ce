package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-integrations/core"
)

var (
	_ gocmd.Querier[GetIntegrationMessage, IntegrationView]     = (*GetIntegrationQuery)(nil)
	_ gocmd.Querier[ListIntegrationsMessage, []IntegrationView] = (*ListIntegrationsQuery)(nil)
	_ gocmd.Querier[ListSyncLogsMessage, []core.SyncLogEntry]   = (*ListSyncLogsQuery)(nil)

	_ IntegrationReader = (*core.Service)(nil)
	_ SyncLogReader     = (*core.Service)(nil)
)
