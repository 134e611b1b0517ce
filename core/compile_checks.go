package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ IntegrationStore = (*MemoryIntegrationStore)(nil)
	_ SyncLogStore     = (*MemorySyncLogStore)(nil)
	_ ConnectionLocker = (*MemoryConnectionLocker)(nil)
	_ OAuthStateStore  = (*MemoryOAuthStateStore)(nil)
	_ MetricsRecorder  = NopMetricsRecorder{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
