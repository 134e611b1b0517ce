package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// DefaultName is the root logger name for the integrations runtime.
const DefaultName = "integrations"

// Bridge resolves one glog provider for the runtime and hands out the
// equivalent go-job adapters for queue workers.
type Bridge struct {
	name     string
	provider glog.LoggerProvider
	logger   glog.Logger
}

// NewBridge applies the precedence provider > logger > nop.
func NewBridge(name string, provider glog.LoggerProvider, logger glog.Logger) *Bridge {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}
	resolvedProvider, resolvedLogger := glog.Resolve(name, provider, logger)
	return &Bridge{
		name:     name,
		provider: resolvedProvider,
		logger:   glog.Ensure(resolvedLogger),
	}
}

func (b *Bridge) Provider() glog.LoggerProvider {
	if b == nil {
		return nil
	}
	return b.provider
}

func (b *Bridge) Logger() glog.Logger {
	if b == nil {
		return glog.Nop()
	}
	return b.logger
}

// Component returns the logger for a named part of the runtime, for example
// "integrations.sync".
func (b *Bridge) Component(component string) glog.Logger {
	if b == nil || b.provider == nil {
		return glog.Nop()
	}
	component = strings.TrimSpace(component)
	if component == "" {
		return b.logger
	}
	return glog.Ensure(b.provider.GetLogger(b.name + "." + component))
}

// JobProvider maps the resolved provider to the go-job logger contract.
func (b *Bridge) JobProvider() job.LoggerProvider {
	if b == nil || b.provider == nil {
		return nil
	}
	return job.GoLoggerProvider(b.provider)
}

// JobLogger maps the resolved logger to the go-job logger contract.
func (b *Bridge) JobLogger() job.Logger {
	if b == nil || b.logger == nil {
		return nil
	}
	return job.GoLogger(b.logger)
}
