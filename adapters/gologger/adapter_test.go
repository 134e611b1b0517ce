package gologger

import (
	"context"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestNewBridgePrecedence(t *testing.T) {
	loggerOnly := &capturingLogger{id: "logger"}
	provider := &capturingProvider{logger: &capturingLogger{id: "provider"}}

	bridge := NewBridge("", provider, loggerOnly)
	if got := bridge.Logger().(*capturingLogger); got.id != "provider" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}
	if provider.lastName != DefaultName {
		t.Fatalf("expected default name %q, got %q", DefaultName, provider.lastName)
	}

	bridge = NewBridge("gateway", nil, loggerOnly)
	if got := bridge.Logger().(*capturingLogger); got.id != "logger" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if bridge.Provider() == nil {
		t.Fatalf("expected provider wrapper from logger")
	}

	if NewBridge("gateway", nil, nil).Logger() == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestBridgeComponentNames(t *testing.T) {
	provider := &capturingProvider{logger: &capturingLogger{id: "provider"}}
	bridge := NewBridge("integrations", provider, nil)

	bridge.Component("sync")
	if provider.lastName != "integrations.sync" {
		t.Fatalf("expected component logger name, got %q", provider.lastName)
	}

	var nilBridge *Bridge
	if nilBridge.Component("sync") == nil || nilBridge.Logger() == nil {
		t.Fatalf("expected nop loggers from nil bridge")
	}
}

func TestBridgeGoJobCompatibility(t *testing.T) {
	providerLogger := &capturingLogger{id: "provider"}
	bridge := NewBridge("integrations", &capturingProvider{logger: providerLogger}, nil)

	if bridge.JobProvider() == nil || bridge.JobLogger() == nil {
		t.Fatalf("expected go-job bridges")
	}

	bridge.JobProvider().GetLogger("integrations.jobs").Info("refresh queued", "provider", "dat")
	captured := providerLogger.lastInfo
	if captured.msg != "refresh queued" {
		t.Fatalf("expected bridged message, got %q", captured.msg)
	}
	if len(captured.args) != 2 || captured.args[0] != "provider" || captured.args[1] != "dat" {
		t.Fatalf("expected bridged args, got %#v", captured.args)
	}
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

type capturingProvider struct {
	logger   *capturingLogger
	lastName string
}

func (p *capturingProvider) GetLogger(name string) glog.Logger {
	p.lastName = name
	if p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type infoCall struct {
	msg  string
	args []any
}

type capturingLogger struct {
	id       string
	lastInfo infoCall
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Info(msg string, args ...any) {
	l.lastInfo = infoCall{msg: msg, args: append([]any(nil), args...)}
}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}
