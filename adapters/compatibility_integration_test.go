package adapters_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-integrations/adapters/gocommand"
	"github.com/goliatone/go-integrations/adapters/gojob"
	"github.com/goliatone/go-integrations/adapters/gologger"
	integrationcommand "github.com/goliatone/go-integrations/command"
	"github.com/goliatone/go-integrations/core"
)

func TestRuntimeCompatibility_GoJobGoCommandGoLogger(t *testing.T) {
	ctx := context.Background()

	logger := &compatLogger{}
	bridge := gologger.NewBridge("integrations", &compatProvider{logger: logger}, nil)
	if bridge.JobProvider() == nil || bridge.JobLogger() == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	recorded := &compatEnqueuer{}
	key := core.IntegrationKey{OrganizationID: "org_1", Provider: "dat"}
	receipt, err := gojob.NewEnqueuer(recorded).EnqueueRefresh(ctx, key, gojob.MessageOptions{DedupPolicy: "drop"})
	if err != nil {
		t.Fatalf("enqueue refresh: %v", err)
	}
	if receipt.DispatchID != "dispatch-1" {
		t.Fatalf("expected queue receipt, got %+v", receipt)
	}
	if recorded.last == nil || recorded.last.JobID != gojob.JobIDRefreshCredential {
		t.Fatalf("expected refresh message through enqueuer")
	}

	svc := &compatMutatingService{}
	queueRegistry := jobqueuecommand.NewRegistry()
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	refresh := integrationcommand.NewRefreshCredentialCommand(svc)
	if err := adapter.Register(refresh); err != nil {
		t.Fatalf("register refresh command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := queueRegistry.Get(integrationcommand.TypeRefreshCredential); !ok {
		t.Fatalf("expected refresh command to be mirrored into the go-job queue registry")
	}

	// a dequeued refresh job drives the same command the dispatcher runs
	handler := gojob.NewHandler(nil, commandRefresher{cmd: refresh}, gojob.WithHandlerLogger(bridge.Component("jobs")))
	delivery := &compatDelivery{msg: recorded.last}
	if err := handler.Handle(ctx, delivery, 1); err != nil {
		t.Fatalf("handle refresh job: %v", err)
	}
	if !delivery.acked {
		t.Fatalf("expected refresh job to be acked")
	}
	if svc.refreshCalls != 1 || svc.lastKey != key {
		t.Fatalf("expected refresh through command wrapper, got calls=%d key=%+v", svc.refreshCalls, svc.lastKey)
	}
}

type commandRefresher struct {
	cmd *integrationcommand.RefreshCredentialCommand
}

func (r commandRefresher) RefreshCredential(ctx context.Context, key core.IntegrationKey) (bool, error) {
	if err := r.cmd.Execute(ctx, integrationcommand.RefreshCredentialMessage{Key: key}); err != nil {
		return false, err
	}
	return true, nil
}

type compatMutatingService struct {
	refreshCalls int
	lastKey      core.IntegrationKey
}

func (s *compatMutatingService) ConnectAPIKey(context.Context, core.ConnectAPIKeyRequest) (core.Integration, error) {
	return core.Integration{}, nil
}

func (s *compatMutatingService) BeginOAuth(context.Context, core.BeginOAuthRequest) (core.BeginOAuthResponse, error) {
	return core.BeginOAuthResponse{}, nil
}

func (s *compatMutatingService) CompleteOAuth(context.Context, core.CompleteOAuthRequest) (core.Integration, error) {
	return core.Integration{}, nil
}

func (s *compatMutatingService) Disconnect(context.Context, core.IntegrationKey) error {
	return nil
}

func (s *compatMutatingService) RefreshCredential(_ context.Context, key core.IntegrationKey) (bool, error) {
	s.refreshCalls++
	s.lastKey = key
	return true, nil
}

type compatEnqueuer struct {
	last *job.ExecutionMessage
}

func (e *compatEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	e.last = msg
	return queue.EnqueueReceipt{DispatchID: "dispatch-1", EnqueuedAt: time.Now().UTC()}, nil
}

type compatDelivery struct {
	msg   *job.ExecutionMessage
	acked bool
}

func (d *compatDelivery) Message() *job.ExecutionMessage { return d.msg }

func (d *compatDelivery) Ack(context.Context) error {
	d.acked = true
	return nil
}

func (d *compatDelivery) Nack(context.Context, queue.NackOptions) error { return nil }

type compatProvider struct {
	logger glog.Logger
}

func (p *compatProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type compatLogger struct{}

func (compatLogger) Trace(string, ...any)                    {}
func (compatLogger) Debug(string, ...any)                    {}
func (compatLogger) Info(string, ...any)                     {}
func (compatLogger) Warn(string, ...any)                     {}
func (compatLogger) Error(string, ...any)                    {}
func (compatLogger) Fatal(string, ...any)                    {}
func (compatLogger) WithContext(context.Context) glog.Logger { return compatLogger{} }
