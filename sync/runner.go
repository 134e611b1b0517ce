package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/transport"
)

// CodeSyncFailed is recorded when an operation fails without a request
// error code of its own.
const CodeSyncFailed = "SYNC_FAILED"

// Job describes one sync operation against a single integration.
type Job struct {
	Key            core.IntegrationKey
	Operation      string
	Direction      core.SyncDirection
	EntityType     string
	EntityID       string
	RequestSummary map[string]any
	Trigger        core.SyncTrigger
}

// Outcome is what a successful operation reports back for the log.
type Outcome struct {
	ExternalID string
	Summary    map[string]any
}

// Operation performs the provider calls for a job.
type Operation func(ctx context.Context) (Outcome, error)

type Runner struct {
	service *core.Service
	logger  glog.Logger
}

type RunnerOption func(*Runner)

func WithLogger(logger glog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewRunner(service *core.Service, opts ...RunnerOption) (*Runner, error) {
	if service == nil {
		return nil, fmt.Errorf("sync: service is required")
	}
	r := &Runner{service: service, logger: service.Logger()}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.logger = glog.Ensure(r.logger)
	return r, nil
}

// Run opens a running log for job, executes op and writes exactly one
// terminal update. The returned error is op's error; the entry reflects
// what was recorded.
func (r *Runner) Run(ctx context.Context, job Job, op Operation) (core.SyncLogEntry, error) {
	if r == nil || r.service == nil {
		return core.SyncLogEntry{}, fmt.Errorf("sync: runner is not configured")
	}
	if op == nil {
		return core.SyncLogEntry{}, fmt.Errorf("sync: operation is required")
	}
	rec, err := r.service.GetIntegration(ctx, job.Key)
	if err != nil {
		return core.SyncLogEntry{}, err
	}
	logs := r.service.SyncLogger()
	logID, err := logs.Start(ctx, core.StartSyncParams{
		IntegrationID:  rec.ID,
		OrganizationID: rec.OrganizationID,
		Provider:       rec.Provider,
		Operation:      job.Operation,
		Direction:      job.Direction,
		EntityType:     job.EntityType,
		EntityID:       job.EntityID,
		RequestSummary: job.RequestSummary,
		Trigger:        job.Trigger,
	})
	if err != nil {
		return core.SyncLogEntry{}, err
	}

	// the terminal write must land even when op was cut short by ctx
	writeCtx := context.WithoutCancel(ctx)
	defer func() {
		if recovered := recover(); recovered != nil {
			message := fmt.Sprintf("operation panicked: %v", recovered)
			if _, err := logs.Error(writeCtx, logID, CodeSyncFailed, message, nil); err != nil {
				r.logger.Error("sync log panic write failed",
					"sync_log_id", logID,
					"operation", job.Operation,
					"error", err,
				)
			}
			panic(recovered)
		}
	}()

	outcome, opErr := op(ctx)
	if opErr == nil {
		entry, err := logs.Success(writeCtx, logID, outcome.Summary, outcome.ExternalID)
		if err != nil {
			return entry, err
		}
		return entry, nil
	}

	code, message := describeFailure(opErr)
	entry, err := logs.Error(writeCtx, logID, code, message, outcome.Summary)
	if err != nil {
		r.logger.Error("sync log error write failed",
			"sync_log_id", logID,
			"operation", job.Operation,
			"error", err,
		)
	}
	return entry, opErr
}

// BatchItem pairs a job with the operation that performs it.
type BatchItem struct {
	Job       Job
	Operation Operation
}

type BatchResult struct {
	Entry core.SyncLogEntry
	Err   error
}

// Batch runs items for one provider through a pool bounded by the
// provider's configured concurrency. Results keep the order of items and a
// failed item never cancels its siblings.
func (r *Runner) Batch(ctx context.Context, provider core.Provider, items []BatchItem) []BatchResult {
	results := make([]BatchResult, len(items))
	if len(items) == 0 {
		return results
	}
	limit := 1
	if r != nil && r.service != nil {
		limit = r.service.Config().ProviderConcurrency(provider)
	}

	var group errgroup.Group
	group.SetLimit(limit)
	for i, item := range items {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = BatchResult{Err: err}
				return nil
			}
			job := item.Job
			if job.Key.Provider == "" {
				job.Key.Provider = provider
			}
			entry, err := r.Run(ctx, job, item.Operation)
			results[i] = BatchResult{Entry: entry, Err: err}
			return nil
		})
	}
	_ = group.Wait()
	return results
}

// ResultError converts a failed executor result into an error suitable for
// returning from an Operation.
func ResultError[T any](res transport.Result[T]) error {
	if res.Success {
		return nil
	}
	if res.Error == nil {
		return &transport.RequestError{Code: transport.CodeNetworkError, Message: "request failed"}
	}
	return res.Error
}

func describeFailure(err error) (string, string) {
	var reqErr *transport.RequestError
	if errors.As(err, &reqErr) && strings.TrimSpace(reqErr.Code) != "" {
		return reqErr.Code, reqErr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return transport.CodeTimeout, err.Error()
	}
	if errors.Is(err, context.Canceled) {
		return transport.CodeCanceled, err.Error()
	}
	return CodeSyncFailed, err.Error()
}
