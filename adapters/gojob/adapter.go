package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-integrations/core"
	integrationsync "github.com/goliatone/go-integrations/sync"
	"github.com/goliatone/go-integrations/transport"
)

const (
	JobIDSync              = "integrations.sync"
	JobIDRefreshCredential = "integrations.credential.refresh"
)

const (
	paramOrganizationID = "organization_id"
	paramProvider       = "provider"
	paramOperation      = "operation"
	paramDirection      = "direction"
	paramEntityType     = "entity_type"
	paramEntityID       = "entity_id"
	paramRequestSummary = "request_summary"
)

var (
	ErrUnknownJob       = errors.New("gojob: unknown job id")
	ErrUnknownOperation = errors.New("gojob: no handler registered for sync operation")
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// DelayFor grows the requeue delay linearly with the attempt number.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay * time.Duration(attempt)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation. A
// retry past MaxAttempts becomes a dead letter, or a plain failure when
// DeadLetterOnMax is off.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Disposition == "" {
		out.Disposition = queue.NackDispositionRetry
	}
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.Disposition == queue.NackDispositionRetry && p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Disposition = queue.NackDispositionFailed
		if p.DeadLetterOnMax {
			out.Disposition = queue.NackDispositionDeadLetter
		}
	}
	if out.Disposition != queue.NackDispositionRetry {
		out.Delay = 0
	}
	return out
}

// MessageOptions tune the idempotency of an enqueued job. Window scopes the
// idempotency key, so two enqueues in the same window collapse into one.
type MessageOptions struct {
	Window      string
	DedupPolicy string
}

// NewSyncMessage encodes a scheduled sync job.
func NewSyncMessage(spec integrationsync.Job, opts MessageOptions) (*job.ExecutionMessage, error) {
	key := spec.Key.Normalize()
	if key.OrganizationID == "" || key.Provider == "" {
		return nil, fmt.Errorf("gojob: organization and provider are required")
	}
	operation := strings.TrimSpace(spec.Operation)
	if operation == "" {
		return nil, fmt.Errorf("gojob: sync operation is required")
	}
	if !spec.Direction.Valid() {
		return nil, fmt.Errorf("gojob: %w: %q", core.ErrInvalidSyncDirection, spec.Direction)
	}
	params := map[string]any{
		paramOrganizationID: key.OrganizationID,
		paramProvider:       string(key.Provider),
		paramOperation:      operation,
		paramDirection:      string(spec.Direction),
		paramEntityType:     strings.TrimSpace(spec.EntityType),
		paramEntityID:       strings.TrimSpace(spec.EntityID),
	}
	if len(spec.RequestSummary) > 0 {
		params[paramRequestSummary] = copyAnyMap(spec.RequestSummary)
	}
	idempotency := idempotencyKey(JobIDSync, opts.Window,
		key.OrganizationID, string(key.Provider), operation,
		strings.TrimSpace(spec.EntityType), strings.TrimSpace(spec.EntityID),
	)
	return newMessage(JobIDSync, params, idempotency, opts), nil
}

// NewRefreshMessage encodes a proactive credential refresh.
func NewRefreshMessage(key core.IntegrationKey, opts MessageOptions) (*job.ExecutionMessage, error) {
	key = key.Normalize()
	if key.OrganizationID == "" || key.Provider == "" {
		return nil, fmt.Errorf("gojob: organization and provider are required")
	}
	params := map[string]any{
		paramOrganizationID: key.OrganizationID,
		paramProvider:       string(key.Provider),
	}
	idempotency := idempotencyKey(JobIDRefreshCredential, opts.Window, key.OrganizationID, string(key.Provider))
	return newMessage(JobIDRefreshCredential, params, idempotency, opts), nil
}

// ParseSyncMessage decodes a sync job. The trigger is always schedule.
func ParseSyncMessage(msg *job.ExecutionMessage) (integrationsync.Job, error) {
	if msg == nil || strings.TrimSpace(msg.JobID) != JobIDSync {
		return integrationsync.Job{}, fmt.Errorf("gojob: not a sync message")
	}
	key, err := parseKey(msg.Parameters)
	if err != nil {
		return integrationsync.Job{}, err
	}
	spec := integrationsync.Job{
		Key:        key,
		Operation:  stringParam(msg.Parameters, paramOperation),
		Direction:  core.SyncDirection(stringParam(msg.Parameters, paramDirection)),
		EntityType: stringParam(msg.Parameters, paramEntityType),
		EntityID:   stringParam(msg.Parameters, paramEntityID),
		Trigger:    core.SyncTriggerSchedule,
	}
	if summary, ok := msg.Parameters[paramRequestSummary].(map[string]any); ok {
		spec.RequestSummary = copyAnyMap(summary)
	}
	if spec.Operation == "" {
		return integrationsync.Job{}, fmt.Errorf("gojob: sync operation is required")
	}
	if !spec.Direction.Valid() {
		return integrationsync.Job{}, fmt.Errorf("gojob: %w: %q", core.ErrInvalidSyncDirection, spec.Direction)
	}
	return spec, nil
}

func ParseRefreshMessage(msg *job.ExecutionMessage) (core.IntegrationKey, error) {
	if msg == nil || strings.TrimSpace(msg.JobID) != JobIDRefreshCredential {
		return core.IntegrationKey{}, fmt.Errorf("gojob: not a refresh message")
	}
	return parseKey(msg.Parameters)
}

type Enqueuer struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuer(enqueuer queue.Enqueuer) *Enqueuer {
	return &Enqueuer{enqueuer: enqueuer}
}

// EnqueueSync publishes a sync job. The receipt carries the queue dispatch
// id for status lookups.
func (e *Enqueuer) EnqueueSync(ctx context.Context, spec integrationsync.Job, opts MessageOptions) (queue.EnqueueReceipt, error) {
	msg, err := NewSyncMessage(spec, opts)
	if err != nil {
		return queue.EnqueueReceipt{}, err
	}
	return e.enqueue(ctx, msg)
}

func (e *Enqueuer) EnqueueRefresh(ctx context.Context, key core.IntegrationKey, opts MessageOptions) (queue.EnqueueReceipt, error) {
	msg, err := NewRefreshMessage(key, opts)
	if err != nil {
		return queue.EnqueueReceipt{}, err
	}
	return e.enqueue(ctx, msg)
}

func (e *Enqueuer) enqueue(ctx context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	if e == nil || e.enqueuer == nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: enqueuer is not configured")
	}
	receipt, err := e.enqueuer.Enqueue(ctx, msg)
	if err != nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: enqueue %s: %w", msg.JobID, err)
	}
	return receipt, nil
}

// SyncHandler performs the provider calls for a decoded sync job.
type SyncHandler func(ctx context.Context, spec integrationsync.Job) (integrationsync.Outcome, error)

// CredentialRefresher is satisfied by core.Service.
type CredentialRefresher interface {
	RefreshCredential(ctx context.Context, key core.IntegrationKey) (bool, error)
}

// Handler runs deliveries from the queue and settles them with Ack or Nack.
type Handler struct {
	runner     *integrationsync.Runner
	refresher  CredentialRefresher
	operations map[string]SyncHandler
	policy     RetryPolicy
	logger     glog.Logger
}

type HandlerOption func(*Handler)

func WithRetryPolicy(policy RetryPolicy) HandlerOption {
	return func(h *Handler) {
		h.policy = policy
	}
}

func WithHandlerLogger(logger glog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewHandler(runner *integrationsync.Runner, refresher CredentialRefresher, opts ...HandlerOption) *Handler {
	h := &Handler{
		runner:     runner,
		refresher:  refresher,
		operations: map[string]SyncHandler{},
		policy: RetryPolicy{
			MaxAttempts:     5,
			BaseDelay:       30 * time.Second,
			MaxDelay:        10 * time.Minute,
			DeadLetterOnMax: true,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.logger = glog.Ensure(h.logger)
	return h
}

// Register binds a sync operation name to the handler that performs it.
func (h *Handler) Register(operation string, handler SyncHandler) error {
	operation = strings.TrimSpace(operation)
	if operation == "" || handler == nil {
		return fmt.Errorf("gojob: operation name and handler are required")
	}
	h.operations[operation] = handler
	return nil
}

// Handle executes one delivery. attempt starts at 1.
func (h *Handler) Handle(ctx context.Context, delivery queue.Delivery, attempt int) error {
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	msg := delivery.Message()
	err := h.execute(ctx, msg)
	if err == nil {
		return delivery.Ack(ctx)
	}

	jobID := ""
	if msg != nil {
		jobID = msg.JobID
	}
	nack := queue.NackOptions{Disposition: queue.NackDispositionRetry, Reason: err.Error()}
	if permanent(err) {
		nack.Disposition = queue.NackDispositionDeadLetter
	} else {
		nack.Delay = h.policy.DelayFor(attempt)
	}
	nack = h.policy.NormalizeAttempt(nack, attempt)
	if verr := queue.ValidateNackOptions(nack); verr != nil {
		return fmt.Errorf("gojob: %w", verr)
	}
	h.logger.Warn("integration job failed",
		"job_id", jobID,
		"attempt", attempt,
		"disposition", string(nack.Disposition),
		"delay", nack.Delay.String(),
		"error", err,
	)
	return delivery.Nack(ctx, nack)
}

// Consume dequeues and handles deliveries until ctx is done.
func (h *Handler) Consume(ctx context.Context, dequeuer queue.Dequeuer) error {
	if dequeuer == nil {
		return fmt.Errorf("gojob: dequeuer is not configured")
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		delivery, err := dequeuer.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if delivery == nil {
			continue
		}
		if err := h.Handle(ctx, delivery, deliveryAttempt(delivery)); err != nil {
			h.logger.Error("settle integration job failed", "error", err)
		}
	}
}

func (h *Handler) execute(ctx context.Context, msg *job.ExecutionMessage) error {
	if msg == nil {
		return fmt.Errorf("gojob: %w: empty message", ErrUnknownJob)
	}
	switch strings.TrimSpace(msg.JobID) {
	case JobIDSync:
		spec, err := ParseSyncMessage(msg)
		if err != nil {
			return err
		}
		handler, ok := h.operations[spec.Operation]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownOperation, spec.Operation)
		}
		if h.runner == nil {
			return fmt.Errorf("gojob: sync runner is not configured")
		}
		_, err = h.runner.Run(ctx, spec, func(ctx context.Context) (integrationsync.Outcome, error) {
			return handler(ctx, spec)
		})
		return err
	case JobIDRefreshCredential:
		key, err := ParseRefreshMessage(msg)
		if err != nil {
			return err
		}
		if h.refresher == nil {
			return fmt.Errorf("gojob: credential refresher is not configured")
		}
		// a refused refresh already marked the integration expired; retrying
		// cannot recover it
		if _, err := h.refresher.RefreshCredential(ctx, key); err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownJob, msg.JobID)
	}
}

// permanent reports failures that a retry cannot fix.
func permanent(err error) bool {
	if errors.Is(err, ErrUnknownJob) || errors.Is(err, ErrUnknownOperation) {
		return true
	}
	var reqErr *transport.RequestError
	if errors.As(err, &reqErr) {
		return !reqErr.Retryable
	}
	mapped := core.MapError(err)
	if mapped == nil {
		return false
	}
	switch mapped.Category {
	case goerrors.CategoryNotFound, goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return true
	}
	return false
}

type attemptedDelivery interface {
	Attempt() int
}

func deliveryAttempt(delivery queue.Delivery) int {
	if attempted, ok := delivery.(attemptedDelivery); ok && attempted.Attempt() > 0 {
		return attempted.Attempt()
	}
	return 1
}

// LoggingHook reports worker lifecycle events through glog.
type LoggingHook struct {
	logger glog.Logger
}

func NewLoggingHook(logger glog.Logger) *LoggingHook {
	return &LoggingHook{logger: glog.Ensure(logger)}
}

func (h *LoggingHook) OnStart(_ context.Context, event worker.Event) {
	h.logger.Debug("integration job started", eventFields(event)...)
}

func (h *LoggingHook) OnSuccess(_ context.Context, event worker.Event) {
	h.logger.Info("integration job succeeded", eventFields(event)...)
}

func (h *LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	h.logger.Error("integration job failed", eventFields(event)...)
}

func (h *LoggingHook) OnRetry(_ context.Context, event worker.Event) {
	h.logger.Warn("integration job retrying", eventFields(event)...)
}

func eventFields(event worker.Event) []any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	fields := []any{
		"attempt", event.Attempt,
		"duration_ms", event.Duration.Milliseconds(),
	}
	if message != nil {
		fields = append(fields, "job_id", message.JobID, "idempotency_key", message.IdempotencyKey)
		if org := stringParam(message.Parameters, paramOrganizationID); org != "" {
			fields = append(fields, "organization_id", org, "provider", stringParam(message.Parameters, paramProvider))
		}
	}
	if event.Delay > 0 {
		fields = append(fields, "delay", event.Delay.String())
	}
	if event.Err != nil {
		fields = append(fields, "error", event.Err)
	}
	return fields
}

func newMessage(jobID string, params map[string]any, idempotency string, opts MessageOptions) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:          jobID,
		ScriptPath:     jobID,
		Parameters:     params,
		IdempotencyKey: idempotency,
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(opts.DedupPolicy)),
	}
}

func idempotencyKey(jobID, window string, parts ...string) string {
	segments := append([]string{jobID}, parts...)
	if window = strings.TrimSpace(window); window != "" {
		segments = append(segments, window)
	}
	return strings.Join(segments, ":")
}

func parseKey(params map[string]any) (core.IntegrationKey, error) {
	key := core.IntegrationKey{
		OrganizationID: stringParam(params, paramOrganizationID),
		Provider:       core.Provider(stringParam(params, paramProvider)),
	}.Normalize()
	if key.OrganizationID == "" || key.Provider == "" {
		return core.IntegrationKey{}, fmt.Errorf("gojob: organization and provider are required")
	}
	return key, nil
}

func stringParam(params map[string]any, name string) string {
	value, _ := params[name].(string)
	return strings.TrimSpace(value)
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var _ worker.Hook = (*LoggingHook)(nil)
