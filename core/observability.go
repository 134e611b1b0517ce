package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// observer logs and records metrics for one named operation. The zero value
// is silent.
type observer struct {
	logger  Logger
	metrics MetricsRecorder
	now     func() time.Time
}

func (o observer) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	elapsed := o.clock().Sub(startedAt)

	contextFields := RedactFields(fields)
	contextFields["event_type"] = operation
	contextFields["status"] = status
	contextFields["duration_ms"] = elapsed.Milliseconds()
	if err != nil {
		contextFields["error"] = err.Error()
	}

	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range []string{"provider", "organization_id"} {
		if value := strings.TrimSpace(fmt.Sprint(contextFields[key])); value != "" && value != "<nil>" {
			tags[key] = value
		}
	}

	o.recordCounter(ctx, OperationCounterName(operation), 1, tags)
	o.recordHistogram(ctx, OperationDurationName(operation), float64(elapsed.Milliseconds()), tags)

	if err != nil {
		o.logWithLevel(ctx, "error", operation+" failed", contextFields)
		return
	}
	o.logWithLevel(ctx, "info", operation+" succeeded", contextFields)
}

func (o observer) warn(ctx context.Context, message string, fields map[string]any) {
	o.logWithLevel(ctx, "warn", message, RedactFields(fields))
}

func (o observer) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if o.logger == nil {
		return
	}
	logger := o.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (o observer) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if o.metrics == nil {
		return
	}
	o.metrics.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (o observer) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if o.metrics == nil {
		return
	}
	o.metrics.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (o observer) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now().UTC()
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	operation = strings.ReplaceAll(operation, " ", "_")
	operation = strings.ReplaceAll(operation, "-", "_")
	return operation
}

func integrationFields(key IntegrationKey) map[string]any {
	return map[string]any{
		"organization_id": strings.TrimSpace(key.OrganizationID),
		"provider":        string(NormalizeProvider(string(key.Provider))),
	}
}
