package core

import (
	"context"
	"strings"
)

const metricPrefix = "integrations."

// MetricsRecorder receives one counter and one duration histogram per
// observed operation, tagged with operation, status, provider and
// organization_id when known.
type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// OperationCounterName is the counter recorded for operation, e.g.
// integrations.refresh_token.total.
func OperationCounterName(operation string) string {
	return metricPrefix + normalizeOperation(operation) + ".total"
}

// OperationDurationName is the histogram recorded for operation in
// milliseconds.
func OperationDurationName(operation string) string {
	return metricPrefix + normalizeOperation(operation) + ".duration_ms"
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func cloneTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for key, value := range tags {
		if key = strings.TrimSpace(key); key != "" {
			out[key] = value
		}
	}
	return out
}
