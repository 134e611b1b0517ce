package core

import "strings"

const RedactedValue = "[REDACTED]"

// RedactFields copies fields, masking any key that looks like secret material.
func RedactFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	return redactSensitiveMap(fields)
}

func redactSensitiveMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if shouldRedactKey(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = redactSensitiveValue(value)
	}
	return target
}

func redactSensitiveValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactSensitiveMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactSensitiveValue(typed[i])
		}
		return out
	default:
		return value
	}
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || isTraceabilityKey(key) {
		return false
	}
	for _, token := range []string{
		"password",
		"secret",
		"token",
		"authorization",
		"api_key",
		"apikey",
		"master_key",
		"credential",
		"ssn",
		"account_number",
		"routing_number",
	} {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

func isTraceabilityKey(key string) bool {
	switch key {
	case "provider",
		"organization_id",
		"integration_id",
		"sync_log_id",
		"external_id",
		"external_account_id",
		"entity_id",
		"idempotency_key",
		"request_id":
		return true
	default:
		return false
	}
}
