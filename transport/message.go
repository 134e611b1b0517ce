package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ExtractErrorMessage picks a human readable message from an error body.
// It checks message, error, error.message, error_description and
// errors[0].message, then falls back to the status text. The result is
// never empty.
func ExtractErrorMessage(body []byte, status int, statusText string) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := firstMessage(payload); msg != "" {
			return msg
		}
	}
	if text := strings.TrimSpace(statusText); text != "" {
		return text
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", status)
}

func firstMessage(payload map[string]any) string {
	if msg := stringField(payload["message"]); msg != "" {
		return msg
	}
	switch value := payload["error"].(type) {
	case string:
		if msg := strings.TrimSpace(value); msg != "" {
			return msg
		}
	case map[string]any:
		if msg := stringField(value["message"]); msg != "" {
			return msg
		}
	}
	if msg := stringField(payload["error_description"]); msg != "" {
		return msg
	}
	if list, ok := payload["errors"].([]any); ok && len(list) > 0 {
		if first, ok := list[0].(map[string]any); ok {
			return stringField(first["message"])
		}
	}
	return ""
}

func stringField(value any) string {
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
}
