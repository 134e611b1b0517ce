package transport

import (
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	CodeNetworkError     = "NETWORK_ERROR"
	CodeTimeout          = "TIMEOUT"
	CodeCanceled         = "CANCELED"
	CodeAuthUnavailable  = "AUTH_UNAVAILABLE"
	CodeDecodeError      = "DECODE_ERROR"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeRateLimitedLocal = "RATE_LIMITED_LOCAL"
)

// RequestError is the failure half of a Result. It is a value, not a panic
// or a returned error, so callers branch on Code.
type RequestError struct {
	Code      string
	Message   string
	Status    int
	Retryable bool
	Cause     error
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// AsError converts the failure into a go-errors envelope for callers that
// need to propagate it.
func (e *RequestError) AsError() *goerrors.Error {
	if e == nil {
		return nil
	}
	category := categoryFor(e)
	code := e.Status
	if code == 0 {
		code = statusFor(category)
	}
	out := goerrors.New(e.Message, category).
		WithCode(code).
		WithTextCode(e.Code)
	out.Source = e.Cause
	return out.WithMetadata(map[string]any{"retryable": e.Retryable})
}

// HTTPStatusCode returns the canonical code for an HTTP failure.
func HTTPStatusCode(status int) string {
	return fmt.Sprintf("HTTP_%d", status)
}

func categoryFor(e *RequestError) goerrors.Category {
	switch {
	case e.Code == CodeAuthUnavailable, e.Status == http.StatusUnauthorized:
		return goerrors.CategoryAuth
	case e.Status == http.StatusForbidden:
		return goerrors.CategoryAuthz
	case e.Status == http.StatusNotFound:
		return goerrors.CategoryNotFound
	case e.Status == http.StatusConflict:
		return goerrors.CategoryConflict
	case e.Status == http.StatusTooManyRequests, e.Code == CodeRateLimitedLocal:
		return goerrors.CategoryRateLimit
	case e.Code == CodeInvalidRequest, e.Status >= 400 && e.Status < 500:
		return goerrors.CategoryBadInput
	default:
		return goerrors.CategoryExternal
	}
}

func statusFor(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

func transportError(message string, category goerrors.Category, code int, metadata map[string]any) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(source error, category goerrors.Category, message string, code int, metadata map[string]any) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return CodeInvalidRequest
	default:
		return CodeNetworkError
	}
}
