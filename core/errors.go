package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput             = "INTEGRATION_BAD_INPUT"
	ErrorNotFound             = "INTEGRATION_NOT_FOUND"
	ErrorMasterKeyMissing     = "MASTER_KEY_MISSING"
	ErrorOAuthClientMissing   = "OAUTH_CLIENT_MISSING"
	ErrorTokenRefreshFailed   = "TOKEN_REFRESH_FAILED"
	ErrorTokenVersionConflict = "TOKEN_VERSION_CONFLICT"
	ErrorDecryptionFailed     = "DECRYPTION_FAILED"
	ErrorSyncLogFinalized     = "SYNC_LOG_FINALIZED"
	ErrorRefreshLocked        = "REFRESH_LOCKED"
	ErrorOAuthStateInvalid    = "OAUTH_STATE_INVALID"
	ErrorInternal             = "INTEGRATION_INTERNAL_ERROR"
)

var (
	ErrMasterKeyMissing   = errors.New("core: encryption master key is required")
	ErrOAuthClientMissing = errors.New("core: oauth client is not configured for provider")
	ErrDecrypt            = errors.New("core: decryption failed")
	ErrTokenRefreshFailed = errors.New("core: token refresh failed")
	ErrRefreshLocked      = errors.New("core: refresh lock already held")
)

// MapError converts any error into a go-errors envelope carrying a text code
// and HTTP status.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrIntegrationNotFound), errors.Is(err, ErrSyncLogNotFound):
		return newIntegrationError(err, goerrors.CategoryNotFound, ErrorNotFound)
	case errors.Is(err, ErrMasterKeyMissing):
		return newIntegrationError(err, goerrors.CategoryInternal, ErrorMasterKeyMissing)
	case errors.Is(err, ErrOAuthClientMissing):
		return newIntegrationError(err, goerrors.CategoryBadInput, ErrorOAuthClientMissing)
	case errors.Is(err, ErrDecrypt):
		return newIntegrationError(err, goerrors.CategoryInternal, ErrorDecryptionFailed)
	case errors.Is(err, ErrTokenRefreshFailed):
		return newIntegrationError(err, goerrors.CategoryAuth, ErrorTokenRefreshFailed)
	case errors.Is(err, ErrTokenVersionConflict):
		return newIntegrationError(err, goerrors.CategoryConflict, ErrorTokenVersionConflict)
	case errors.Is(err, ErrSyncLogFinalized):
		return newIntegrationError(err, goerrors.CategoryConflict, ErrorSyncLogFinalized)
	case errors.Is(err, ErrOAuthStateInvalid):
		return newIntegrationError(err, goerrors.CategoryAuth, ErrorOAuthStateInvalid)
	case errors.Is(err, ErrRefreshLocked):
		return newIntegrationError(err, goerrors.CategoryConflict, ErrorRefreshLocked)
	case errors.Is(err, ErrInvalidIntegrationStatusTransition),
		errors.Is(err, ErrInvalidSyncStatus),
		errors.Is(err, ErrInvalidSyncDirection),
		errors.Is(err, ErrInvalidSyncTrigger):
		return newIntegrationError(err, goerrors.CategoryBadInput, ErrorBadInput)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	if strings.Contains(msg, "required") || strings.Contains(msg, "invalid") {
		return newIntegrationError(err, goerrors.CategoryBadInput, ErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func newIntegrationError(source error, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.Wrap(source, category, source.Error()).
			WithTextCode(textCode),
	)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatusFor(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorTokenRefreshFailed
	case goerrors.CategoryConflict:
		return ErrorTokenVersionConflict
	default:
		return ErrorInternal
	}
}

func httpStatusFor(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
