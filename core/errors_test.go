package core

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestMapError_AssignsStableCodes(t *testing.T) {
	cases := []struct {
		err      error
		textCode string
		category goerrors.Category
		status   int
	}{
		{fmt.Errorf("%w: org_1:dat", ErrIntegrationNotFound), ErrorNotFound, goerrors.CategoryNotFound, http.StatusNotFound},
		{ErrMasterKeyMissing, ErrorMasterKeyMissing, goerrors.CategoryInternal, http.StatusInternalServerError},
		{fmt.Errorf("%w: quickbooks", ErrOAuthClientMissing), ErrorOAuthClientMissing, goerrors.CategoryBadInput, http.StatusBadRequest},
		{fmt.Errorf("security: %w", ErrDecrypt), ErrorDecryptionFailed, goerrors.CategoryInternal, http.StatusInternalServerError},
		{fmt.Errorf("%w: expected 1", ErrTokenVersionConflict), ErrorTokenVersionConflict, goerrors.CategoryConflict, http.StatusConflict},
		{ErrSyncLogFinalized, ErrorSyncLogFinalized, goerrors.CategoryConflict, http.StatusConflict},
		{ErrOAuthStateInvalid, ErrorOAuthStateInvalid, goerrors.CategoryAuth, http.StatusUnauthorized},
		{stderrors.New("core: organization id is required"), ErrorBadInput, goerrors.CategoryBadInput, http.StatusBadRequest},
	}
	for _, tc := range cases {
		mapped := MapError(tc.err)
		if mapped.TextCode != tc.textCode {
			t.Fatalf("%v: expected text code %q, got %q", tc.err, tc.textCode, mapped.TextCode)
		}
		if mapped.Category != tc.category {
			t.Fatalf("%v: expected category %q, got %q", tc.err, tc.category, mapped.Category)
		}
		if mapped.Code != tc.status {
			t.Fatalf("%v: expected status %d, got %d", tc.err, tc.status, mapped.Code)
		}
		if !stderrors.Is(mapped, tc.err) && !stderrors.Is(mapped, stderrors.Unwrap(tc.err)) {
			t.Fatalf("%v: expected mapped error to keep its source", tc.err)
		}
	}
}

func TestMapError_PreservesRichErrors(t *testing.T) {
	source := goerrors.New("custom", goerrors.CategoryRateLimit).WithTextCode("SLOW_DOWN")
	mapped := MapError(source)
	if mapped.TextCode != "SLOW_DOWN" || mapped.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rich error to keep text code and gain status, got %q %d", mapped.TextCode, mapped.Code)
	}
	if MapError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}
