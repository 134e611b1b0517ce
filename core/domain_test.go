package core

import (
	"errors"
	"testing"
	"time"
)

func TestIntegrationTransitionTo_ValidAndInvalid(t *testing.T) {
	now := time.Now().UTC()
	rec := Integration{Status: IntegrationStatusConnected}

	if err := rec.TransitionTo(IntegrationStatusExpired, now); err != nil {
		t.Fatalf("expected connected->expired to work: %v", err)
	}
	if rec.Status != IntegrationStatusExpired || !rec.UpdatedAt.Equal(now) {
		t.Fatalf("expected expired status stamped at now, got %q %v", rec.Status, rec.UpdatedAt)
	}
	if err := rec.TransitionTo(IntegrationStatusError, now); !errors.Is(err, ErrInvalidIntegrationStatusTransition) {
		t.Fatalf("expected expired->error to be rejected, got %v", err)
	}
	if err := rec.TransitionTo(IntegrationStatusConnected, now); err != nil {
		t.Fatalf("expected reconnect from expired: %v", err)
	}
	if err := rec.TransitionTo("bogus", now); !errors.Is(err, ErrInvalidIntegrationStatusTransition) {
		t.Fatalf("expected unknown status to be rejected, got %v", err)
	}
}

func TestIntegrationStatus_Usable(t *testing.T) {
	cases := map[IntegrationStatus]bool{
		IntegrationStatusConnected:    true,
		IntegrationStatusError:        true,
		IntegrationStatusExpired:      false,
		IntegrationStatusDisconnected: false,
		IntegrationStatusConnecting:   false,
	}
	for status, want := range cases {
		if got := status.Usable(); got != want {
			t.Fatalf("%s: expected usable=%v, got %v", status, want, got)
		}
	}
}

func TestIntegrationApplySyncOutcome_ErrorCount(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := Integration{}

	rec.ApplySyncOutcome(SyncOutcome{Status: SyncStatusError, Message: "carrier api down", At: at})
	rec.ApplySyncOutcome(SyncOutcome{Status: SyncStatusError, Message: "still down", At: at.Add(time.Minute)})
	if rec.ErrorCount != 2 || rec.LastError != "still down" || rec.LastErrorAt == nil {
		t.Fatalf("expected two errors recorded, got %+v", rec)
	}

	rec.ApplySyncOutcome(SyncOutcome{Status: SyncStatusSuccess, Message: "ok", At: at.Add(2 * time.Minute)})
	if rec.ErrorCount != 0 || rec.LastError != "" || rec.LastErrorAt != nil {
		t.Fatalf("expected success to reset error bookkeeping, got %+v", rec)
	}
	if rec.LastSyncStatus != string(SyncStatusSuccess) || !rec.LastSyncAt.Equal(at.Add(2*time.Minute)) {
		t.Fatalf("expected last sync to track the success, got %+v", rec)
	}
}

func TestIntegrationKey_Normalize(t *testing.T) {
	key := IntegrationKey{OrganizationID: "  org_1 ", Provider: " QuickBooks "}.Normalize()
	if key.OrganizationID != "org_1" || key.Provider != "quickbooks" {
		t.Fatalf("unexpected normalized key %+v", key)
	}
	if key.String() != "org_1:quickbooks" {
		t.Fatalf("unexpected key string %q", key.String())
	}
	if err := (IntegrationKey{Provider: "quickbooks"}).Validate(); err == nil {
		t.Fatalf("expected missing organization to fail validation")
	}
}
