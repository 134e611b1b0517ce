package providers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/security"
)

func TestCredentialResolver_RefreshesThroughTokenEndpoint(t *testing.T) {
	ctx := context.Background()
	var seen []tokenRequest
	server := newTokenServer(t, http.StatusOK,
		`{"access_token":"fresh-access","refresh_token":"refresh-2","expires_in":3600}`, &seen)

	cipher, err := security.NewCipher("test-master-key", security.WithIterations(1000))
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	access, _ := cipher.Encrypt(ctx, "stale-access")
	refresh, _ := cipher.Encrypt(ctx, "refresh-1")
	expires := time.Now().UTC().Add(60 * time.Second)

	store := core.NewMemoryIntegrationStore()
	if _, err := store.Upsert(ctx, core.UpsertIntegrationInput{
		OrganizationID:        "org_1",
		Provider:              "quickbooks",
		Status:                core.IntegrationStatusConnected,
		AccessTokenEncrypted:  access,
		RefreshTokenEncrypted: refresh,
		TokenExpiresAt:        &expires,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	resolver, err := core.NewCredentialResolver(core.ResolverDependencies{
		Store:     store,
		Cipher:    cipher,
		Refresher: testProvider(server),
		Locker:    core.NewMemoryConnectionLocker(),
	})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	token, ok, err := resolver.GetAccessToken(ctx, core.IntegrationKey{OrganizationID: "org_1", Provider: "quickbooks"})
	if err != nil || !ok {
		t.Fatalf("expected refreshed token, ok=%v err=%v", ok, err)
	}
	if token != "fresh-access" {
		t.Fatalf("expected fresh token, got %q", token)
	}
	if len(seen) != 1 || seen[0].form.Get("refresh_token") != "refresh-1" {
		t.Fatalf("expected one refresh call with stored token, got %+v", seen)
	}

	rec, err := store.Get(ctx, core.IntegrationKey{OrganizationID: "org_1", Provider: "quickbooks"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if plain, _ := cipher.Decrypt(ctx, rec.RefreshTokenEncrypted); plain != "refresh-2" {
		t.Fatalf("expected rotated refresh token to be persisted, got %q", plain)
	}
}
