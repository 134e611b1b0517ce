package integrations

import (
	"context"
	"testing"

	"github.com/goliatone/go-integrations/adapters/gojob"
	integrationsync "github.com/goliatone/go-integrations/sync"
)

func noopSync(context.Context, integrationsync.Job) (integrationsync.Outcome, error) {
	return integrationsync.Outcome{}, nil
}

func TestExtensionHooks_RegisterProvider(t *testing.T) {
	hooks := NewExtensionHooks()
	if err := hooks.RegisterProvider(ProviderSpec{Provider: " Highway ", Auth: AuthAPIKey, APIKeyHeader: "X-Api-Key"}); err != nil {
		t.Fatalf("register provider: %v", err)
	}
	if err := hooks.RegisterProvider(ProviderSpec{Provider: "highway", Auth: AuthOAuth2}); err == nil {
		t.Fatalf("expected duplicate provider registration error")
	}
	if err := hooks.RegisterProvider(ProviderSpec{Provider: "dat", Auth: AuthAPIKey}); err == nil {
		t.Fatalf("expected api key spec without header to fail")
	}
	if err := hooks.RegisterProvider(ProviderSpec{Provider: "dat", Auth: "basic"}); err == nil {
		t.Fatalf("expected unsupported auth kind to fail")
	}
	if err := hooks.RegisterProvider(ProviderSpec{Provider: "dat", Auth: AuthOAuth2}); err != nil {
		t.Fatalf("register oauth provider: %v", err)
	}

	spec, ok := hooks.ProviderSpec("HIGHWAY")
	if !ok || spec.Provider != "highway" {
		t.Fatalf("expected normalized lookup, got %+v (%v)", spec, ok)
	}
	providers := hooks.Providers()
	if len(providers) != 2 || providers[0] != "dat" || providers[1] != "highway" {
		t.Fatalf("expected sorted providers, got %v", providers)
	}
}

func TestExtensionHooks_ApplySyncPacks(t *testing.T) {
	hooks := NewExtensionHooks()
	if err := hooks.RegisterSyncPack(SyncPack{Name: "loads", Operations: map[string]gojob.SyncHandler{
		"post_load":   noopSync,
		"delete_load": noopSync,
	}}); err != nil {
		t.Fatalf("register loads pack: %v", err)
	}
	if err := hooks.RegisterSyncPack(SyncPack{Name: "loads", Operations: map[string]gojob.SyncHandler{"x": noopSync}}); err == nil {
		t.Fatalf("expected duplicate pack error")
	}
	if err := hooks.RegisterSyncPack(SyncPack{Name: "empty"}); err == nil {
		t.Fatalf("expected empty pack error")
	}
	if err := hooks.RegisterSyncPack(SyncPack{Name: "nil", Operations: map[string]gojob.SyncHandler{"x": nil}}); err == nil {
		t.Fatalf("expected nil handler error")
	}

	if err := hooks.ApplySyncPacks(gojob.NewHandler(nil, nil)); err != nil {
		t.Fatalf("apply sync packs: %v", err)
	}
	if names := hooks.SyncPackNames(); len(names) != 1 || names[0] != "loads" {
		t.Fatalf("unexpected pack names %v", names)
	}
	if err := hooks.ApplySyncPacks(nil); err == nil {
		t.Fatalf("expected nil handler to fail")
	}
}

func TestExtensionHooks_ApplySyncPacksRejectsSharedOperation(t *testing.T) {
	hooks := NewExtensionHooks()
	_ = hooks.RegisterSyncPack(SyncPack{Name: "a", Operations: map[string]gojob.SyncHandler{"post_load": noopSync}})
	_ = hooks.RegisterSyncPack(SyncPack{Name: "b", Operations: map[string]gojob.SyncHandler{"post_load": noopSync}})
	if err := hooks.ApplySyncPacks(gojob.NewHandler(nil, nil)); err == nil {
		t.Fatalf("expected operation claimed by two packs to fail")
	}
}
