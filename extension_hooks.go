package integrations

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-integrations/adapters/gojob"
	"github.com/goliatone/go-integrations/core"
)

type AuthKind string

const (
	AuthOAuth2 AuthKind = "oauth2"
	AuthAPIKey AuthKind = "api_key"
)

// ProviderSpec tells the runtime how to build a client for a provider.
// An empty BaseURL falls back to the provider's configured base_url.
type ProviderSpec struct {
	Provider     core.Provider
	Auth         AuthKind
	BaseURL      string
	APIKeyHeader string
	APIKeyScheme string
}

// SyncPack is a named set of sync operation handlers that scheduled jobs
// can run.
type SyncPack struct {
	Name       string
	Operations map[string]gojob.SyncHandler
}

// ExtensionHooks collect what a downstream application plugs into the
// runtime: provider client specs and scheduled sync operations.
type ExtensionHooks struct {
	mu sync.RWMutex

	providers map[core.Provider]ProviderSpec
	syncPacks map[string]SyncPack
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		providers: map[core.Provider]ProviderSpec{},
		syncPacks: map[string]SyncPack{},
	}
}

func (h *ExtensionHooks) RegisterProvider(spec ProviderSpec) error {
	if h == nil {
		return fmt.Errorf("integrations: extension hooks are nil")
	}
	spec.Provider = core.NormalizeProvider(string(spec.Provider))
	if spec.Provider == "" {
		return fmt.Errorf("integrations: provider is required")
	}
	switch spec.Auth {
	case AuthOAuth2:
	case AuthAPIKey:
		if strings.TrimSpace(spec.APIKeyHeader) == "" {
			return fmt.Errorf("integrations: provider %q api key header is required", spec.Provider)
		}
	default:
		return fmt.Errorf("integrations: provider %q has unsupported auth kind %q", spec.Provider, spec.Auth)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.providers[spec.Provider]; exists {
		return fmt.Errorf("integrations: provider %q already registered", spec.Provider)
	}
	h.providers[spec.Provider] = spec
	return nil
}

func (h *ExtensionHooks) ProviderSpec(provider core.Provider) (ProviderSpec, bool) {
	if h == nil {
		return ProviderSpec{}, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	spec, ok := h.providers[core.NormalizeProvider(string(provider))]
	return spec, ok
}

func (h *ExtensionHooks) Providers() []core.Provider {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]core.Provider, 0, len(h.providers))
	for provider := range h.providers {
		out = append(out, provider)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (h *ExtensionHooks) RegisterSyncPack(pack SyncPack) error {
	if h == nil {
		return fmt.Errorf("integrations: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("integrations: sync pack name is required")
	}
	if len(pack.Operations) == 0 {
		return fmt.Errorf("integrations: sync pack %q has no operations", name)
	}
	operations := make(map[string]gojob.SyncHandler, len(pack.Operations))
	for operation, handler := range pack.Operations {
		if handler == nil {
			return fmt.Errorf("integrations: sync pack %q operation %q has no handler", name, operation)
		}
		operations[operation] = handler
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.syncPacks[name]; exists {
		return fmt.Errorf("integrations: sync pack %q already registered", name)
	}
	h.syncPacks[name] = SyncPack{Name: name, Operations: operations}
	return nil
}

// ApplySyncPacks registers every pack operation on handler, in pack name
// order. An operation name claimed by two packs is an error.
func (h *ExtensionHooks) ApplySyncPacks(handler *gojob.Handler) error {
	if h == nil {
		return nil
	}
	if handler == nil {
		return fmt.Errorf("integrations: job handler is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.syncPacks))
	for name := range h.syncPacks {
		names = append(names, name)
	}
	sort.Strings(names)
	packs := make([]SyncPack, 0, len(names))
	for _, name := range names {
		packs = append(packs, h.syncPacks[name])
	}
	h.mu.RUnlock()

	owners := map[string]string{}
	for _, pack := range packs {
		operations := make([]string, 0, len(pack.Operations))
		for operation := range pack.Operations {
			operations = append(operations, operation)
		}
		sort.Strings(operations)
		for _, operation := range operations {
			if owner, taken := owners[operation]; taken {
				return fmt.Errorf("integrations: sync operation %q registered by packs %q and %q", operation, owner, pack.Name)
			}
			owners[operation] = pack.Name
			if err := handler.Register(operation, pack.Operations[operation]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) SyncPackNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.syncPacks))
	for name := range h.syncPacks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
