package core

import (
	"context"
	"testing"
)

func TestGoOptionsResolver_RuntimeWinsOverLoaded(t *testing.T) {
	defaults := DefaultConfig()
	loaded := Config{
		ServiceName: "from-file",
		Transport:   TransportConfig{Retries: 5, RetryDelayMS: 250},
		Providers: map[string]ProviderConfig{
			"QuickBooks": {ClientID: "client", Concurrency: 4},
		},
	}
	runtime := Config{Transport: TransportConfig{Retries: 1}}

	cfg, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.ServiceName != "from-file" {
		t.Fatalf("expected loaded service name, got %q", cfg.ServiceName)
	}
	if cfg.Transport.Retries != 1 {
		t.Fatalf("expected runtime retries, got %d", cfg.Transport.Retries)
	}
	if cfg.Transport.RetryDelayMS != 250 {
		t.Fatalf("expected loaded retry delay, got %d", cfg.Transport.RetryDelayMS)
	}
	if cfg.Transport.TimeoutMS != DefaultRequestTimeoutMS {
		t.Fatalf("expected default timeout, got %d", cfg.Transport.TimeoutMS)
	}
	if cfg.ProviderConcurrency("quickbooks") != 4 {
		t.Fatalf("expected provider keys to be normalized, got %+v", cfg.Providers)
	}
}

func TestCfgxConfigProvider_LoadsRawValues(t *testing.T) {
	provider := NewCfgxConfigProvider(NewStaticConfigLoader(map[string]any{
		"service_name": "gateway",
		"credentials": map[string]any{
			"expiry_buffer_seconds": 120,
		},
	}))

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "gateway" {
		t.Fatalf("expected raw service name, got %q", cfg.ServiceName)
	}
	if cfg.ExpiryBuffer().Seconds() != 120 {
		t.Fatalf("expected 120s buffer, got %v", cfg.ExpiryBuffer())
	}
	if cfg.Encryption.KDFIterations != DefaultKDFIterations {
		t.Fatalf("expected defaults to fill unset keys, got %d", cfg.Encryption.KDFIterations)
	}
}

func TestCfgxConfigProvider_RejectsInvalidValues(t *testing.T) {
	provider := NewCfgxConfigProvider(NewStaticConfigLoader(map[string]any{
		"database": map[string]any{"driver": "oracle"},
	}))
	if _, err := provider.Load(context.Background(), DefaultConfig()); err == nil {
		t.Fatalf("expected unsupported driver to fail validation")
	}
}

func TestConfigValidate_NegativeValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transport.Retries = -1
	cfg.Providers["tms"] = ProviderConfig{Concurrency: -2}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected negative settings to fail validation")
	}
}
