package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"
)

type testCipher struct{}

func (testCipher) Encrypt(_ context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("test cipher: plaintext is required")
	}
	return "enc:" + base64.StdEncoding.EncodeToString([]byte(plaintext)), nil
}

func (testCipher) Decrypt(_ context.Context, ciphertext string) (string, error) {
	value := strings.TrimSpace(ciphertext)
	if !strings.HasPrefix(value, "enc:") {
		return "", fmt.Errorf("%w: missing prefix", ErrDecrypt)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "enc:"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(decoded), nil
}

func mustEncrypt(value string) string {
	out, err := testCipher{}.Encrypt(context.Background(), value)
	if err != nil {
		panic(err)
	}
	return out
}

type stubRefresher struct {
	mu     sync.Mutex
	calls  int
	tokens []string
	token  OAuthToken
	err    error
	delay  time.Duration
}

func (r *stubRefresher) Refresh(_ context.Context, _ Provider, refreshToken string) (OAuthToken, error) {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.tokens = append(r.tokens, refreshToken)
	if r.err != nil {
		return OAuthToken{}, r.err
	}
	return r.token, nil
}

func (r *stubRefresher) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type stubConnector struct {
	token    OAuthToken
	err      error
	codes    []string
	lastURLs []string
}

func (c *stubConnector) AuthCodeURL(provider Provider, state string) (string, error) {
	url := "https://auth.example.com/" + string(provider) + "?state=" + state
	c.lastURLs = append(c.lastURLs, url)
	return url, nil
}

func (c *stubConnector) Exchange(_ context.Context, _ Provider, code string) (OAuthToken, error) {
	c.codes = append(c.codes, code)
	if c.err != nil {
		return OAuthToken{}, c.err
	}
	return c.token, nil
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(now time.Time) *fixedClock {
	return &fixedClock{now: now.UTC()}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func seedOAuthIntegration(store *MemoryIntegrationStore, key IntegrationKey, access, refresh string, expiresAt time.Time) Integration {
	rec, err := store.Upsert(context.Background(), UpsertIntegrationInput{
		OrganizationID:        key.OrganizationID,
		Provider:              key.Provider,
		Status:                IntegrationStatusConnected,
		AccessTokenEncrypted:  mustEncrypt(access),
		RefreshTokenEncrypted: mustEncrypt(refresh),
		TokenExpiresAt:        timePtr(expiresAt),
	})
	if err != nil {
		panic(err)
	}
	return rec
}

func newTestService(store *MemoryIntegrationStore, logs *MemorySyncLogStore, opts ...Option) (*Service, error) {
	base := []Option{
		WithCipher(testCipher{}),
		WithIntegrationStore(store),
		WithSyncLogStore(logs),
	}
	return NewService(Config{}, append(base, opts...)...)
}
