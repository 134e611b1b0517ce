package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultOAuthStateTTL = 15 * time.Minute

var ErrOAuthStateInvalid = errors.New("core: oauth state is invalid")

// OAuthState ties an authorization redirect to the organization that began it.
type OAuthState struct {
	State          string
	OrganizationID string
	Provider       Provider
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

type OAuthStateStore interface {
	Save(ctx context.Context, state OAuthState) error
	// Consume returns and deletes the state; a state is usable once.
	Consume(ctx context.Context, state string) (OAuthState, error)
}

type MemoryOAuthStateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]OAuthState
	now     func() time.Time
}

func NewMemoryOAuthStateStore(ttl time.Duration) *MemoryOAuthStateStore {
	if ttl <= 0 {
		ttl = defaultOAuthStateTTL
	}
	return &MemoryOAuthStateStore{
		ttl:     ttl,
		entries: map[string]OAuthState{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryOAuthStateStore) Save(_ context.Context, record OAuthState) error {
	if s == nil {
		return fmt.Errorf("core: oauth state store is not configured")
	}
	state := strings.TrimSpace(record.State)
	if state == "" {
		return fmt.Errorf("core: oauth state is required")
	}

	now := s.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	s.mu.Lock()
	s.entries[state] = record
	s.mu.Unlock()
	return nil
}

func (s *MemoryOAuthStateStore) Consume(_ context.Context, state string) (OAuthState, error) {
	if s == nil {
		return OAuthState{}, fmt.Errorf("core: oauth state store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return OAuthState{}, fmt.Errorf("core: oauth state is required")
	}

	s.mu.Lock()
	record, ok := s.entries[state]
	if ok {
		delete(s.entries, state)
	}
	s.mu.Unlock()

	if !ok {
		return OAuthState{}, fmt.Errorf("%w: not found", ErrOAuthStateInvalid)
	}
	if !record.ExpiresAt.IsZero() && s.now().After(record.ExpiresAt) {
		return OAuthState{}, fmt.Errorf("%w: expired", ErrOAuthStateInvalid)
	}
	return record, nil
}

func generateOAuthState() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
