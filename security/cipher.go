package security

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-integrations/core"
	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize     = 16
	ivSize       = 12
	tagSize      = 16
	keySize      = 32
	segmentCount = 4
	separator    = ":"
)

type Option func(*Cipher)

// WithIterations sets the PBKDF2 work factor.
func WithIterations(iterations int) Option {
	return func(c *Cipher) {
		if iterations > 0 {
			c.iterations = iterations
		}
	}
}

// WithPreviousMasterKeys lets Decrypt accept values sealed under retired
// master keys. Encrypt always uses the current key.
func WithPreviousMasterKeys(keys ...string) Option {
	return func(c *Cipher) {
		for _, key := range keys {
			if trimmed := strings.TrimSpace(key); trimmed != "" {
				c.previous = append(c.previous, []byte(trimmed))
			}
		}
	}
}

func WithRandomSource(reader io.Reader) Option {
	return func(c *Cipher) {
		if reader != nil {
			c.random = reader
		}
	}
}

// Cipher seals secrets with AES-256-GCM under a per-value key derived from
// the master key and a random salt. Encoded values are
// salt:iv:tag:ciphertext, each segment standard base64.
type Cipher struct {
	master     []byte
	previous   [][]byte
	iterations int
	random     io.Reader
}

func NewCipher(masterKey string, opts ...Option) (*Cipher, error) {
	master := strings.TrimSpace(masterKey)
	if master == "" {
		return nil, core.ErrMasterKeyMissing
	}
	c := &Cipher{
		master:     []byte(master),
		iterations: core.DefaultKDFIterations,
		random:     rand.Reader,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c, nil
}

// NewCipherFromConfig reads encryption.master_key only.
func NewCipherFromConfig(cfg core.Config, opts ...Option) (*Cipher, error) {
	base := []Option{WithIterations(cfg.Encryption.KDFIterations)}
	return NewCipher(cfg.Encryption.MasterKey, append(base, opts...)...)
}

func (c *Cipher) Encrypt(_ context.Context, plaintext string) (string, error) {
	if c == nil || len(c.master) == 0 {
		return "", core.ErrMasterKeyMissing
	}
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(c.random, salt); err != nil {
		return "", fmt.Errorf("security: salt generation failed: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(c.random, iv); err != nil {
		return "", fmt.Errorf("security: iv generation failed: %w", err)
	}
	gcm, err := c.aead(c.master, salt)
	if err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	body, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]
	return strings.Join([]string{
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(iv),
		base64.StdEncoding.EncodeToString(tag),
		base64.StdEncoding.EncodeToString(body),
	}, separator), nil
}

func (c *Cipher) Decrypt(_ context.Context, encoded string) (string, error) {
	if c == nil || len(c.master) == 0 {
		return "", core.ErrMasterKeyMissing
	}
	parts, err := decodeSegments(encoded)
	if err != nil {
		return "", err
	}
	salt, iv, tag, body := parts[0], parts[1], parts[2], parts[3]
	sealed := make([]byte, 0, len(body)+len(tag))
	sealed = append(sealed, body...)
	sealed = append(sealed, tag...)

	var lastErr error
	for _, key := range c.keys() {
		gcm, err := c.aead(key, salt)
		if err != nil {
			return "", err
		}
		plaintext, err := gcm.Open(nil, iv, sealed, nil)
		if err == nil {
			return string(plaintext), nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("security: %w: %v", core.ErrDecrypt, lastErr)
}

// Reencrypt opens a value with any known key and seals it under the current
// master key.
func (c *Cipher) Reencrypt(ctx context.Context, encoded string) (string, error) {
	plaintext, err := c.Decrypt(ctx, encoded)
	if err != nil {
		return "", err
	}
	return c.Encrypt(ctx, plaintext)
}

func (c *Cipher) keys() [][]byte {
	out := make([][]byte, 0, 1+len(c.previous))
	out = append(out, c.master)
	return append(out, c.previous...)
}

func (c *Cipher) aead(master []byte, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(master, salt, c.iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithTagSize(block, tagSize)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

func decodeSegments(encoded string) ([][]byte, error) {
	segments := strings.Split(strings.TrimSpace(encoded), separator)
	if len(segments) != segmentCount {
		return nil, fmt.Errorf("security: %w: expected %d segments, got %d", core.ErrDecrypt, segmentCount, len(segments))
	}
	out := make([][]byte, segmentCount)
	for i, segment := range segments {
		decoded, err := base64.StdEncoding.DecodeString(segment)
		if err != nil {
			return nil, fmt.Errorf("security: %w: segment %d: %v", core.ErrDecrypt, i, err)
		}
		out[i] = decoded
	}
	switch {
	case len(out[0]) != saltSize:
		return nil, fmt.Errorf("security: %w: salt length %d", core.ErrDecrypt, len(out[0]))
	case len(out[1]) != ivSize:
		return nil, fmt.Errorf("security: %w: iv length %d", core.ErrDecrypt, len(out[1]))
	case len(out[2]) != tagSize:
		return nil, fmt.Errorf("security: %w: tag length %d", core.ErrDecrypt, len(out[2]))
	}
	return out, nil
}

var _ core.SecretCipher = (*Cipher)(nil)
