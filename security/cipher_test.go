package security

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-integrations/core"
)

func newTestCipher(t *testing.T, key string, opts ...Option) *Cipher {
	t.Helper()
	c, err := NewCipher(key, append([]Option{WithIterations(1000)}, opts...)...)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	return c
}

func TestCipher_EncryptDecryptRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestCipher(t, "master-key-for-tests")
	for _, plaintext := range []string{"token-value-123", "", `{"api_key":"k","password":"p"}`, strings.Repeat("x", 4096)} {
		encrypted, err := c.Encrypt(ctx, plaintext)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		if plaintext != "" && strings.Contains(encrypted, plaintext) {
			t.Fatalf("expected ciphertext to hide plaintext")
		}
		if got := strings.Count(encrypted, ":"); got != 3 {
			t.Fatalf("expected four segments, got %d separators", got)
		}
		decrypted, err := c.Decrypt(ctx, encrypted)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if decrypted != plaintext {
			t.Fatalf("expected roundtrip plaintext; got %q", decrypted)
		}
	}
}

func TestCipher_EncryptionIsNonDeterministic(t *testing.T) {
	ctx := context.Background()
	c := newTestCipher(t, "master-key-for-tests")
	first, _ := c.Encrypt(ctx, "same")
	second, _ := c.Encrypt(ctx, "same")
	if first == second {
		t.Fatalf("expected fresh salt and iv per encryption")
	}
	firstSalt := strings.Split(first, ":")[0]
	secondSalt := strings.Split(second, ":")[0]
	if firstSalt == secondSalt {
		t.Fatalf("expected distinct salts")
	}
}

func TestCipher_TamperedTagFails(t *testing.T) {
	ctx := context.Background()
	c := newTestCipher(t, "master-key-for-tests")
	encrypted, err := c.Encrypt(ctx, "carrier-payment-token")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	segments := strings.Split(encrypted, ":")
	tag, _ := base64.StdEncoding.DecodeString(segments[2])
	for i := range tag {
		mutated := append([]byte(nil), tag...)
		mutated[i] ^= 0x01
		segments[2] = base64.StdEncoding.EncodeToString(mutated)
		tampered := strings.Join(segments, ":")
		plaintext, err := c.Decrypt(ctx, tampered)
		if err == nil {
			t.Fatalf("expected tag byte %d tamper to fail, got %q", i, plaintext)
		}
		if !errors.Is(err, core.ErrDecrypt) {
			t.Fatalf("expected decrypt error, got %v", err)
		}
	}
}

func TestCipher_TamperedCiphertextAndSaltFail(t *testing.T) {
	ctx := context.Background()
	c := newTestCipher(t, "master-key-for-tests")
	encrypted, _ := c.Encrypt(ctx, "payload")
	for _, index := range []int{0, 1, 3} {
		segments := strings.Split(encrypted, ":")
		raw, _ := base64.StdEncoding.DecodeString(segments[index])
		raw[0] ^= 0x80
		segments[index] = base64.StdEncoding.EncodeToString(raw)
		if _, err := c.Decrypt(ctx, strings.Join(segments, ":")); err == nil {
			t.Fatalf("expected segment %d tamper to fail", index)
		}
	}
}

func TestCipher_MalformedInputFails(t *testing.T) {
	c := newTestCipher(t, "master-key-for-tests")
	for _, input := range []string{"", "plain-token", "a:b:c", "!!:!!:!!:!!", "AAAA:AAAA:AAAA:AAAA"} {
		if _, err := c.Decrypt(context.Background(), input); !errors.Is(err, core.ErrDecrypt) {
			t.Fatalf("expected decrypt error for %q, got %v", input, err)
		}
	}
}

func TestCipher_WrongKeyFails(t *testing.T) {
	ctx := context.Background()
	issuer := newTestCipher(t, "key-one")
	receiver := newTestCipher(t, "key-two")
	encrypted, _ := issuer.Encrypt(ctx, "payload")
	if _, err := receiver.Decrypt(ctx, encrypted); err == nil {
		t.Fatalf("expected wrong key to fail")
	}
}

func TestCipher_PreviousKeysDecryptAndReencrypt(t *testing.T) {
	ctx := context.Background()
	old := newTestCipher(t, "retired-key")
	current := newTestCipher(t, "current-key", WithPreviousMasterKeys("retired-key"))
	legacy, _ := old.Encrypt(ctx, "payload")

	if got, err := current.Decrypt(ctx, legacy); err != nil || got != "payload" {
		t.Fatalf("expected retired key to decrypt, got %q err=%v", got, err)
	}
	rotated, err := current.Reencrypt(ctx, legacy)
	if err != nil {
		t.Fatalf("reencrypt: %v", err)
	}
	if _, err := old.Decrypt(ctx, rotated); err == nil {
		t.Fatalf("expected rotated value to be sealed under the current key")
	}
}

func TestNewCipher_FailsFastWithoutMasterKey(t *testing.T) {
	if _, err := NewCipher("   "); !errors.Is(err, core.ErrMasterKeyMissing) {
		t.Fatalf("expected master key missing, got %v", err)
	}
	cfg := core.DefaultConfig()
	if _, err := NewCipherFromConfig(cfg); !errors.Is(err, core.ErrMasterKeyMissing) {
		t.Fatalf("expected config without master key to fail, got %v", err)
	}
	cfg.Encryption.MasterKey = "configured"
	cfg.Encryption.KDFIterations = 1000
	if _, err := NewCipherFromConfig(cfg); err != nil {
		t.Fatalf("expected configured key to work: %v", err)
	}
}
