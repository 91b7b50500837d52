package accounts

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const cipherPrefix = "enc:v1:"

// TokenCipher encrypts stored token values with AES-GCM. The key is
// derived from a configured secret; with no secret the cipher is a
// pass-through, so plaintext deployments keep working.
type TokenCipher struct {
	aead cipher.AEAD
}

func NewTokenCipher(secret string) (*TokenCipher, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &TokenCipher{}, nil
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("accounts: token cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("accounts: token cipher: %w", err)
	}
	return &TokenCipher{aead: aead}, nil
}

func (c *TokenCipher) Enabled() bool {
	return c != nil && c.aead != nil
}

func (c *TokenCipher) Encrypt(value string) (string, error) {
	if !c.Enabled() || value == "" {
		return value, nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("accounts: encrypt: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(value), nil)
	return cipherPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Values without the cipher prefix are
// returned as-is so pre-encryption rows stay readable.
func (c *TokenCipher) Decrypt(value string) (string, error) {
	if !c.Enabled() || !strings.HasPrefix(value, cipherPrefix) {
		return value, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, cipherPrefix))
	if err != nil {
		return "", fmt.Errorf("accounts: decrypt: %w", err)
	}
	if len(raw) < c.aead.NonceSize() {
		return "", fmt.Errorf("accounts: decrypt: ciphertext too short")
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("accounts: decrypt: %w", err)
	}
	return string(plain), nil
}

var bearerPattern = regexp.MustCompile(`(?i)\bbearer\s+[a-z0-9\-._~+/]+=*`)
var tokenFieldPattern = regexp.MustCompile(`(?i)\b(access|refresh|id)_token\b[^,\n]*`)

// RedactSensitiveText masks bearer credentials and token fields before
// a value reaches a log line or an error message.
func RedactSensitiveText(value string) string {
	if value == "" {
		return ""
	}
	out := bearerPattern.ReplaceAllString(value, "Bearer [REDACTED]")
	return tokenFieldPattern.ReplaceAllString(out, "[REDACTED_TOKEN_FIELD]")
}
