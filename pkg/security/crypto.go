// Package security implements the cryptographic trust boundary for inbound
// messages: HMAC-SHA256 signature verification and AES-256-GCM authenticated
// decryption.
//
// Every failure mode in this package - bad signature, malformed encoding,
// truncated payload, tag mismatch, non-UTF-8 plaintext - collapses to the
// single opaque [ErrAuthenticationFailed]. The specific cause is never
// surfaced to callers or logged, to avoid oracle attacks.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/relaymesh/smsgate/pkg/message"
)

// ErrAuthenticationFailed is the single error returned for any signature or
// decryption failure. Callers branch on this sentinel, never on cause text.
var ErrAuthenticationFailed = errors.New("authentication failed")

const (
	keySize   = 32 // AES-256 and HMAC-SHA256 keys
	nonceSize = 12 // GCM nonce, prefixed to ciphertext
	tagSize   = 16 // GCM tag, appended to ciphertext
)

// Gate holds the two process-wide secrets and performs signature
// verification and authenticated decryption. Both keys are loaded once at
// startup and are read-only afterwards; they are never logged or re-derived.
type Gate struct {
	aead   cipher.AEAD
	macKey []byte
}

// NewGate creates a Gate from a 32-byte AES key and a 32-byte MAC key.
func NewGate(aesKey, macKey []byte) (*Gate, error) {
	if len(aesKey) != keySize {
		return nil, fmt.Errorf("aes key must be %d bytes, got %d", keySize, len(aesKey))
	}
	if len(macKey) != keySize {
		return nil, fmt.Errorf("mac key must be %d bytes, got %d", keySize, len(macKey))
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	key := make([]byte, keySize)
	copy(key, macKey)

	return &Gate{aead: aead, macKey: key}, nil
}

// VerifySignature computes HMAC-SHA256 over the raw transport-encoded
// payload bytes and compares it against the hex-encoded signature in
// constant time. It never fails with an error and never exposes the
// expected value.
func (g *Gate) VerifySignature(payload, signature string) bool {
	sig, err := hex.DecodeString(signature)
	if err != nil || len(sig) != sha256.Size {
		return false
	}

	mac := hmac.New(sha256.New, g.macKey)
	mac.Write([]byte(payload))

	return hmac.Equal(mac.Sum(nil), sig)
}

// Sign returns the hex HMAC-SHA256 signature for a transport-encoded
// payload. Used by relay provisioning tools and tests.
func (g *Gate) Sign(payload string) string {
	mac := hmac.New(sha256.New, g.macKey)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Decrypt base64-decodes the payload, splits the 12-byte nonce from the
// ciphertext-plus-tag, and opens it with AES-256-GCM. The plaintext must be
// valid UTF-8. Any failure returns ErrAuthenticationFailed.
func (g *Gate) Decrypt(payload string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", ErrAuthenticationFailed
	}
	if len(data) < nonceSize+tagSize {
		return "", ErrAuthenticationFailed
	}

	nonce := data[:nonceSize]
	plaintext, err := g.aead.Open(nil, nonce, data[nonceSize:], nil)
	if err != nil {
		return "", ErrAuthenticationFailed
	}
	if !utf8.Valid(plaintext) {
		return "", ErrAuthenticationFailed
	}

	return string(plaintext), nil
}

// Encrypt seals plaintext with a random nonce and returns the
// base64-encoded IV||ciphertext||tag. The counterpart of Decrypt; relays
// use the same construction on the sending side.
func (g *Gate) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := g.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// VerifyAndDecrypt checks the envelope signature and, only if it is valid,
// decrypts the payload. The signature check runs strictly first so a bad
// signature never reaches the AEAD and cannot produce a decryption-timing
// signal.
func (g *Gate) VerifyAndDecrypt(env *message.EncryptedEnvelope) (string, error) {
	if !g.VerifySignature(env.Payload, env.Signature) {
		return "", ErrAuthenticationFailed
	}
	return g.Decrypt(env.Payload)
}
