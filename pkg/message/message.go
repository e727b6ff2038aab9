// Package message defines the data model shared by the ingestion pipeline:
// the message type taxonomy, the inbound encrypted envelope, and the
// classification result.
//
// Envelopes exist only for the duration of one pipeline pass and are never
// persisted. No type in this package carries decrypted content beyond what
// the caller supplied.
package message

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Type categorizes a forwarded message. The set is closed; anything that
// does not parse to one of the named categories is rejected at the
// deserialization boundary rather than coerced.
type Type string

const (
	TypeOTP           Type = "OTP"
	TypeTransaction   Type = "TRANSACTION"
	TypeBill          Type = "BILL"
	TypeSecurityAlert Type = "SECURITY_ALERT"
	TypeUnknown       Type = "UNKNOWN"
)

// ParseType converts a wire string into a Type. The empty string maps to
// TypeUnknown (the field is optional on the wire); any other unrecognized
// value is an error.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeOTP, TypeTransaction, TypeBill, TypeSecurityAlert, TypeUnknown:
		return Type(s), nil
	case "":
		return TypeUnknown, nil
	default:
		return TypeUnknown, fmt.Errorf("unknown message type %q", s)
	}
}

// UnmarshalJSON enforces the closed enum on the wire.
func (t *Type) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Valid reports whether t is one of the named categories.
func (t Type) Valid() bool {
	_, err := ParseType(string(t))
	return err == nil && t != ""
}

// EncryptedEnvelope is the inbound unit of work. Payload holds the
// transport-encoded IV||ciphertext||tag; Signature is the hex HMAC over the
// encoded payload. The envelope is immutable once received.
type EncryptedEnvelope struct {
	Payload         string // base64, 1-2048 chars
	Signature       string // 64 hex chars
	Sender          string // free-text label, <=100 chars
	DeclaredType    Type
	Timestamp       int64  // Unix seconds, caller-supplied
	PrecomputedHash string // optional 64 hex chars, caller-side SHA-256
}

// HasValidHash reports whether PrecomputedHash is a well-formed 32-byte hex
// digest. A malformed hash is ignored, not an error; the pipeline falls back
// to hashing the plaintext itself.
func (e *EncryptedEnvelope) HasValidHash() bool {
	if len(e.PrecomputedHash) != 64 {
		return false
	}
	_, err := hex.DecodeString(e.PrecomputedHash)
	return err == nil
}

// ClassificationResult is produced fresh per classification call.
// Metadata carries only non-sensitive signal flags (booleans, urgency
// levels) - never matched digits, amounts, or account fragments.
type ClassificationResult struct {
	Type       Type
	Confidence float64 // 0.0 - 1.0
	Metadata   map[string]any
}
