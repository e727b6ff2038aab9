// Package storage provides the ephemeral stores behind the ingestion
// pipeline: message fingerprints for at-most-once deduplication and
// short-lived verification codes.
//
// # Interface Design
//
//   - [DedupStore]: atomic fingerprint registration with per-type TTL
//   - [VerificationStore]: keyed codes with explicit TTL
//
// The [Store] interface combines both plus lifecycle methods.
//
// # Implementations
//
// The mongodb sub-package is the remote backing store; the memory
// sub-package is the in-process fallback used when no store is configured.
// Both registration paths are atomic: concurrent arrivals of the same
// fingerprint resolve such that exactly one caller observes first-seen.
//
// Only fingerprints are stored, never message content. Nothing in this
// package is persisted beyond its TTL.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/relaymesh/smsgate/pkg/message"
)

// ErrUnavailable indicates the backing store could not be reached. It is a
// hard failure for the affected request, not fatal to the process.
var ErrUnavailable = errors.New("storage unavailable")

// Store combines the dedup and verification capabilities.
type Store interface {
	DedupStore
	VerificationStore

	// Close releases storage resources.
	Close(ctx context.Context) error
}

// DedupStore records message fingerprints with type-dependent TTL.
type DedupStore interface {
	// TryRegister records the fingerprint if it is not already present.
	// It reports true when this call was the first to register the
	// fingerprint within its TTL. The check-and-set is atomic.
	TryRegister(ctx context.Context, fingerprint, sender string, t message.Type) (firstSeen bool, err error)

	// HealthCheck reports whether the backing store is reachable.
	HealthCheck(ctx context.Context) bool
}

// VerificationStore holds short-lived verification codes and registration
// tokens, keyed by an opaque string.
type VerificationStore interface {
	PutCode(ctx context.Context, key, value string, ttl time.Duration) error
	GetCode(ctx context.Context, key string) (value string, found bool, err error)
	DeleteCode(ctx context.Context, key string) error
}

// DedupEntry is the stored fingerprint record. The fingerprint is the only
// identity; original message content is never stored alongside it.
type DedupEntry struct {
	Fingerprint string
	Sender      string
	Type        message.Type
	ExpiresAt   time.Time
}

// TTLPolicy holds the per-type fingerprint lifetimes. Range invariants are
// enforced at startup by the configuration layer, not here.
type TTLPolicy struct {
	OTP           time.Duration
	Transaction   time.Duration
	Bill          time.Duration
	SecurityAlert time.Duration
}

// DefaultTTLPolicy returns the stock per-type TTLs.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		OTP:           300 * time.Second,
		Transaction:   600 * time.Second,
		Bill:          900 * time.Second,
		SecurityAlert: 600 * time.Second,
	}
}

// ForType returns the TTL for a message type. UNKNOWN deliberately maps to
// the OTP TTL: unclassified traffic is treated as highest-urgency and
// shortest-lived.
func (p TTLPolicy) ForType(t message.Type) time.Duration {
	switch t {
	case message.TypeTransaction:
		return p.Transaction
	case message.TypeBill:
		return p.Bill
	case message.TypeSecurityAlert:
		return p.SecurityAlert
	default:
		return p.OTP
	}
}
