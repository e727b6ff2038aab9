// Package memory implements the storage interfaces with in-process maps.
// It is the fallback when no remote store is configured. A single mutex
// guards check-and-set; expired entries are removed by a lazy sweep run
// before each lookup, so no background timer is required.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/relaymesh/smsgate/internal/storage"
	"github.com/relaymesh/smsgate/pkg/message"
)

type codeEntry struct {
	value     string
	expiresAt time.Time
}

// Store implements storage.Store in process memory.
type Store struct {
	mu           sync.Mutex
	ttl          storage.TTLPolicy
	fingerprints map[string]storage.DedupEntry
	codes        map[string]codeEntry

	// now is replaceable in tests to simulate TTL expiry.
	now func() time.Time
}

// NewStore creates an empty in-memory store with the given TTL policy.
func NewStore(ttl storage.TTLPolicy) *Store {
	return &Store{
		ttl:          ttl,
		fingerprints: make(map[string]storage.DedupEntry),
		codes:        make(map[string]codeEntry),
		now:          time.Now,
	}
}

// TryRegister records the fingerprint unless a live entry already exists.
// The mutex makes the check-and-insert atomic with respect to concurrent
// arrivals of the same fingerprint.
func (s *Store) TryRegister(_ context.Context, fingerprint, sender string, t message.Type) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()

	if _, exists := s.fingerprints[fingerprint]; exists {
		return false, nil
	}

	s.fingerprints[fingerprint] = storage.DedupEntry{
		Fingerprint: fingerprint,
		Sender:      sender,
		Type:        t,
		ExpiresAt:   s.now().Add(s.ttl.ForType(t)),
	}
	return true, nil
}

// HealthCheck always succeeds; process memory has no remote dependency.
func (s *Store) HealthCheck(_ context.Context) bool {
	return true
}

func (s *Store) PutCode(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.codes[key] = codeEntry{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *Store) GetCode(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()

	entry, ok := s.codes[key]
	if !ok {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (s *Store) DeleteCode(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.codes, key)
	return nil
}

// Close discards all entries.
func (s *Store) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fingerprints = make(map[string]storage.DedupEntry)
	s.codes = make(map[string]codeEntry)
	return nil
}

// sweepLocked removes expired entries. Callers must hold the mutex.
func (s *Store) sweepLocked() {
	now := s.now()
	for key, entry := range s.fingerprints {
		if !now.Before(entry.ExpiresAt) {
			delete(s.fingerprints, key)
		}
	}
	for key, entry := range s.codes {
		if !now.Before(entry.expiresAt) {
			delete(s.codes, key)
		}
	}
}
