// Package memstore is a process-local IdentityStore backed by a map.
package memstore

import (
	"context"
	"sync"

	"github.com/MrEthical07/authcore"
)

// Store keeps identities in memory keyed by normalized email. It is safe for
// concurrent use and loses its contents on restart.
type Store struct {
	mu      sync.RWMutex
	records map[string]authcore.IdentityRecord
}

// New returns an empty Store.
func New() *Store {
	return &Store{records: make(map[string]authcore.IdentityRecord)}
}

func (s *Store) FindByEmail(_ context.Context, email string) (authcore.IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[authcore.NormalizeEmail(email)]
	if !ok {
		return authcore.IdentityRecord{}, authcore.ErrIdentityNotFound
	}
	return rec, nil
}

// Insert adds rec unless its email is already present.
func (s *Store) Insert(_ context.Context, rec authcore.IdentityRecord) error {
	rec.Email = authcore.NormalizeEmail(rec.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.Email]; exists {
		return authcore.ErrEmailAlreadyRegistered
	}
	s.records[rec.Email] = rec
	return nil
}

// Len returns the number of stored identities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
