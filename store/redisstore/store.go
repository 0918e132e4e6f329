// Package redisstore persists identities in Redis, one JSON value per
// normalized email.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// DefaultPrefix namespaces identity keys.
const DefaultPrefix = "authcore:identity"

type storedIdentity struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store implements authcore.IdentityStore on top of a Redis client.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// New returns a Store writing keys under prefix. An empty prefix selects
// DefaultPrefix.
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) key(email string) string {
	return s.prefix + ":" + email
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return oops.Code("IDENTITY_STORE_UNAVAILABLE").Wrap(err)
	}
	return nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (authcore.IdentityRecord, error) {
	email = authcore.NormalizeEmail(email)

	raw, err := s.redis.Get(ctx, s.key(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return authcore.IdentityRecord{}, authcore.ErrIdentityNotFound
	}
	if err != nil {
		return authcore.IdentityRecord{}, oops.
			Code("IDENTITY_STORE_UNAVAILABLE").
			With("email", email).
			Wrap(err)
	}

	var stored storedIdentity
	if err := json.Unmarshal(raw, &stored); err != nil {
		return authcore.IdentityRecord{}, oops.
			Code("IDENTITY_RECORD_CORRUPT").
			With("email", email).
			Wrap(err)
	}

	return authcore.IdentityRecord{
		ID:           stored.ID,
		Email:        stored.Email,
		PasswordHash: stored.PasswordHash,
		CreatedAt:    stored.CreatedAt,
	}, nil
}

// Insert writes rec with SETNX so that only the first writer for an email
// succeeds.
func (s *Store) Insert(ctx context.Context, rec authcore.IdentityRecord) error {
	rec.Email = authcore.NormalizeEmail(rec.Email)

	raw, err := json.Marshal(storedIdentity{
		ID:           rec.ID,
		Email:        rec.Email,
		PasswordHash: rec.PasswordHash,
		CreatedAt:    rec.CreatedAt.UTC(),
	})
	if err != nil {
		return oops.Code("IDENTITY_ENCODE_FAILED").With("email", rec.Email).Wrap(err)
	}

	created, err := s.redis.SetNX(ctx, s.key(rec.Email), raw, 0).Result()
	if err != nil {
		return oops.
			Code("IDENTITY_STORE_UNAVAILABLE").
			With("email", rec.Email).
			Wrap(err)
	}
	if !created {
		return authcore.ErrEmailAlreadyRegistered
	}
	return nil
}
