// Package storetest is a conformance suite for authcore.IdentityStore
// implementations. Adapters call Run from their own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/authcore"
)

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) authcore.IdentityStore

// Run checks the IdentityStore contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("FindMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FindByEmail(context.Background(), "nobody@example.com")
		require.ErrorIs(t, err, authcore.ErrIdentityNotFound)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, s.Insert(ctx, authcore.IdentityRecord{
			ID:           "id-round-trip",
			Email:        "Round@Trip.example",
			PasswordHash: "$2a$04$abcdefghijklmnopqrstuv",
			CreatedAt:    created,
		}))

		got, err := s.FindByEmail(ctx, " round@trip.EXAMPLE ")
		require.NoError(t, err)
		assert.Equal(t, "id-round-trip", got.ID)
		assert.Equal(t, "round@trip.example", got.Email)
		assert.Equal(t, "$2a$04$abcdefghijklmnopqrstuv", got.PasswordHash)
		assert.True(t, created.Equal(got.CreatedAt), "created_at %v != %v", got.CreatedAt, created)
	})

	t.Run("DuplicateKeepsFirst", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Insert(ctx, authcore.IdentityRecord{ID: "first", Email: "dup@example.com", PasswordHash: "h1", CreatedAt: time.Now()}))
		err := s.Insert(ctx, authcore.IdentityRecord{ID: "second", Email: "DUP@example.com", PasswordHash: "h2", CreatedAt: time.Now()})
		require.ErrorIs(t, err, authcore.ErrEmailAlreadyRegistered)

		got, err := s.FindByEmail(ctx, "dup@example.com")
		require.NoError(t, err)
		assert.Equal(t, "first", got.ID)
		assert.Equal(t, "h1", got.PasswordHash)
	})

	t.Run("ConcurrentInsertSingleWinner", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		const writers = 16
		var (
			wg   sync.WaitGroup
			wins atomic.Int32
			dups atomic.Int32
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.Insert(ctx, authcore.IdentityRecord{
					ID:           fmt.Sprintf("writer-%d", i),
					Email:        "race@example.com",
					PasswordHash: "h",
					CreatedAt:    time.Now(),
				})
				switch {
				case err == nil:
					wins.Add(1)
				case assert.ErrorIs(t, err, authcore.ErrEmailAlreadyRegistered):
					dups.Add(1)
				}
			}(i)
		}
		wg.Wait()

		assert.EqualValues(t, 1, wins.Load())
		assert.EqualValues(t, writers-1, dups.Load())
	})
}
