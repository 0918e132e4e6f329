package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeStore struct {
	mu      sync.Mutex
	records map[string]IdentityRecord

	findErr   error
	insertErr error
	findCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]IdentityRecord{}}
}

func (s *fakeStore) FindByEmail(_ context.Context, email string) (IdentityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if s.findErr != nil {
		return IdentityRecord{}, s.findErr
	}
	rec, ok := s.records[email]
	if !ok {
		return IdentityRecord{}, ErrIdentityNotFound
	}
	return rec, nil
}

func (s *fakeStore) Insert(_ context.Context, rec IdentityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	if _, ok := s.records[rec.Email]; ok {
		return ErrEmailAlreadyRegistered
	}
	s.records[rec.Email] = rec
	return nil
}

func (s *fakeStore) remove(email string) {
	s.mu.Lock()
	delete(s.records, email)
	s.mu.Unlock()
}

var errBackendDown = errors.New("connection refused")

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = testSecret
	cfg.Password.BcryptCost = 4
	cfg.Lockout.SweepInterval = 0
	return cfg
}

type testEngine struct {
	*Engine
	store *fakeStore
	clock *fakeClock
}

func newTestEngine(t *testing.T, mutate func(*Config)) testEngine {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	store := newFakeStore()
	clock := newFakeClock()

	engine, err := New().
		WithConfig(cfg).
		WithIdentityStore(store).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	return testEngine{Engine: engine, store: store, clock: clock}
}
