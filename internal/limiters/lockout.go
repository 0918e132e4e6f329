package limiters

import (
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal/rate"
)

// LockoutConfig holds configuration for the failed-login attempt tracker.
type LockoutConfig struct {
	Threshold  int
	Window     time.Duration
	MaxClients int
	Now        func() time.Time
}

// State is the lockout state of one client.
type State uint8

const (
	StateClear State = iota
	StateAccumulating
	StateLockedOut
)

var (
	// ErrInvalidLockoutConfig indicates a non-positive threshold, window or client cap.
	ErrInvalidLockoutConfig = errors.New("invalid lockout configuration")
)

// AttemptTracker counts failed logins per client identifier over a trailing
// window and reports lockout once the count reaches the threshold.
//
// Lockout ends either through Clear (a successful login) or passively when
// enough failures age out of the window.
//
// Memory is bounded by MaxClients. Past that, the least recently touched
// client's history is evicted, so MaxClients distinct failing clients can
// push out a locked-out client and end its lockout early. Size MaxClients
// above the number of distinct clients expected to fail within one Window.
type AttemptTracker struct {
	failures  *rate.Window
	threshold int
	now       func() time.Time
}

// NewAttemptTracker creates a tracker. Each client keeps at most Threshold
// timestamps: the newest Threshold failures decide lockout on their own.
func NewAttemptTracker(cfg LockoutConfig) (*AttemptTracker, error) {
	if cfg.Threshold <= 0 || cfg.Window <= 0 || cfg.MaxClients <= 0 {
		return nil, ErrInvalidLockoutConfig
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	w, err := rate.NewWindow(cfg.Window, cfg.MaxClients, cfg.Threshold)
	if err != nil {
		return nil, err
	}

	return &AttemptTracker{
		failures:  w,
		threshold: cfg.Threshold,
		now:       cfg.Now,
	}, nil
}

// RecordFailure appends a failure for clientID and returns the number of
// failures inside the window.
func (t *AttemptTracker) RecordFailure(clientID string) int {
	return t.failures.Record(clientID, t.now())
}

// IsLockedOut prunes aged failures and reports whether clientID has reached
// the threshold.
func (t *AttemptTracker) IsLockedOut(clientID string) bool {
	return t.failures.Count(clientID, t.now()) >= t.threshold
}

// Clear drops the failure history of clientID.
func (t *AttemptTracker) Clear(clientID string) {
	t.failures.Clear(clientID)
}

// State reports the current state of clientID.
func (t *AttemptTracker) State(clientID string) State {
	n := t.failures.Count(clientID, t.now())
	switch {
	case n == 0:
		return StateClear
	case n >= t.threshold:
		return StateLockedOut
	default:
		return StateAccumulating
	}
}

// Failures returns the number of failures inside the window for clientID.
func (t *AttemptTracker) Failures(clientID string) int {
	return t.failures.Count(clientID, t.now())
}

// Sweep evicts clients whose failures have all aged out.
func (t *AttemptTracker) Sweep() int {
	return t.failures.Sweep(t.now())
}

// Tracked returns the number of clients with failure history.
func (t *AttemptTracker) Tracked() int {
	return t.failures.Len()
}
