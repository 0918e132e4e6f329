package authcore

import (
	"context"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
)

// IdentityRecord is the persisted form of an identity. Email is always stored
// normalized (trimmed, lower-cased).
type IdentityRecord struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Identity is the caller-facing view of an IdentityRecord. It never carries
// the password hash.
type Identity struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func identityFromRecord(rec IdentityRecord) *Identity {
	return &Identity{
		ID:        rec.ID,
		Email:     rec.Email,
		CreatedAt: rec.CreatedAt,
	}
}

// IdentityStore persists identities keyed by normalized email.
//
// FindByEmail returns ErrIdentityNotFound when no record matches. Insert must
// be insert-if-absent and return ErrEmailAlreadyRegistered when the email is
// taken, so that concurrent registrations cannot both succeed. Any other
// error is treated as a backend failure.
//
//	Implementations: store/memstore, store/redisstore, store/sqlstore
type IdentityStore interface {
	FindByEmail(ctx context.Context, email string) (IdentityRecord, error)
	Insert(ctx context.Context, rec IdentityRecord) error
}

// Token is the result of a successful Login.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"-"`
}

// RateDecision describes the outcome of a rate-limit check.
type RateDecision struct {
	Route      string
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// AttemptState is the lockout state of a login client.
type AttemptState uint8

const (
	// AttemptClear means no failures inside the lockout window.
	AttemptClear AttemptState = iota
	// AttemptAccumulating means some failures, fewer than the threshold.
	AttemptAccumulating
	// AttemptLockedOut means the threshold has been reached.
	AttemptLockedOut
)

func (s AttemptState) String() string {
	switch s {
	case AttemptClear:
		return "clear"
	case AttemptAccumulating:
		return "accumulating"
	case AttemptLockedOut:
		return "locked_out"
	default:
		return "unknown"
	}
}

// Route keys used by the bundled HTTP server. Callers may define their own.
// RouteMe and the single-todo routes have no default rule of their own and
// share RateLimitConfig.Default.
const (
	RouteLogin       = "auth.login"
	RouteRegister    = "auth.register"
	RouteMe          = "auth.me"
	RouteTodosList   = "todos.list"
	RouteTodosCreate = "todos.create"
	RouteTodosGet    = "todos.get"
	RouteTodosUpdate = "todos.update"
	RouteTodosDelete = "todos.delete"
)

// AuditEvent is the canonical audit record emitted by the Engine.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink
