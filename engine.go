package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/google/uuid"
)

// TokenTypeBearer is the token_type of every issued Token.
const TokenTypeBearer = "bearer"

// maxEmailLength follows the RFC 5321 path limit.
const maxEmailLength = 254

// Engine orchestrates registration, login, token resolution and rate
// limiting. It is safe for concurrent use. Build one with New().Build().
type Engine struct {
	config     Config
	store      IdentityStore
	hasher     password.Hasher
	dummyHash  string
	jwtManager *jwt.Manager
	tracker    *limiters.AttemptTracker
	limiter    *rate.Limiter
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
	now        func() time.Time

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Close stops the sweeper and flushes the audit dispatcher. It is safe to
// call more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.stop != nil {
			close(e.stop)
		}
		e.wg.Wait()
		e.audit.Close()
	})
}

// AuditDropped returns the number of audit events dropped because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the in-process counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Register creates an identity for email. The email is trimmed and
// lower-cased before it is validated and stored.
//
// Register returns ErrInvalidRegistration for a malformed email or a
// password outside the length policy, ErrEmailAlreadyRegistered when the
// email exists, and ErrStoreUnavailable when the backend fails.
func (e *Engine) Register(ctx context.Context, email, pw string) (*Identity, error) {
	if e == nil || e.store == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}

	email = NormalizeEmail(email)
	if err := e.validateRegistration(email, pw); err != nil {
		e.metricInc(MetricRegisterInvalid)
		e.emitAudit(ctx, auditEventRegisterFailure, false, email, "", RouteRegister, err, nil)
		return nil, err
	}

	if _, err := e.store.FindByEmail(ctx, email); err == nil {
		e.metricInc(MetricRegisterDuplicate)
		e.emitAudit(ctx, auditEventRegisterDuplicate, false, email, "", RouteRegister, ErrEmailAlreadyRegistered, nil)
		return nil, ErrEmailAlreadyRegistered
	} else if !errors.Is(err, ErrIdentityNotFound) {
		return nil, e.storeFailure(ctx, auditEventRegisterFailure, email, RouteRegister, err)
	}

	hash, err := e.hasher.Hash(pw)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	rec := IdentityRecord{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    e.now().UTC(),
	}

	// Insert is insert-if-absent, so a concurrent registration that passed
	// the lookup above still loses here.
	if err := e.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrEmailAlreadyRegistered) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, email, "", RouteRegister, ErrEmailAlreadyRegistered, nil)
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, e.storeFailure(ctx, auditEventRegisterFailure, email, RouteRegister, err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, email, "", RouteRegister, nil, func() map[string]string {
		return map[string]string{"identity_id": rec.ID}
	})

	return identityFromRecord(rec), nil
}

// Login authenticates email and password on behalf of clientID.
//
// A locked-out client gets ErrAccountLockedOut before its credentials are
// looked at, even when they are correct. Bad credentials record a failure
// for clientID and return ErrInvalidCredentials; success clears the
// client's failure history and issues a bearer token whose subject is the
// normalized email.
func (e *Engine) Login(ctx context.Context, clientID, email, pw string) (*Token, error) {
	if e == nil || e.store == nil || e.hasher == nil || e.tracker == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	email = NormalizeEmail(email)

	if e.tracker.IsLockedOut(clientID) {
		e.metricInc(MetricLoginLockedOut)
		e.emitAudit(ctx, auditEventLoginLockedOut, false, email, clientID, RouteLogin, ErrAccountLockedOut, nil)
		return nil, ErrAccountLockedOut
	}

	rec, err := e.store.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrIdentityNotFound):
		password.Matches(e.hasher, pw, e.dummyHash)
		return nil, e.loginFailure(ctx, clientID, email, "unknown_email")
	case err != nil:
		return nil, e.storeFailure(ctx, auditEventLoginFailure, email, RouteLogin, err)
	}

	if !password.Matches(e.hasher, pw, rec.PasswordHash) {
		return nil, e.loginFailure(ctx, clientID, email, "bad_password")
	}

	e.tracker.Clear(clientID)

	signed, expiresAt, err := e.jwtManager.Issue(rec.Email, e.config.JWT.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricTokenIssued)
	e.emitAudit(ctx, auditEventLoginSuccess, true, rec.Email, clientID, RouteLogin, nil, nil)

	return &Token{
		AccessToken: signed,
		TokenType:   TokenTypeBearer,
		ExpiresAt:   expiresAt,
	}, nil
}

func (e *Engine) loginFailure(ctx context.Context, clientID, email, reason string) error {
	failures := e.tracker.RecordFailure(clientID)
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, email, clientID, RouteLogin, ErrInvalidCredentials, func() map[string]string {
		return map[string]string{
			"reason":   reason,
			"failures": fmt.Sprintf("%d", failures),
		}
	})
	return ErrInvalidCredentials
}

// CurrentIdentity resolves a bearer token to the identity it names.
//
// Every failure, whether a bad signature, an expired token or a subject that
// no longer exists, is reported as ErrUnauthorized. The precise cause goes
// to the audit sink and metrics only. A backend failure during the lookup is
// ErrStoreUnavailable.
func (e *Engine) CurrentIdentity(ctx context.Context, token string) (*Identity, error) {
	if e == nil || e.store == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricIdentityLatency, time.Since(start))
		}()
	}

	subject, err := e.jwtManager.Validate(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			e.metricInc(MetricTokenExpired)
		} else {
			e.metricInc(MetricTokenInvalid)
		}
		e.emitAudit(ctx, auditEventTokenRejected, false, "", "", RouteMe, err, nil)
		return nil, ErrUnauthorized
	}

	rec, err := e.store.FindByEmail(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			e.metricInc(MetricIdentityMissing)
			e.emitAudit(ctx, auditEventTokenRejected, false, subject, "", RouteMe, ErrIdentityNotFound, nil)
			return nil, ErrUnauthorized
		}
		return nil, e.storeFailure(ctx, auditEventTokenRejected, subject, RouteMe, err)
	}

	return identityFromRecord(rec), nil
}

// Allow charges one request from clientID against route. Routes without an
// explicit rule use the default rule. When rate limiting is disabled every
// request is allowed.
//
// A rejected request is not recorded and returns ErrRateLimited together
// with a decision carrying the retry hint.
func (e *Engine) Allow(ctx context.Context, clientID, route string) (RateDecision, error) {
	if e == nil {
		return RateDecision{}, ErrEngineNotReady
	}
	if e.limiter == nil {
		return RateDecision{Route: route, Allowed: true, Remaining: -1}, nil
	}

	d := e.limiter.Allow(clientID, route)
	out := RateDecision{
		Route:      route,
		Allowed:    d.Allowed,
		Limit:      d.Limit,
		Remaining:  d.Remaining,
		RetryAfter: d.RetryAfter,
	}
	if d.Allowed {
		return out, nil
	}

	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimited, false, "", clientID, route, ErrRateLimited, func() map[string]string {
		return map[string]string{
			"limit":       fmt.Sprintf("%d", d.Limit),
			"retry_after": d.RetryAfter.String(),
		}
	})
	return out, ErrRateLimited
}

// AttemptState reports the lockout state of clientID.
func (e *Engine) AttemptState(clientID string) AttemptState {
	if e == nil || e.tracker == nil {
		return AttemptClear
	}
	switch e.tracker.State(clientID) {
	case limiters.StateLockedOut:
		return AttemptLockedOut
	case limiters.StateAccumulating:
		return AttemptAccumulating
	default:
		return AttemptClear
	}
}

// Sweep evicts tracker and limiter entries whose events have all aged out
// and returns how many were removed. The background sweeper calls it on
// Config.Lockout.SweepInterval.
func (e *Engine) Sweep() int {
	if e == nil {
		return 0
	}
	removed := 0
	if e.tracker != nil {
		removed += e.tracker.Sweep()
	}
	if e.limiter != nil {
		removed += e.limiter.Sweep()
	}
	return removed
}

func (e *Engine) sweepLoop(interval time.Duration) {
	defer e.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.Sweep()
		}
	}
}

func (e *Engine) storeFailure(ctx context.Context, eventType, email, route string, err error) error {
	wrapped := fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	e.metricInc(MetricStoreUnavailable)
	e.emitAudit(ctx, eventType, false, email, "", route, wrapped, nil)
	return wrapped
}

func (e *Engine) validateRegistration(email, pw string) error {
	if !validEmail(email) {
		return fmt.Errorf("%w: malformed email", ErrInvalidRegistration)
	}
	if len(pw) < e.config.Password.MinLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidRegistration, e.config.Password.MinLength)
	}
	if e.config.Password.Algorithm == "bcrypt" && len(pw) > password.MaxBcryptBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidRegistration, password.MaxBcryptBytes)
	}
	return nil
}

// NormalizeEmail trims surrounding whitespace and lower-cases email. Stores
// key identities by the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if email == "" || len(email) > maxEmailLength {
		return false
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return strings.Count(email, "@") == 1
}
