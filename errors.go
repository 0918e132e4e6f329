package authcore

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/authcore/jwt"
)

var (
	// ErrUnauthorized is the single externally visible failure for token and
	// identity resolution. The precise cause is recorded in audit and metrics.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is returned by Login when the email is unknown or
	// the password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLockedOut is returned by Login while the calling client has
	// reached the failed-attempt threshold inside the lockout window.
	ErrAccountLockedOut = errors.New("too many failed attempts")
	// ErrRateLimited is returned by Allow when a route ceiling is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrTokenInvalid reports a token whose signature or payload did not verify.
	ErrTokenInvalid = jwt.ErrTokenInvalid
	// ErrTokenExpired reports a well-formed token whose expiry has passed.
	ErrTokenExpired = jwt.ErrTokenExpired
	// ErrEmailAlreadyRegistered is returned by Register when the email exists.
	ErrEmailAlreadyRegistered = errors.New("email has been registered")
	// ErrIdentityNotFound is returned by an IdentityStore when no record matches.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrInvalidRegistration is returned by Register for malformed input.
	ErrInvalidRegistration = errors.New("invalid registration request")
	// ErrStoreUnavailable wraps identity store backend failures.
	ErrStoreUnavailable = errors.New("identity store unavailable")
	// ErrEngineNotReady is returned when an Engine method is called on a nil
	// or partially constructed engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// StatusCode maps an Engine error to the HTTP status a transport should
// answer with. A nil error maps to 200.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrIdentityNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAccountLockedOut),
		errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrEmailAlreadyRegistered),
		errors.Is(err, ErrInvalidRegistration):
		return http.StatusBadRequest
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
