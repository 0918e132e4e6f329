package authcore

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrInvalidCredentials, http.StatusUnauthorized},
		{ErrTokenInvalid, http.StatusUnauthorized},
		{ErrTokenExpired, http.StatusUnauthorized},
		{ErrIdentityNotFound, http.StatusUnauthorized},
		{ErrAccountLockedOut, http.StatusTooManyRequests},
		{ErrRateLimited, http.StatusTooManyRequests},
		{ErrEmailAlreadyRegistered, http.StatusBadRequest},
		{fmt.Errorf("%w: malformed email", ErrInvalidRegistration), http.StatusBadRequest},
		{fmt.Errorf("%w: %v", ErrStoreUnavailable, errBackendDown), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := StatusCode(tt.err); got != tt.want {
			t.Fatalf("StatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestAuditErrorCodeKeepsTokenCausesApart(t *testing.T) {
	if auditErrorCode(ErrTokenExpired) != auditErrTokenExpired {
		t.Fatal("expired tokens must keep their own audit code")
	}
	if auditErrorCode(fmt.Errorf("%w: bad signature", ErrTokenInvalid)) != auditErrInvalidToken {
		t.Fatal("invalid tokens must keep their own audit code")
	}
	if auditErrorCode(ErrIdentityNotFound) != auditErrIdentityMissing {
		t.Fatal("missing identities must keep their own audit code")
	}
	if auditErrorCode(nil) != "" {
		t.Fatal("nil error must have no code")
	}
}
