// Package jwt issues and validates signed, time-limited bearer tokens whose
// subject is an identity's normalized email.
//
// Tokens are stateless: validity is decided by signature and expiry alone.
// There is no revocation list, so a token stays valid until it expires even
// if its identity disappears; callers resolve the subject afterwards.
//
// [Manager.Validate] distinguishes [ErrTokenExpired] from [ErrTokenInvalid]
// so callers can record the cause, but neither should be echoed to clients.
package jwt
