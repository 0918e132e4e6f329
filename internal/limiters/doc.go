// Package limiters implements the failed-login attempt tracker used for
// temporary client lockout.
//
// # Lockout semantics
//
// A client is locked out while the number of failures inside the trailing
// window is at least the threshold. State moves Clear to Accumulating on the
// first failure and to LockedOut at the threshold. It returns to Clear on an
// explicit Clear or once old failures age out of the window.
//
// The tracker is kept apart from the request rate limiter: lockout is
// credential-triggered and login-specific, throttling is volume-triggered and
// route-generic.
//
// # What this package must NOT do
//
//   - Verify credentials or issue tokens.
//   - Be imported outside the authcore module.
package limiters
