// Package rate provides in-memory sliding-window primitives used for request
// throttling and failed-login tracking.
//
// # Window semantics
//
// [Window] keeps a per-key log of timestamps. An event counts while it is
// younger than the window span. Logs are pruned on every access and by
// [Window.Sweep]; the number of keys is bounded by an LRU so a flood of
// distinct clients cannot grow memory without limit.
//
// [Limiter] holds one Window per route. Allow checks and records under a
// single lock, so concurrent requests from one client cannot both take the
// last slot. Rejected requests are never recorded.
//
// # What this package must NOT do
//
//   - Implement login lockout policy (that lives in internal/limiters).
//   - Coordinate across processes; every instance tracks independently.
//   - Be imported outside the authcore module.
package rate
