package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/MrEthical07/authcore"
)

// RateAllower charges one request against a route ceiling. *authcore.Engine
// implements it.
type RateAllower interface {
	Allow(ctx context.Context, clientID, route string) (authcore.RateDecision, error)
}

// RateLimit throttles requests to route per client. The client identifier
// comes from the request context (see ClientID) and falls back to the
// remote address.
//
// Allowed responses carry X-RateLimit-Limit and X-RateLimit-Remaining when
// the route is throttled. Rejections answer 429 with Retry-After in whole
// seconds and are not counted against the client. A backend outage answers
// 503; any other failure answers 500.
func RateLimit(allower RateAllower, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allower == nil {
				next.ServeHTTP(w, r)
				return
			}

			clientID := authcore.ClientIDFromContext(r.Context())
			if clientID == "" {
				clientID = ClientIP(r, false)
			}

			d, err := allower.Allow(r.Context(), clientID, route)
			if d.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			}
			if err != nil {
				switch status := authcore.StatusCode(err); status {
				case http.StatusTooManyRequests:
					if d.RetryAfter > 0 {
						w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
					}
					WriteError(w, status, "Too many requests")
				case http.StatusServiceUnavailable:
					WriteError(w, status, "Service temporarily unavailable")
				default:
					WriteError(w, http.StatusInternalServerError, "Internal server error")
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
