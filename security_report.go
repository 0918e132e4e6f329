package authcore

import "time"

// SecurityReport summarizes the effective security posture of an Engine.
// It carries no secrets and is safe to log at startup.
type SecurityReport struct {
	SigningAlgorithm   string
	AccessTTL          time.Duration
	PasswordAlgorithm  string
	BcryptCost         int
	LegacyVerification bool
	MinPasswordLength  int
	LockoutThreshold   int
	LockoutWindow      time.Duration
	RateLimitingActive bool
	// ThrottledRoutes lists routes with an explicit, non-zero ceiling.
	ThrottledRoutes    map[string]RouteLimit
	DefaultRouteLimit  RouteLimit
	AuditEnabled       bool
	MetricsEnabled     bool
	SweeperActive      bool
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	routes := make(map[string]RouteLimit, len(e.config.RateLimit.Routes))
	if e.limiter != nil {
		for route, rl := range e.config.RateLimit.Routes {
			if rl.MaxRequests > 0 && rl.Window > 0 {
				routes[route] = rl
			}
		}
	}

	return SecurityReport{
		SigningAlgorithm:   e.config.JWT.SigningMethod,
		AccessTTL:          e.config.JWT.AccessTTL,
		PasswordAlgorithm:  e.config.Password.Algorithm,
		BcryptCost:         e.config.Password.BcryptCost,
		LegacyVerification: e.config.Password.VerifyLegacy,
		MinPasswordLength:  e.config.Password.MinLength,
		LockoutThreshold:   e.config.Lockout.Threshold,
		LockoutWindow:      e.config.Lockout.Window,
		RateLimitingActive: e.limiter != nil,
		ThrottledRoutes:    routes,
		DefaultRouteLimit:  e.config.RateLimit.Default,
		AuditEnabled:       e.config.Audit.Enabled,
		MetricsEnabled:     e.config.Metrics.Enabled,
		SweeperActive:      e.config.Lockout.SweepInterval > 0,
	}
}
