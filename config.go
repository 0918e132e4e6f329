package authcore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
)

// Config is the process-wide, read-only configuration of an Engine.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable; Build copies the value it is given.
type Config struct {
	JWT       JWTConfig
	Password  PasswordConfig
	Lockout   LockoutConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the token service.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	Secret        []byte
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig configures hashing and registration password policy.
type PasswordConfig struct {
	Algorithm  string // "bcrypt" (default) or "argon2id"
	BcryptCost int
	Argon2     password.Argon2Config
	MinLength  int
	// VerifyLegacy lets the non-primary scheme verify existing hashes.
	VerifyLegacy bool
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig configures the failed-login attempt tracker.
type LockoutConfig struct {
	Threshold  int
	Window     time.Duration
	MaxClients int
	// SweepInterval drives the background eviction of aged client entries
	// for both the tracker and the rate limiter. Zero disables the sweeper.
	SweepInterval time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RouteLimit is a ceiling of MaxRequests per trailing Window.
type RouteLimit struct {
	MaxRequests int
	Window      time.Duration
}

// RateLimitConfig holds the static per-route ceilings.
type RateLimitConfig struct {
	Enabled bool
	Routes  map[string]RouteLimit
	// Default applies to routes without an entry in Routes. A zero value
	// leaves them unthrottled.
	Default    RouteLimit
	MaxClients int
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the defaults with no signing secret. Callers must
// set JWT.Secret (or Ed25519 keys) before building.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     60 * time.Minute,
			SigningMethod: "hs256",
		},
		Password: PasswordConfig{
			Algorithm:    "bcrypt",
			BcryptCost:   password.DefaultBcryptCost,
			Argon2:       password.DefaultArgon2Config(),
			MinLength:    6,
			VerifyLegacy: true,
		},
		Lockout: LockoutConfig{
			Threshold:     5,
			Window:        15 * time.Minute,
			MaxClients:    100_000,
			SweepInterval: time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Routes: map[string]RouteLimit{
				RouteLogin:       {MaxRequests: 5, Window: time.Minute},
				RouteRegister:    {MaxRequests: 10, Window: time.Minute},
				RouteTodosList:   {MaxRequests: 100, Window: time.Minute},
				RouteTodosCreate: {MaxRequests: 20, Window: time.Minute},
			},
			Default:    RouteLimit{MaxRequests: 100, Window: time.Minute},
			MaxClients: 100_000,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.RateLimit.Routes != nil {
		out.RateLimit.Routes = make(map[string]RouteLimit, len(cfg.RateLimit.Routes))
		for k, v := range cfg.RateLimit.Routes {
			out.RateLimit.Routes[k] = v
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.Secret) < jwt.MinSecretLength {
			return fmt.Errorf("JWT Secret must be at least %d bytes", jwt.MinSecretLength)
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Password
	switch c.Password.Algorithm {
	case "bcrypt", "argon2id":
	default:
		return errors.New("Password Algorithm must be 'bcrypt' or 'argon2id'")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.Algorithm == "bcrypt" && c.Password.MinLength > password.MaxBcryptBytes {
		return errors.New("Password MinLength exceeds the bcrypt input limit")
	}

	// Lockout
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Window <= 0 {
		return errors.New("Lockout Window must be > 0")
	}
	if c.Lockout.MaxClients <= 0 {
		return errors.New("Lockout MaxClients must be > 0")
	}
	if c.Lockout.SweepInterval < 0 {
		return errors.New("Lockout SweepInterval must be >= 0")
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.MaxClients <= 0 {
			return errors.New("RateLimit MaxClients must be > 0")
		}
		for route, rl := range c.RateLimit.Routes {
			if strings.TrimSpace(route) == "" {
				return errors.New("RateLimit route key must not be empty")
			}
			if rl.MaxRequests < 0 || rl.Window < 0 {
				return fmt.Errorf("RateLimit %q must not be negative", route)
			}
			if rl.MaxRequests > 0 && rl.Window == 0 {
				return fmt.Errorf("RateLimit %q Window must be > 0", route)
			}
		}
		if c.RateLimit.Default.MaxRequests < 0 || c.RateLimit.Default.Window < 0 {
			return errors.New("RateLimit Default must not be negative")
		}
		if c.RateLimit.Default.MaxRequests > 0 && c.RateLimit.Default.Window == 0 {
			return errors.New("RateLimit Default Window must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
