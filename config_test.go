package authcore

import (
	"testing"
	"time"
)

func TestDefaultConfigNeedsSecret(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("default config without a secret must not validate")
	}

	cfg.JWT.Secret = testSecret
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.JWT.AccessTTL != 60*time.Minute {
		t.Fatalf("expected 60m ttl, got %v", cfg.JWT.AccessTTL)
	}
	if cfg.Lockout.Threshold != 5 || cfg.Lockout.Window != 15*time.Minute {
		t.Fatalf("unexpected lockout defaults %+v", cfg.Lockout)
	}
	if cfg.Password.MinLength != 6 {
		t.Fatalf("expected min length 6, got %d", cfg.Password.MinLength)
	}

	routes := map[string]int{
		RouteLogin:       5,
		RouteRegister:    10,
		RouteTodosList:   100,
		RouteTodosCreate: 20,
	}
	for route, want := range routes {
		rl, ok := cfg.RateLimit.Routes[route]
		if !ok || rl.MaxRequests != want || rl.Window != time.Minute {
			t.Fatalf("route %s: expected %d/min, got %+v", route, want, rl)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "baseline",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "jwt leeway valid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 45 * time.Second
			},
			wantValid: true,
		},
		{
			name: "jwt leeway invalid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 3 * time.Minute
			},
			wantValid: false,
		},
		{
			name: "jwt ttl zero",
			mutate: func(c *Config) {
				c.JWT.AccessTTL = 0
			},
			wantValid: false,
		},
		{
			name: "jwt signing invalid",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "rs256"
			},
			wantValid: false,
		},
		{
			name: "ed25519 without key",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "ed25519"
			},
			wantValid: false,
		},
		{
			name: "password algorithm invalid",
			mutate: func(c *Config) {
				c.Password.Algorithm = "md5"
			},
			wantValid: false,
		},
		{
			name: "password min length zero",
			mutate: func(c *Config) {
				c.Password.MinLength = 0
			},
			wantValid: false,
		},
		{
			name: "lockout threshold zero",
			mutate: func(c *Config) {
				c.Lockout.Threshold = 0
			},
			wantValid: false,
		},
		{
			name: "lockout window zero",
			mutate: func(c *Config) {
				c.Lockout.Window = 0
			},
			wantValid: false,
		},
		{
			name: "sweep disabled",
			mutate: func(c *Config) {
				c.Lockout.SweepInterval = 0
			},
			wantValid: true,
		},
		{
			name: "route without window",
			mutate: func(c *Config) {
				c.RateLimit.Routes["x"] = RouteLimit{MaxRequests: 3}
			},
			wantValid: false,
		},
		{
			name: "route disabled",
			mutate: func(c *Config) {
				c.RateLimit.Routes["x"] = RouteLimit{}
			},
			wantValid: true,
		},
		{
			name: "blank route key",
			mutate: func(c *Config) {
				c.RateLimit.Routes[" "] = RouteLimit{MaxRequests: 1, Window: time.Second}
			},
			wantValid: false,
		},
		{
			name: "rate limit off ignores routes",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = false
				c.RateLimit.MaxClients = 0
			},
			wantValid: true,
		},
		{
			name: "audit buffer zero",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestWithConfigCopiesInput(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.Secret = append([]byte(nil), testSecret...)
	b := New().WithConfig(cfg)

	cfg.JWT.Secret[0] = 'X'
	cfg.RateLimit.Routes[RouteLogin] = RouteLimit{MaxRequests: 1000, Window: time.Minute}

	if b.config.JWT.Secret[0] == 'X' {
		t.Fatal("secret must be copied")
	}
	if b.config.RateLimit.Routes[RouteLogin].MaxRequests != 5 {
		t.Fatal("route table must be copied")
	}
}
