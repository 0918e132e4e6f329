package main

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
)

// secretEnv names the environment variable that carries the signing secret.
// It wins over the config file so the secret never has to live on disk.
const secretEnv = "AUTHCORE_SECRET_KEY"

type serverConfig struct {
	Addr              string        `koanf:"addr"`
	SecretKey         string        `koanf:"secret_key"`
	TokenTTL          time.Duration `koanf:"token_ttl"`
	TrustProxyHeaders bool          `koanf:"trust_proxy_headers"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	SlowRequest       time.Duration `koanf:"slow_request"`

	Log        logConfig          `koanf:"log"`
	Password   passwordConfig     `koanf:"password"`
	Store      storeConfig        `koanf:"store"`
	CORS       corsConfig         `koanf:"cors"`
	Lockout    lockoutConfig      `koanf:"lockout"`
	RateLimits []routeLimitConfig `koanf:"rate_limits"`
	Metrics    metricsConfig      `koanf:"metrics"`
	Telemetry  telemetryConfig    `koanf:"telemetry"`
	Audit      auditConfig        `koanf:"audit"`
}

type logConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "text"
}

// passwordConfig selects the hash for new identities. With VerifyLegacy the
// other scheme still verifies hashes already in the store.
type passwordConfig struct {
	Algorithm    string       `koanf:"algorithm"` // "bcrypt" or "argon2id"
	BcryptCost   int          `koanf:"bcrypt_cost"`
	VerifyLegacy bool         `koanf:"verify_legacy"`
	Argon2       argon2Config `koanf:"argon2"`
}

type argon2Config struct {
	MemoryKiB   uint32 `koanf:"memory_kib"`
	Time        uint32 `koanf:"time"`
	Parallelism uint8  `koanf:"parallelism"`
	SaltLength  uint32 `koanf:"salt_length"`
	KeyLength   uint32 `koanf:"key_length"`
}

type storeConfig struct {
	Driver         string        `koanf:"driver"` // "memory", "redis" or "sqlite"
	RedisAddr      string        `koanf:"redis_addr"`
	RedisPrefix    string        `koanf:"redis_prefix"`
	SQLitePath     string        `koanf:"sqlite_path"`
	ConnectRetries uint64        `koanf:"connect_retries"`
	ConnectBackoff time.Duration `koanf:"connect_backoff"`
}

type corsConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
}

type lockoutConfig struct {
	Threshold int           `koanf:"threshold"`
	Window    time.Duration `koanf:"window"`
}

// routeLimitConfig overrides one route ceiling. Route "default" sets the
// rule for routes without their own entry. Route names contain dots, so the
// overrides are a list rather than a map keyed by route.
type routeLimitConfig struct {
	Route       string        `koanf:"route"`
	MaxRequests int           `koanf:"max_requests"`
	Window      time.Duration `koanf:"window"`
}

type metricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// telemetryConfig turns on OTLP export of traces and the engine counters.
type telemetryConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Endpoint       string        `koanf:"endpoint"`
	Insecure       bool          `koanf:"insecure"`
	ServiceName    string        `koanf:"service_name"`
	ExportInterval time.Duration `koanf:"export_interval"`
}

type auditConfig struct {
	Enabled bool `koanf:"enabled"`
}

func defaultServerConfig() serverConfig {
	argon := password.DefaultArgon2Config()
	return serverConfig{
		Addr:            ":8000",
		TokenTTL:        60 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
		SlowRequest:     time.Second,
		Log: logConfig{
			Level:  "info",
			Format: "json",
		},
		Password: passwordConfig{
			Algorithm:    "bcrypt",
			BcryptCost:   password.DefaultBcryptCost,
			VerifyLegacy: true,
			Argon2: argon2Config{
				MemoryKiB:   argon.Memory,
				Time:        argon.Time,
				Parallelism: argon.Parallelism,
				SaltLength:  argon.SaltLength,
				KeyLength:   argon.KeyLength,
			},
		},
		Store: storeConfig{
			Driver:         "memory",
			RedisAddr:      "localhost:6379",
			SQLitePath:     "authcore.db",
			ConnectRetries: 5,
			ConnectBackoff: 200 * time.Millisecond,
		},
		CORS: corsConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		},
		Lockout: lockoutConfig{
			Threshold: 5,
			Window:    15 * time.Minute,
		},
		Metrics: metricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Telemetry: telemetryConfig{
			Endpoint:       "localhost:4317",
			ServiceName:    "authcore",
			ExportInterval: 15 * time.Second,
		},
	}
}

// serveFlagKeys maps serve flags to their koanf keys.
var serveFlagKeys = map[string]string{
	"addr":                "addr",
	"log-level":           "log.level",
	"log-format":          "log.format",
	"password-algorithm":  "password.algorithm",
	"store":               "store.driver",
	"redis-addr":          "store.redis_addr",
	"sqlite-path":         "store.sqlite_path",
	"trust-proxy-headers": "trust_proxy_headers",
	"metrics":             "metrics.enabled",
	"otel":                "telemetry.enabled",
	"otel-endpoint":       "telemetry.endpoint",
	"audit":               "audit.enabled",
}

func registerServeFlags(flags *pflag.FlagSet) {
	def := defaultServerConfig()
	flags.String("addr", def.Addr, "listen address")
	flags.String("log-level", def.Log.Level, "log level (debug, info, warn, error)")
	flags.String("log-format", def.Log.Format, "log format (json, text)")
	flags.String("password-algorithm", def.Password.Algorithm, "hash for new identities (bcrypt, argon2id)")
	flags.String("store", def.Store.Driver, "identity store (memory, redis, sqlite)")
	flags.String("redis-addr", def.Store.RedisAddr, "redis address for --store=redis")
	flags.String("sqlite-path", def.Store.SQLitePath, "database file for --store=sqlite")
	flags.Bool("trust-proxy-headers", def.TrustProxyHeaders, "take the client address from X-Forwarded-For")
	flags.Bool("metrics", def.Metrics.Enabled, "expose Prometheus metrics")
	flags.Bool("otel", def.Telemetry.Enabled, "export traces and metrics over OTLP/gRPC")
	flags.String("otel-endpoint", def.Telemetry.Endpoint, "OTLP collector address")
	flags.Bool("audit", def.Audit.Enabled, "log security audit events")
}

// loadConfig layers defaults, the YAML file at path, command-line flags and
// the environment, in increasing precedence.
func loadConfig(path string, flags *pflag.FlagSet) (serverConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return serverConfig{}, oops.Code("CONFIG_INVALID").Wrapf(err, "load .env")
	}

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return serverConfig{}, oops.Code("CONFIG_INVALID").With("path", path).Wrapf(err, "load config file")
		}
	}
	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := serveFlagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return serverConfig{}, oops.Code("CONFIG_INVALID").Wrapf(err, "load flags")
		}
	}

	cfg := defaultServerConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return serverConfig{}, oops.Code("CONFIG_INVALID").Wrapf(err, "decode config")
	}

	if secret := os.Getenv(secretEnv); secret != "" {
		cfg.SecretKey = secret
	}

	if err := cfg.validate(); err != nil {
		return serverConfig{}, err
	}
	return cfg, nil
}

func (c serverConfig) validate() error {
	invalid := oops.Code("CONFIG_INVALID")

	if len(c.SecretKey) < jwt.MinSecretLength {
		return invalid.With("min_length", jwt.MinSecretLength).
			Errorf("secret_key must be at least %d bytes (set %s)", jwt.MinSecretLength, secretEnv)
	}
	switch c.Store.Driver {
	case "memory", "redis", "sqlite":
	default:
		return invalid.With("driver", c.Store.Driver).Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return invalid.With("format", c.Log.Format).Errorf("unknown log format %q", c.Log.Format)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return invalid.With("path", c.Metrics.Path).Errorf("metrics path must start with /")
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return invalid.Errorf("telemetry.endpoint is required when telemetry is enabled")
		}
		if c.Telemetry.ExportInterval <= 0 {
			return invalid.With("export_interval", c.Telemetry.ExportInterval).Errorf("telemetry.export_interval must be > 0")
		}
	}
	return nil
}

// engineConfig maps the server settings onto the library configuration and
// validates the result.
func (c serverConfig) engineConfig() (authcore.Config, error) {
	cfg := authcore.DefaultConfig()
	cfg.JWT.Secret = []byte(c.SecretKey)
	cfg.JWT.AccessTTL = c.TokenTTL
	cfg.Password.Algorithm = c.Password.Algorithm
	cfg.Password.BcryptCost = c.Password.BcryptCost
	cfg.Password.VerifyLegacy = c.Password.VerifyLegacy
	cfg.Password.Argon2 = password.Argon2Config{
		Memory:      c.Password.Argon2.MemoryKiB,
		Time:        c.Password.Argon2.Time,
		Parallelism: c.Password.Argon2.Parallelism,
		SaltLength:  c.Password.Argon2.SaltLength,
		KeyLength:   c.Password.Argon2.KeyLength,
	}
	cfg.Lockout.Threshold = c.Lockout.Threshold
	cfg.Lockout.Window = c.Lockout.Window
	// OTLP export reads the same counters as /metrics.
	cfg.Metrics.Enabled = c.Metrics.Enabled || c.Telemetry.Enabled
	cfg.Metrics.EnableLatencyHistograms = cfg.Metrics.Enabled
	cfg.Audit.Enabled = c.Audit.Enabled

	for _, rl := range c.RateLimits {
		limit := authcore.RouteLimit{MaxRequests: rl.MaxRequests, Window: rl.Window}
		if rl.Route == "default" {
			cfg.RateLimit.Default = limit
			continue
		}
		cfg.RateLimit.Routes[rl.Route] = limit
	}

	if err := cfg.Validate(); err != nil {
		return authcore.Config{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return cfg, nil
}
