package authcore

import (
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
)

// dummyPassword is hashed once at Build so that logins for unknown emails
// pay the same verification cost as wrong passwords.
const dummyPassword = "authcore-timing-equalizer"

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config    Config
	store     IdentityStore
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The value is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithIdentityStore sets the identity persistence backend. Required.
func (b *Builder) WithIdentityStore(store IdentityStore) *Builder {
	b.store = store
	return b
}

// WithClock sets the time source shared by the token service, the attempt
// tracker and the rate limiter.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithAuditSink sets the audit sink. Events are only delivered when
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration and wires every component.
//
// Build may return an error when the configuration is invalid, the identity
// store is missing or the signing keys cannot be parsed. On success the
// background sweeper is running; release it with Engine.Close.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil {
		return nil, errors.New("identity store required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- PASSWORD HASHING --------
	hasher, err := newHasher(cfg.Password)
	if err != nil {
		return nil, err
	}
	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		Secret:        cloneBytes(cfg.JWT.Secret),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	// -------- ABUSE CONTROL --------
	tracker, err := limiters.NewAttemptTracker(limiters.LockoutConfig{
		Threshold:  cfg.Lockout.Threshold,
		Window:     cfg.Lockout.Window,
		MaxClients: cfg.Lockout.MaxClients,
		Now:        now,
	})
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RateLimit.Enabled {
		rules := make(map[string]rate.Rule, len(cfg.RateLimit.Routes))
		for route, rl := range cfg.RateLimit.Routes {
			rules[route] = rate.Rule{Limit: rl.MaxRequests, Window: rl.Window}
		}
		limiter, err = rate.New(rate.Config{
			Rules:      rules,
			Default:    rate.Rule{Limit: cfg.RateLimit.Default.MaxRequests, Window: cfg.RateLimit.Default.Window},
			MaxClients: cfg.RateLimit.MaxClients,
			Now:        now,
		})
		if err != nil {
			return nil, err
		}
	}

	engine := &Engine{
		config:     cfg,
		store:      b.store,
		hasher:     hasher,
		dummyHash:  dummy,
		jwtManager: jm,
		tracker:    tracker,
		limiter:    limiter,
		metrics:    NewMetrics(cfg.Metrics),
		now:        now,
		stop:       make(chan struct{}),
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Now:        now,
	}, b.auditSink)

	if cfg.Lockout.SweepInterval > 0 {
		engine.wg.Add(1)
		go engine.sweepLoop(cfg.Lockout.SweepInterval)
	}

	b.built = true

	return engine, nil
}

func newHasher(cfg PasswordConfig) (password.Hasher, error) {
	bc := func() (password.Hasher, error) {
		return password.NewBcrypt(password.BcryptConfig{Cost: cfg.BcryptCost})
	}
	ar := func() (password.Hasher, error) {
		return password.NewArgon2(cfg.Argon2)
	}

	primaryFn, legacyFn := bc, ar
	if cfg.Algorithm == "argon2id" {
		primaryFn, legacyFn = ar, bc
	}

	primary, err := primaryFn()
	if err != nil {
		return nil, err
	}
	if !cfg.VerifyLegacy {
		return password.NewMulti(primary), nil
	}
	legacy, err := legacyFn()
	if err != nil {
		return nil, err
	}
	return password.NewMulti(primary, legacy), nil
}
