package rate

import (
	"strings"
	"time"
)

// Rule is a request ceiling for one route: at most Limit requests per
// trailing Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

func (r Rule) enabled() bool {
	return r.Limit > 0 && r.Window > 0
}

// Config holds the static route table. Rules are copied at construction and
// cannot change afterwards.
type Config struct {
	Rules map[string]Rule
	// Default applies to routes missing from Rules. A zero Default leaves
	// unknown routes unthrottled.
	Default Rule
	// MaxClients caps the tracked clients per route.
	MaxClients int
	Now        func() time.Time
}

// Decision is the outcome of Allow.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter enforces per-route, per-client sliding-window ceilings in
// process memory.
type Limiter struct {
	rules      map[string]Rule
	fallback   Rule
	windows    map[string]*Window
	defaultWin *Window
	now        func() time.Time
}

// New builds a Limiter with one Window per configured route.
func New(cfg Config) (*Limiter, error) {
	if cfg.MaxClients <= 0 {
		return nil, ErrInvalidCapacity
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	l := &Limiter{
		rules:    make(map[string]Rule, len(cfg.Rules)),
		fallback: cfg.Default,
		windows:  make(map[string]*Window, len(cfg.Rules)),
		now:      cfg.Now,
	}

	for route, rule := range cfg.Rules {
		route = strings.TrimSpace(route)
		if route == "" {
			return nil, ErrEmptyRoute
		}
		if rule.Limit < 0 || rule.Window < 0 {
			return nil, ErrInvalidRule
		}
		l.rules[route] = rule
		if !rule.enabled() {
			continue
		}
		w, err := NewWindow(rule.Window, cfg.MaxClients, rule.Limit)
		if err != nil {
			return nil, err
		}
		l.windows[route] = w
	}

	if cfg.Default.Limit < 0 || cfg.Default.Window < 0 {
		return nil, ErrInvalidRule
	}
	if cfg.Default.enabled() {
		w, err := NewWindow(cfg.Default.Window, cfg.MaxClients, cfg.Default.Limit)
		if err != nil {
			return nil, err
		}
		l.defaultWin = w
	}

	return l, nil
}

// Allow checks whether clientID may call route now. An allowed request is
// recorded; a rejected one is not.
//
// Routes without a rule share the default window, keyed by route and client.
func (l *Limiter) Allow(clientID, route string) Decision {
	rule, w, key := l.resolve(clientID, route)
	if w == nil {
		return Decision{Allowed: true, Limit: 0, Remaining: -1}
	}

	now := l.now()
	count, ok, first := w.RecordIfBelow(key, now, rule.Limit)
	d := Decision{
		Allowed:   ok,
		Limit:     rule.Limit,
		Remaining: rule.Limit - count,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !ok && !first.IsZero() {
		d.RetryAfter = first.Add(rule.Window).Sub(now)
		if d.RetryAfter < 0 {
			d.RetryAfter = 0
		}
	}
	return d
}

// Sweep evicts clients whose request logs have fully aged out across every
// route. It returns the number of evicted entries.
func (l *Limiter) Sweep() int {
	now := l.now()
	removed := 0
	for _, w := range l.windows {
		removed += w.Sweep(now)
	}
	if l.defaultWin != nil {
		removed += l.defaultWin.Sweep(now)
	}
	return removed
}

// Tracked returns the number of (route, client) entries currently held.
func (l *Limiter) Tracked() int {
	n := 0
	for _, w := range l.windows {
		n += w.Len()
	}
	if l.defaultWin != nil {
		n += l.defaultWin.Len()
	}
	return n
}

func (l *Limiter) resolve(clientID, route string) (Rule, *Window, string) {
	if rule, ok := l.rules[route]; ok {
		return rule, l.windows[route], clientID
	}
	return l.fallback, l.defaultWin, route + "\x00" + clientID
}
