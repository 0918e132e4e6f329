// Command authcore-loadtest drives Engine.Login and Engine.CurrentIdentity
// concurrently against a Redis identity store and reports latency
// percentiles per phase.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/store/redisstore"
)

const seedPassword = "load-test-password"

func main() {
	var (
		identities  = pflag.Int("identities", 1000, "number of identities to register")
		concurrency = pflag.Int("concurrency", 64, "number of concurrent workers")
		ops         = pflag.Int("ops", 20000, "operations per phase (login + current identity)")
		bcryptCost  = pflag.Int("bcrypt-cost", 4, "bcrypt cost for seeded identities")
		redisAddr   = pflag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = pflag.String("prefix", "authcore-load", "identity key prefix")
	)
	pflag.Parse()

	if *identities <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "identities, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		cleanup = func() {}
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer func() { _ = client.Close() }()

	cfg := authcore.DefaultConfig()
	cfg.JWT.Secret = []byte("authcore-loadtest-secret-0123456789abcdef")
	cfg.Password.BcryptCost = *bcryptCost
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	engine, err := authcore.New().
		WithConfig(cfg).
		WithIdentityStore(redisstore.New(client, *prefix)).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	emails := make([]string, *identities)
	fmt.Printf("registering %d identities...\n", *identities)
	startSeed := time.Now()
	for i := range emails {
		emails[i] = fmt.Sprintf("user-%d@load.test", i)
		if _, err := engine.Register(ctx, emails[i], seedPassword); err != nil {
			fmt.Fprintf(os.Stderr, "register failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("registered in %s\n", time.Since(startSeed).Round(time.Millisecond))

	var tokensMu sync.Mutex
	tokens := make([]string, len(emails))
	loginStats := runPhase(*ops, *concurrency, len(emails), func(worker, idx int) error {
		// Distinct client per worker keeps the lockout tracker out of the way.
		tok, err := engine.Login(ctx, fmt.Sprintf("10.0.%d.%d", worker/256, worker%256), emails[idx], seedPassword)
		if err != nil {
			return err
		}
		tokensMu.Lock()
		tokens[idx] = tok.AccessToken
		tokensMu.Unlock()
		return nil
	})

	live := tokens[:0:0]
	for _, tok := range tokens {
		if tok != "" {
			live = append(live, tok)
		}
	}
	if len(live) == 0 {
		fmt.Fprintln(os.Stderr, "no tokens issued; skipping current identity phase")
		os.Exit(1)
	}

	identityStats := runPhase(*ops, *concurrency, len(live), func(_, idx int) error {
		_, err := engine.CurrentIdentity(ctx, live[idx])
		return err
	})

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("current_identity", identityStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("tokens issued=%d token invalid=%d identity missing=%d\n",
		snap.Counters[authcore.MetricTokenIssued],
		snap.Counters[authcore.MetricTokenInvalid],
		snap.Counters[authcore.MetricIdentityMissing],
	)
}

// runPhase runs ops calls of fn spread over concurrency workers, each call
// with a random index below n.
func runPhase(ops, concurrency, n int, fn func(worker, idx int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(n)
				t0 := time.Now()
				err := fn(worker, idx)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
