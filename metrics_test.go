package authcore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricRateLimitHit)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricRateLimitHit); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}

	for _, d := range observations {
		m.Observe(MetricIdentityLatency, d)
	}

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricIdentityLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}

	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginFailure)
	m.Inc(MetricLoginFailure)
	m.Observe(MetricIdentityLatency, 2*time.Millisecond)

	snap := m.Snapshot()

	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("expected MetricLoginSuccess=1 got %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricLoginFailure] != 2 {
		t.Fatalf("expected MetricLoginFailure=2 got %d", snap.Counters[MetricLoginFailure])
	}
	if len(snap.Histograms[MetricIdentityLatency]) != 8 {
		t.Fatalf("expected histogram length 8")
	}
	if snap.Histograms[MetricIdentityLatency][0] != 1 {
		t.Fatalf("expected first histogram bucket=1 got %d", snap.Histograms[MetricIdentityLatency][0])
	}
}

func TestMetricsHistogramOnlyForIdentityLatency(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Observe(MetricLoginSuccess, time.Millisecond)

	snap := m.Snapshot()
	if _, ok := snap.Histograms[MetricLoginSuccess]; ok {
		t.Fatal("counters must not grow histograms")
	}
	if _, ok := snap.Counters[MetricIdentityLatency]; ok {
		t.Fatal("latency histogram must not appear as a counter")
	}
}

func TestEngineCountsLoginOutcomes(t *testing.T) {
	e := newTestEngine(t, func(c *Config) {
		c.Metrics.Enabled = true
		c.Metrics.EnableLatencyHistograms = true
	})
	ctx := context.Background()

	if _, err := e.Register(ctx, "a@x.com", "secret1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, _ = e.Register(ctx, "a@x.com", "secret1")
	_, _ = e.Register(ctx, "bad", "secret1")
	for i := 0; i < 5; i++ {
		_, _ = e.Login(ctx, "c", "a@x.com", "wrong")
	}
	_, _ = e.Login(ctx, "c", "a@x.com", "secret1")
	tok, err := e.Login(ctx, "d", "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := e.CurrentIdentity(ctx, tok.AccessToken); err != nil {
		t.Fatalf("current identity: %v", err)
	}

	snap := e.MetricsSnapshot()
	want := map[MetricID]uint64{
		MetricRegisterSuccess:   1,
		MetricRegisterDuplicate: 1,
		MetricRegisterInvalid:   1,
		MetricLoginFailure:      5,
		MetricLoginLockedOut:    1,
		MetricLoginSuccess:      1,
		MetricTokenIssued:       1,
	}
	for id, v := range want {
		if snap.Counters[id] != v {
			t.Fatalf("metric %d: expected %d, got %d", id, v, snap.Counters[id])
		}
	}

	var observed uint64
	for _, v := range snap.Histograms[MetricIdentityLatency] {
		observed += v
	}
	if observed != 1 {
		t.Fatalf("expected one latency observation, got %d", observed)
	}
}
