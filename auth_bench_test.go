package authcore

import (
	"context"
	"fmt"
	"testing"
)

func newBenchmarkEngine(b *testing.B) *Engine {
	b.Helper()

	engine, err := New().
		WithConfig(testConfig()).
		WithIdentityStore(newFakeStore()).
		Build()
	if err != nil {
		b.Fatalf("build: %v", err)
	}
	b.Cleanup(engine.Close)

	if _, err := engine.Register(context.Background(), "alice@example.com", "correct-password-123"); err != nil {
		b.Fatalf("register: %v", err)
	}
	return engine
}

func BenchmarkCurrentIdentity(b *testing.B) {
	engine := newBenchmarkEngine(b)
	ctx := context.Background()

	tok, err := engine.Login(ctx, "bench", "alice@example.com", "correct-password-123")
	if err != nil {
		b.Fatalf("login: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.CurrentIdentity(ctx, tok.AccessToken); err != nil {
			b.Fatalf("current identity: %v", err)
		}
	}
}

func BenchmarkLogin(b *testing.B) {
	engine := newBenchmarkEngine(b)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Login(ctx, "bench", "alice@example.com", "correct-password-123"); err != nil {
			b.Fatalf("login: %v", err)
		}
	}
}

func BenchmarkAllowParallel(b *testing.B) {
	engine := newBenchmarkEngine(b)
	ctx := context.Background()

	clients := make([]string, 1024)
	for i := range clients {
		clients[i] = fmt.Sprintf("198.51.100.%d", i)
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = engine.Allow(ctx, clients[i%len(clients)], RouteTodosList)
			i++
		}
	})
}
