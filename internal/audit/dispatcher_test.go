package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"go.uber.org/goleak"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 || d.Delivered() != 0 {
		t.Fatal("nil dispatcher must report zero counters")
	}
}

func TestCloseDrainsBufferedEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)
	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), Event{EventType: "login_failure"})
	}
	d.Close()

	if got := sink.count.Load(); got != 50 {
		t.Fatalf("expected 50 delivered events, got %d", got)
	}
	if d.Delivered() != 50 {
		t.Fatalf("expected Delivered()=50, got %d", d.Delivered())
	}

	d.Emit(context.Background(), Event{EventType: "late"})
	d.Close()
	if got := sink.count.Load(); got != 50 {
		t.Fatalf("emit after close must be ignored, got %d", got)
	}
}

func TestDropIfFullCountsDrops(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// first event is picked up by run() and blocks in the sink, the second
	// fills the buffer, the rest must drop
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "rate_limited"})
	}

	deadline := time.Now().Add(2 * time.Second)
	for d.Dropped() < 8 && time.Now().Before(deadline) {
		d.Emit(context.Background(), Event{EventType: "rate_limited"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped events with a full buffer")
	}

	close(sink.gate)
	d.Close()
}

func TestBlockingEmitHonoursContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)

	d.Emit(context.Background(), Event{EventType: "a"})
	d.Emit(context.Background(), Event{EventType: "b"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{EventType: "c"})

	if d.Dropped() == 0 {
		t.Fatal("expected cancelled emit to count as dropped")
	}

	close(sink.gate)
	d.Close()
}

func TestEmitStampsMissingTimestamp(t *testing.T) {
	defer goleak.VerifyNone(t)

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sink := NewChannelSink(1)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, Now: func() time.Time { return fixed }}, sink)
	d.Emit(context.Background(), Event{EventType: "register_success"})
	d.Close()

	ev := <-sink.Events()
	if !ev.Timestamp.Equal(fixed) {
		t.Fatalf("expected timestamp %v, got %v", fixed, ev.Timestamp)
	}
}

func TestJSONWriterSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: "login_success", Email: "a@x.com", Success: true})
	sink.Emit(context.Background(), Event{EventType: "login_failure", ClientID: "10.0.0.1", Error: "invalid_credentials"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	var ev Event
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.ClientID != "10.0.0.1" || ev.Error != "invalid_credentials" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestLogrusSinkLevels(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	sink := NewLogrusSink(logger)

	sink.Emit(context.Background(), Event{EventType: "login_success", Success: true, Email: "a@x.com"})
	sink.Emit(context.Background(), Event{EventType: "login_locked_out", ClientID: "1.2.3.4", Error: "account_locked_out", Metadata: map[string]string{"failures": "5"}})

	entries := hook.AllEntries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != logrus.InfoLevel {
		t.Fatalf("expected info for success, got %v", entries[0].Level)
	}
	last := hook.LastEntry()
	if last.Level != logrus.WarnLevel {
		t.Fatalf("expected warn for failure, got %v", last.Level)
	}
	if last.Data["client_id"] != "1.2.3.4" || last.Data["meta_failures"] != "5" {
		t.Fatalf("unexpected fields: %v", last.Data)
	}
}
