package rate

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Window is a concurrency-safe sliding log of event timestamps per key.
//
// An event at t counts while now.Sub(t) < span. Logs are pruned on every
// access; keys whose log becomes empty are removed. The number of tracked
// keys is capped by an LRU, and each log keeps at most maxEvents entries
// (the newest ones).
type Window struct {
	mu        sync.Mutex
	span      time.Duration
	maxEvents int
	logs      *lru.Cache[string, []time.Time]
}

// NewWindow creates a Window tracking at most capacity keys with at most
// maxEvents timestamps each.
func NewWindow(span time.Duration, capacity, maxEvents int) (*Window, error) {
	if span <= 0 {
		return nil, ErrInvalidWindow
	}
	if capacity <= 0 || maxEvents <= 0 {
		return nil, ErrInvalidCapacity
	}
	logs, err := lru.New[string, []time.Time](capacity)
	if err != nil {
		return nil, err
	}
	return &Window{
		span:      span,
		maxEvents: maxEvents,
		logs:      logs,
	}, nil
}

// Count prunes key and returns the number of events inside the window.
func (w *Window) Count(key string, now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.pruneLocked(key, now))
}

// Record appends now to key and returns the count inside the window,
// including the new event.
func (w *Window) Record(key string, now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	ts := append(w.pruneLocked(key, now), now)
	if len(ts) > w.maxEvents {
		ts = ts[len(ts)-w.maxEvents:]
	}
	w.logs.Add(key, ts)
	return len(ts)
}

// RecordIfBelow records now only when the count inside the window is below
// ceiling. The check and the append happen under one lock. It returns the
// count after the call, whether the event was recorded, and the oldest
// timestamp still inside the window (zero when the log is empty).
func (w *Window) RecordIfBelow(key string, now time.Time, ceiling int) (int, bool, time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ts := w.pruneLocked(key, now)
	if len(ts) >= ceiling {
		return len(ts), false, oldest(ts)
	}

	ts = append(ts, now)
	if len(ts) > w.maxEvents {
		ts = ts[len(ts)-w.maxEvents:]
	}
	w.logs.Add(key, ts)
	return len(ts), true, oldest(ts)
}

// Clear drops the whole log for key.
func (w *Window) Clear(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.logs.Remove(key)
}

// Sweep prunes every key and removes the ones left empty. It returns the
// number of keys removed.
func (w *Window) Sweep(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	removed := 0
	for _, key := range w.logs.Keys() {
		ts, ok := w.logs.Peek(key)
		if !ok {
			continue
		}
		if len(w.keep(ts, now)) == 0 {
			w.logs.Remove(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (w *Window) Len() int {
	return w.logs.Len()
}

// pruneLocked drops expired timestamps for key and stores the result.
// Callers must hold w.mu.
func (w *Window) pruneLocked(key string, now time.Time) []time.Time {
	ts, ok := w.logs.Get(key)
	if !ok {
		return nil
	}
	kept := w.keep(ts, now)
	if len(kept) == 0 {
		w.logs.Remove(key)
		return nil
	}
	if len(kept) != len(ts) {
		w.logs.Add(key, kept)
	}
	return kept
}

// keep returns the suffix of ts still inside the window. Timestamps are
// appended in call order, so the log is sorted unless the clock moved
// backwards; a backwards step keeps the affected entries.
func (w *Window) keep(ts []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(ts) && now.Sub(ts[i]) >= w.span {
		i++
	}
	if i == 0 {
		return ts
	}
	kept := make([]time.Time, len(ts)-i)
	copy(kept, ts[i:])
	return kept
}

func oldest(ts []time.Time) time.Time {
	if len(ts) == 0 {
		return time.Time{}
	}
	return ts[0]
}
