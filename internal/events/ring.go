package events

import (
	"context"
	"sync"

	"tracechain/pkg/domain"
)

// DefaultRingSize bounds the recent-event buffer exposed over HTTP.
const DefaultRingSize = 256

// Ring keeps the most recent events in a fixed-size circular buffer.
type Ring struct {
	mu    sync.Mutex
	buf   []domain.Event
	next  int
	count int
}

// NewRing allocates a ring holding up to size events.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{buf: make([]domain.Event, size)}
}

// Handle records event; pass it to Bus.Subscribe.
func (r *Ring) Handle(_ context.Context, event domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = event
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Recent returns up to limit events, oldest first. limit <= 0 returns all held events.
func (r *Ring) Recent(limit int) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Event, 0, n)
	start := (r.next - n + len(r.buf)) % len(r.buf)
	for i := 0; i < n; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}
