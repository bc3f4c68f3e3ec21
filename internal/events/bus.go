// Package events implements FTL2's in-process pub/sub of structured events
// to the user callback: single-consumer delivery in arrival
// order per call, with no ordering guarantee across calls.
package events

import (
	"sync"

	"github.com/eniac111/ftl2/internal/metrics"
	"github.com/eniac111/ftl2/internal/types"
)

// Sink receives events for one call, in arrival order.
type Sink func(types.Event)

// Bus delivers events to a single user-provided callback on the caller's
// own goroutine. Publish
// is safe to call concurrently from multiple per-host executors; delivery
// to the callback is serialized so a slow or non-reentrant callback never
// interleaves two events.
type Bus struct {
	mu       sync.Mutex
	callback Sink
}

// New returns a Bus that delivers to callback. A nil callback discards
// events (still counted in metrics).
func New(callback Sink) *Bus {
	return &Bus{callback: callback}
}

// Publish delivers ev to the callback under the bus's serialization lock.
func (b *Bus) Publish(ev types.Event) {
	metrics.EventsEmitted.WithLabelValues(string(ev.Kind)).Inc()
	if b.callback == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callback(ev)
}

// ForCall returns a Sink bound to (requestID, host), the per-call event
// sink the executor forwards gate/local-module events through.
func (b *Bus) ForCall(requestID, host string) Sink {
	return func(ev types.Event) {
		ev.RequestID = requestID
		ev.Host = host
		b.Publish(ev)
	}
}
