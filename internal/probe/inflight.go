package probe

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// inFlight is a probe waiting for its outcome.
type inFlight struct {
	seq  uint
	sent time.Time
}

// inFlightTable maps wire sequence numbers to probes in flight. Entries
// expire after the probe timeout; each entry leaves the table exactly once,
// either through take/takeAll or through expiry.
type inFlightTable struct {
	cache *ttlcache.Cache[uint16, inFlight]

	mu      sync.Mutex
	expired []inFlight
	notify  chan struct{}

	unsubscribe func()
}

func newInFlightTable(timeout time.Duration, capacity uint64) *inFlightTable {
	opts := []ttlcache.Option[uint16, inFlight]{
		ttlcache.WithTTL[uint16, inFlight](timeout),
		ttlcache.WithDisableTouchOnHit[uint16, inFlight](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[uint16, inFlight](capacity))
	}

	t := &inFlightTable{
		cache:  ttlcache.New(opts...),
		notify: make(chan struct{}, 1),
	}
	// Callbacks run on their own goroutines; queue the entry and signal
	// without blocking.
	t.unsubscribe = t.cache.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[uint16, inFlight]) {
		if reason != ttlcache.EvictionReasonExpired && reason != ttlcache.EvictionReasonCapacityReached {
			return
		}
		t.mu.Lock()
		t.expired = append(t.expired, item.Value())
		t.mu.Unlock()
		select {
		case t.notify <- struct{}{}:
		default:
		}
	})
	return t
}

func (t *inFlightTable) start() {
	go t.cache.Start()
}

func (t *inFlightTable) stop() {
	t.cache.Stop()
	t.unsubscribe()
}

// add inserts a probe. If the wire sequence is still occupied by an older
// probe (after 65536 sends), the older entry is returned so it can be
// resolved.
func (t *inFlightTable) add(wire uint16, p inFlight) (inFlight, bool) {
	// Set does not replace an expired entry that is still queued for
	// eviction, so evict those first.
	t.cache.DeleteExpired()
	old, replaced := t.take(wire)
	t.cache.Set(wire, p, ttlcache.DefaultTTL)
	return old, replaced
}

// take removes and returns the probe for wire, if it is still in flight.
func (t *inFlightTable) take(wire uint16) (inFlight, bool) {
	item, ok := t.cache.GetAndDelete(wire)
	if !ok {
		return inFlight{}, false
	}
	return item.Value(), true
}

// takeAll removes every probe still in flight, in sequence order. Probes
// already past their timeout are left to the expiry queue.
func (t *inFlightTable) takeAll() []inFlight {
	t.cache.DeleteExpired()
	var all []inFlight
	for _, wire := range t.cache.Keys() {
		if p, ok := t.take(wire); ok {
			all = append(all, p)
		}
	}
	slices.SortFunc(all, func(a, b inFlight) int { return int(a.seq) - int(b.seq) })
	return all
}

// drainExpired returns the probes evicted by expiry since the last call.
func (t *inFlightTable) drainExpired() []inFlight {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.expired
	t.expired = nil
	slices.SortFunc(out, func(a, b inFlight) int { return int(a.seq) - int(b.seq) })
	return out
}

func (t *inFlightTable) len() int {
	return t.cache.Len()
}
