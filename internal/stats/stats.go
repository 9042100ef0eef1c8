// Package stats aggregates probe outcomes into run statistics.
package stats

import (
	"math"
	"sync"
	"time"

	"github.com/tkjaer/ping/internal/shared"
)

// Aggregator keeps running statistics over observed outcomes. RTT mean and
// variance are updated with Welford's algorithm, so each observation is O(1).
type Aggregator struct {
	mu sync.RWMutex

	target  string
	started time.Time
	now     func() time.Time

	sent        uint64
	received    uint64
	timeouts    uint64
	ttlExceeded uint64
	unreachable uint64
	errors      uint64

	min, max float64 // nanoseconds
	mean, m2 float64
}

// New returns an empty aggregator for target.
func New(target string) *Aggregator {
	return &Aggregator{
		target:  target,
		started: time.Now(),
		now:     time.Now,
	}
}

// Observe records one probe outcome.
func (a *Aggregator) Observe(o shared.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sent++
	switch o.Kind {
	case shared.KindReply:
		a.received++
		rtt := float64(o.RTT)
		if a.received == 1 || rtt < a.min {
			a.min = rtt
		}
		if a.received == 1 || rtt > a.max {
			a.max = rtt
		}
		delta := rtt - a.mean
		a.mean += delta / float64(a.received)
		a.m2 += delta * (rtt - a.mean)
	case shared.KindTimeout:
		a.timeouts++
	case shared.KindTTLExceeded:
		a.ttlExceeded++
	case shared.KindUnreachable:
		a.unreachable++
	case shared.KindTransportError:
		a.errors++
	}
}

// Snapshot returns the statistics observed so far.
func (a *Aggregator) Snapshot() shared.Summary {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := shared.Summary{
		Target:      a.target,
		Sent:        a.sent,
		Received:    a.received,
		Timeouts:    a.timeouts,
		TTLExceeded: a.ttlExceeded,
		Unreachable: a.unreachable,
		Errors:      a.errors,
		Elapsed:     a.now().Sub(a.started),
	}
	if a.sent > 0 {
		s.LossPct = float64(a.sent-a.received) / float64(a.sent) * 100
	}
	if a.received > 0 {
		s.RTTMin = time.Duration(math.Round(a.min))
		s.RTTMax = time.Duration(math.Round(a.max))
		s.RTTAvg = time.Duration(math.Round(a.mean))
		s.RTTStdDev = time.Duration(math.Round(math.Sqrt(a.m2 / float64(a.received))))
	}
	return s
}
