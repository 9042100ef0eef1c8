package probe

import (
	"net/netip"
	"time"

	"github.com/tkjaer/ping/pkg/transport"
)

// ProbeConfig holds the parameters of one run. It is fixed before the run
// starts.
type ProbeConfig struct {
	TTL          int
	PacketSize   int // payload bytes
	Interval     time.Duration
	Count        int // negative means unbounded
	Timeout      time.Duration
	Grace        time.Duration
	Identifier   uint16
	PollInterval time.Duration // upper bound on a single Receive call
}

const (
	defaultPollInterval = 100 * time.Millisecond
	// resolveWait bounds how long a drain waits for eviction callbacks that
	// are already in progress.
	resolveWait = time.Second
)

// Target is the resolved destination of a run.
type Target struct {
	Name   string // as given by the user
	Addr   netip.Addr
	Source netip.Addr // invalid when unknown
}

// Transport is the raw socket the scheduler sends and receives on.
type Transport interface {
	SetTTL(ttl int) error
	Send(dst netip.Addr, b []byte) error
	Receive(timeout time.Duration) (*transport.Packet, error)
}

// State of a Scheduler.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}
