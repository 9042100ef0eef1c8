package shared

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// OutcomeKind tags an Outcome.
type OutcomeKind int

const (
	KindReply OutcomeKind = iota
	KindTimeout
	KindTTLExceeded
	KindUnreachable
	KindTransportError
)

func (k OutcomeKind) String() string {
	switch k {
	case KindReply:
		return "reply"
	case KindTimeout:
		return "timeout"
	case KindTTLExceeded:
		return "ttl_exceeded"
	case KindUnreachable:
		return "unreachable"
	case KindTransportError:
		return "transport_error"
	}
	return "unknown"
}

// MarshalText lets outcome kinds appear by name in JSON output.
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the names written by MarshalText.
func (k *OutcomeKind) UnmarshalText(b []byte) error {
	for c := KindReply; c <= KindTransportError; c++ {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown outcome kind %q", b)
}

// Outcome is the final result of one probe. Which fields are set depends on
// Kind: Reply carries RTT, TTL, Addr and Size; TTLExceeded carries Addr;
// Unreachable carries Addr and Code; TransportError carries Reason.
type Outcome struct {
	Kind   OutcomeKind   `json:"kind"`
	Seq    uint          `json:"seq"`
	Addr   string        `json:"addr,omitempty"`
	PTR    string        `json:"ptr,omitempty"`
	TTL    int           `json:"ttl,omitempty"`
	RTT    time.Duration `json:"-"`
	Size   int           `json:"size,omitempty"`
	Code   uint8         `json:"code,omitempty"`
	Reason string        `json:"reason,omitempty"`
	Time   time.Time     `json:"time"`
}

// Summary holds the statistics of a run.
type Summary struct {
	Target      string        `json:"target"`
	Sent        uint64        `json:"sent"`
	Received    uint64        `json:"received"`
	LossPct     float64       `json:"loss_pct"`
	RTTMin      time.Duration `json:"-"`
	RTTAvg      time.Duration `json:"-"`
	RTTMax      time.Duration `json:"-"`
	RTTStdDev   time.Duration `json:"-"`
	Timeouts    uint64        `json:"timeouts"`
	TTLExceeded uint64        `json:"ttl_exceeded"`
	Unreachable uint64        `json:"unreachable"`
	Errors      uint64        `json:"errors"`
	Elapsed     time.Duration `json:"-"`
}

// RunInfo describes a run before the first probe is sent.
type RunInfo struct {
	Target      string // name as given by the user
	Address     string
	Source      string
	PayloadSize int
	TTL         int
	Interval    time.Duration
	Timeout     time.Duration
	Count       int
	Started     time.Time
}

// FormatPct formats a percentage with at most one decimal, dropping a
// trailing ".0": 0, 25, 33.3, 100.
func FormatPct(pct float64) string {
	rounded := math.Round(pct*10) / 10
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}

// Millis returns d in milliseconds as a float.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
