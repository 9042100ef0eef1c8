package stats

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/tkjaer/ping/internal/shared"
)

func reply(seq uint, rtt time.Duration) shared.Outcome {
	return shared.Outcome{Kind: shared.KindReply, Seq: seq, RTT: rtt}
}

func TestSnapshot_Empty(t *testing.T) {
	s := New("192.0.2.1").Snapshot()
	if s.Sent != 0 || s.Received != 0 || s.LossPct != 0 {
		t.Errorf("empty Snapshot() = %+v", s)
	}
	if s.RTTMin != 0 || s.RTTAvg != 0 || s.RTTMax != 0 || s.RTTStdDev != 0 {
		t.Errorf("empty Snapshot() has RTT values: %+v", s)
	}
	if s.Target != "192.0.2.1" {
		t.Errorf("Target = %q", s.Target)
	}
}

func TestSnapshot_Loss(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []shared.Outcome
		wantLoss float64
		wantRecv uint64
	}{
		{
			name:     "all replies",
			outcomes: []shared.Outcome{reply(1, time.Millisecond), reply(2, time.Millisecond)},
			wantLoss: 0,
			wantRecv: 2,
		},
		{
			name: "all timeouts",
			outcomes: []shared.Outcome{
				{Kind: shared.KindTimeout, Seq: 1},
				{Kind: shared.KindTimeout, Seq: 2},
			},
			wantLoss: 100,
		},
		{
			name: "one in four lost",
			outcomes: []shared.Outcome{
				reply(1, time.Millisecond),
				{Kind: shared.KindTimeout, Seq: 2},
				reply(3, time.Millisecond),
				reply(4, time.Millisecond),
			},
			wantLoss: 25,
			wantRecv: 3,
		},
		{
			name: "errors count as loss",
			outcomes: []shared.Outcome{
				{Kind: shared.KindTTLExceeded, Seq: 1},
				{Kind: shared.KindUnreachable, Seq: 2},
				{Kind: shared.KindTransportError, Seq: 3},
			},
			wantLoss: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New("x")
			for _, o := range tt.outcomes {
				a.Observe(o)
			}
			s := a.Snapshot()
			if s.Sent != uint64(len(tt.outcomes)) {
				t.Errorf("Sent = %d, want %d", s.Sent, len(tt.outcomes))
			}
			if s.Received != tt.wantRecv {
				t.Errorf("Received = %d, want %d", s.Received, tt.wantRecv)
			}
			if s.LossPct != tt.wantLoss {
				t.Errorf("LossPct = %v, want %v", s.LossPct, tt.wantLoss)
			}
		})
	}
}

func TestSnapshot_LossMonotone(t *testing.T) {
	a := New("x")
	a.Observe(reply(1, time.Millisecond))
	prev := a.Snapshot().LossPct
	for i := uint(2); i < 10; i++ {
		a.Observe(shared.Outcome{Kind: shared.KindTimeout, Seq: i})
		loss := a.Snapshot().LossPct
		if loss <= prev {
			t.Fatalf("loss after timeout %d = %v, not above %v", i, loss, prev)
		}
		prev = loss
	}
}

func TestSnapshot_KindCounters(t *testing.T) {
	a := New("x")
	for i, k := range []shared.OutcomeKind{
		shared.KindTimeout, shared.KindTimeout,
		shared.KindTTLExceeded,
		shared.KindUnreachable, shared.KindUnreachable, shared.KindUnreachable,
		shared.KindTransportError,
	} {
		a.Observe(shared.Outcome{Kind: k, Seq: uint(i + 1)})
	}
	s := a.Snapshot()
	if s.Timeouts != 2 || s.TTLExceeded != 1 || s.Unreachable != 3 || s.Errors != 1 {
		t.Errorf("counters = timeouts %d, ttl %d, unreachable %d, errors %d",
			s.Timeouts, s.TTLExceeded, s.Unreachable, s.Errors)
	}
}

func TestSnapshot_RTT(t *testing.T) {
	tests := []struct {
		name       string
		rtts       []time.Duration
		wantMin    time.Duration
		wantAvg    time.Duration
		wantMax    time.Duration
		wantStdDev time.Duration
	}{
		{
			name:    "single reply",
			rtts:    []time.Duration{7 * time.Millisecond},
			wantMin: 7 * time.Millisecond, wantAvg: 7 * time.Millisecond, wantMax: 7 * time.Millisecond,
		},
		{
			name:       "four replies",
			rtts:       []time.Duration{12 * time.Millisecond, 15 * time.Millisecond, 11 * time.Millisecond, 20 * time.Millisecond},
			wantMin:    11 * time.Millisecond,
			wantAvg:    14500 * time.Microsecond,
			wantMax:    20 * time.Millisecond,
			wantStdDev: 3500 * time.Microsecond,
		},
		{
			name:       "mean of uneven values",
			rtts:       []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 15 * time.Millisecond, 30 * time.Millisecond},
			wantMin:    10 * time.Millisecond,
			wantAvg:    18750 * time.Microsecond,
			wantMax:    30 * time.Millisecond,
			wantStdDev: time.Duration(math.Round(math.Sqrt(54.6875) * float64(time.Millisecond))),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New("x")
			for i, rtt := range tt.rtts {
				a.Observe(reply(uint(i+1), rtt))
			}
			s := a.Snapshot()
			if s.RTTMin != tt.wantMin || s.RTTAvg != tt.wantAvg || s.RTTMax != tt.wantMax {
				t.Errorf("min/avg/max = %v/%v/%v, want %v/%v/%v",
					s.RTTMin, s.RTTAvg, s.RTTMax, tt.wantMin, tt.wantAvg, tt.wantMax)
			}
			if diff := s.RTTStdDev - tt.wantStdDev; diff < -time.Microsecond || diff > time.Microsecond {
				t.Errorf("stddev = %v, want %v", s.RTTStdDev, tt.wantStdDev)
			}
		})
	}
}

// twoPassStdDev is the textbook population standard deviation.
func twoPassStdDev(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return math.Sqrt(sq / float64(len(xs)))
}

func TestSnapshot_MatchesTwoPass(t *testing.T) {
	var xs []float64
	a := New("x")
	// Deterministic spread of RTTs between 1ms and ~250ms.
	for i := 1; i <= 500; i++ {
		rtt := time.Duration((i*7919)%250000+1000) * time.Microsecond
		xs = append(xs, float64(rtt))
		a.Observe(reply(uint(i), rtt))
	}
	want := twoPassStdDev(xs)
	got := float64(a.Snapshot().RTTStdDev)
	if math.Abs(got-want) > 1 {
		t.Errorf("stddev = %v ns, two-pass %v ns", got, want)
	}
}

func TestAggregator_Concurrent(t *testing.T) {
	a := New("x")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				a.Observe(reply(uint(j), time.Millisecond))
				_ = a.Snapshot()
			}
		}()
	}
	wg.Wait()
	if s := a.Snapshot(); s.Sent != 800 || s.Received != 800 {
		t.Errorf("Sent/Received = %d/%d, want 800/800", s.Sent, s.Received)
	}
}
