package probe

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tkjaer/ping/internal/shared"
	"github.com/tkjaer/ping/pkg/echo"
)

var errAlreadyStarted = errors.New("scheduler already started")

// Scheduler sends Echo Requests to one target at a fixed interval and turns
// every request into exactly one outcome.
type Scheduler struct {
	cfg     ProbeConfig
	target  Target
	tr      Transport
	codec   *echo.Codec
	tracker uuid.UUID
	payload []byte
	now     func() time.Time

	inflight *inFlightTable
	state    atomic.Int32
	outcomes chan shared.Outcome

	stopCh   chan struct{}
	stopOnce sync.Once
	sendDone chan struct{} // closed when the send task returns
	done     chan struct{} // closed when draining is finished
	progress chan struct{} // signalled on every outcome

	sent     atomic.Uint64
	resolved atomic.Uint64
}

// NewScheduler returns an idle scheduler. Zero timing fields get defaults:
// the timeout falls back to the interval and the poll interval to 100ms.
func NewScheduler(cfg ProbeConfig, target Target, tr Transport) *Scheduler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	tracker := uuid.New()
	s := &Scheduler{
		cfg:      cfg,
		target:   target,
		tr:       tr,
		codec:    echo.NewCodec(echo.FamilyOf(target.Addr), cfg.Identifier, target.Source, target.Addr),
		tracker:  tracker,
		payload:  echo.NewPayload(cfg.PacketSize, tracker),
		now:      time.Now,
		inflight: newInFlightTable(cfg.Timeout, inFlightCapacity(cfg.Count)),
		outcomes: make(chan shared.Outcome, 128),
		stopCh:   make(chan struct{}),
		sendDone: make(chan struct{}),
		done:     make(chan struct{}),
		progress: make(chan struct{}, 1),
	}
	return s
}

// inFlightCapacity bounds the in-flight table by the probe count, and by
// the 16-bit wire sequence space otherwise.
func inFlightCapacity(count int) uint64 {
	if count > 0 {
		return uint64(min(count, 1<<16))
	}
	return 1 << 16
}

// Outcomes returns the outcome stream. It has a single consumer and is
// closed once the scheduler is stopped.
func (s *Scheduler) Outcomes() <-chan shared.Outcome {
	return s.outcomes
}

// State returns the current state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// Stop ends sending and starts draining. It does not wait for the run to
// finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		slog.Debug("Stopping scheduler")
		close(s.stopCh)
	})
}

// Run sends probes until the count is reached, Stop is called or ctx is
// cancelled, then drains the probes still in flight. It returns a non-nil
// error only when the transport failed fatally.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return errAlreadyStarted
	}
	s.inflight.start()
	defer s.inflight.stop()

	// The group context is cancelled only by a fatal task error, so the
	// receive task keeps running through the drain after ctx is cancelled.
	g, gctx := errgroup.WithContext(context.Background())
	interrupted := s.watchStop(ctx, gctx)
	g.Go(func() error { return s.transmit(interrupted) })
	g.Go(func() error { return s.receive(gctx) })
	g.Go(func() error { return s.collectExpired(gctx) })

	<-s.sendDone
	s.setState(StateDraining)
	slog.Debug("Draining", "sent", s.sent.Load(), "resolved", s.resolved.Load())
	s.drain(gctx, interrupted)

	close(s.done)
	err := g.Wait()
	s.emitExpired()
	close(s.outcomes)
	s.setState(StateStopped)
	slog.Debug("Scheduler stopped", "sent", s.sent.Load(), "resolved", s.resolved.Load())
	return err
}

// drain waits for the probes in flight to resolve, then flushes what is
// left. When the count was reached the probes get their full timeout plus
// the grace period; after a stop or a cancellation only the grace period.
func (s *Scheduler) drain(gctx context.Context, interrupted <-chan struct{}) {
	if gctx.Err() == nil {
		if !s.countReached() || !s.waitResolved(s.cfg.Timeout+s.cfg.Grace, interrupted) {
			s.waitResolved(s.cfg.Grace, nil)
		}
	}

	kind, reason := shared.KindTimeout, ""
	if gctx.Err() != nil {
		kind, reason = shared.KindTransportError, context.Cause(gctx).Error()
	}
	now := s.now()
	for _, p := range s.inflight.takeAll() {
		s.emit(shared.Outcome{Kind: kind, Seq: p.seq, Reason: reason, Time: now})
	}

	if !s.waitResolved(resolveWait, nil) {
		slog.Warn("Probes left without outcome", "sent", s.sent.Load(), "resolved", s.resolved.Load())
	}
}

// waitResolved waits until every probe sent has an outcome, d elapses or
// interrupt is closed. It reports whether all outcomes arrived.
func (s *Scheduler) waitResolved(d time.Duration, interrupt <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		s.emitExpired()
		if s.resolved.Load() >= s.sent.Load() {
			return true
		}
		select {
		case <-s.progress:
		case <-s.inflight.notify:
		case <-timer.C:
			return false
		case <-interrupt:
			return false
		}
	}
}

// watchStop returns a channel that is closed on Stop, on cancellation of
// ctx or on a fatal task error.
func (s *Scheduler) watchStop(ctx, gctx context.Context) <-chan struct{} {
	interrupted := make(chan struct{})
	go func() {
		select {
		case <-s.stopCh:
		case <-ctx.Done():
		case <-gctx.Done():
		case <-s.done:
			return
		}
		close(interrupted)
	}()
	return interrupted
}

// collectExpired turns probes evicted by the expiry loop into Timeout
// outcomes.
func (s *Scheduler) collectExpired(gctx context.Context) error {
	for {
		select {
		case <-s.inflight.notify:
			s.emitExpired()
		case <-s.done:
			return nil
		case <-gctx.Done():
			return nil
		}
	}
}

func (s *Scheduler) emitExpired() {
	for _, p := range s.inflight.drainExpired() {
		s.emit(shared.Outcome{Kind: shared.KindTimeout, Seq: p.seq, Time: s.now()})
	}
}

func (s *Scheduler) emit(o shared.Outcome) {
	s.outcomes <- o
	s.resolved.Add(1)
	select {
	case s.progress <- struct{}{}:
	default:
	}
}

func (s *Scheduler) countReached() bool {
	return s.cfg.Count >= 0 && s.sent.Load() >= uint64(s.cfg.Count)
}
