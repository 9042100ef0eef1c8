package probe

import (
	"log/slog"
	"time"

	"github.com/tkjaer/ping/internal/shared"
	"github.com/tkjaer/ping/pkg/transport"
)

// transmit sends the first probe immediately and then one per interval
// until the count is reached or the run is interrupted. It returns an error
// only when the transport is no longer usable.
func (s *Scheduler) transmit(interrupted <-chan struct{}) error {
	defer close(s.sendDone)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for !s.countReached() {
		select {
		case <-interrupted:
			slog.Debug("Stopping transmit routine")
			return nil
		default:
		}

		if err := s.sendProbe(); err != nil {
			slog.Error("Error sending probe", "error", err)
			return err
		}
		if s.countReached() {
			slog.Debug("Probe count reached", "sent", s.sent.Load())
			return nil
		}

		select {
		case <-ticker.C:
		case <-interrupted:
			slog.Debug("Stopping transmit routine")
			return nil
		}
	}
	return nil
}

// sendProbe sends the next Echo Request. A failed send resolves the probe
// as TransportError; the error is returned only if it is fatal.
func (s *Scheduler) sendProbe() error {
	seq := uint(s.sent.Load()) + 1
	wire := uint16(seq)

	b, err := s.codec.Encode(wire, s.payload)
	if err != nil {
		s.sent.Add(1)
		s.emit(s.transportError(seq, err))
		return nil
	}

	if old, replaced := s.inflight.add(wire, inFlight{seq: seq, sent: s.now()}); replaced {
		slog.Debug("Sequence reused while in flight", "seq", old.seq, "wire", wire)
		s.emit(shared.Outcome{Kind: shared.KindTimeout, Seq: old.seq, Time: s.now()})
	}
	s.sent.Add(1)

	err = s.tr.SetTTL(s.cfg.TTL)
	if err == nil {
		err = s.tr.Send(s.target.Addr, b)
	}
	if err != nil {
		if _, ok := s.inflight.take(wire); ok {
			s.emit(s.transportError(seq, err))
		}
		if transport.IsFatal(err) {
			return err
		}
		return nil
	}
	slog.Debug("Sent probe", "seq", seq, "dst", s.target.Addr)
	return nil
}

func (s *Scheduler) transportError(seq uint, err error) shared.Outcome {
	return shared.Outcome{
		Kind:   shared.KindTransportError,
		Seq:    seq,
		Reason: err.Error(),
		Time:   s.now(),
	}
}
