package probe

import (
	"log/slog"

	"github.com/tkjaer/ping/internal/shared"
	"github.com/tkjaer/ping/pkg/echo"
	"github.com/tkjaer/ping/pkg/transport"
)

// handlePacket matches a received packet against the probes in flight and
// emits the outcome it resolves. Packets that resolve nothing are dropped.
func (s *Scheduler) handlePacket(pkt *transport.Packet) {
	m, err := s.codec.Decode(pkt.Data, pkt.Src, pkt.Dst)
	if err != nil {
		slog.Debug("Dropping undecodable packet", "src", pkt.Src, "error", err)
		return
	}
	if m.ID != s.codec.ID() {
		return
	}

	switch m.Kind {
	case echo.KindEchoReply:
		s.handleReply(pkt, m)
	case echo.KindTimeExceeded, echo.KindUnreachable:
		s.handleError(pkt, m)
	default:
		slog.Debug("Ignoring ICMP message", "src", pkt.Src, "type", m.Type, "code", m.Code)
	}
}

func (s *Scheduler) handleReply(pkt *transport.Packet, m echo.Message) {
	if s.cfg.PacketSize >= echo.TrackerLen {
		if t, ok := echo.Tracker(m.Payload); !ok || t != s.tracker {
			slog.Debug("Reply from another session", "src", pkt.Src, "seq", m.Seq)
			return
		}
	}

	p, ok := s.inflight.take(m.Seq)
	if !ok {
		slog.Debug("Reply without probe in flight", "src", pkt.Src, "seq", m.Seq)
		return
	}

	received := pkt.Received
	if received.IsZero() {
		received = s.now()
	}
	rtt := received.Sub(p.sent)
	if rtt > s.cfg.Timeout {
		slog.Debug("Late reply", "seq", p.seq, "rtt", rtt)
		s.emit(shared.Outcome{Kind: shared.KindTimeout, Seq: p.seq, Time: received})
		return
	}

	ttl := pkt.TTL
	if ttl < 0 {
		ttl = s.cfg.TTL
	}
	s.emit(shared.Outcome{
		Kind: shared.KindReply,
		Seq:  p.seq,
		Addr: pkt.Src.String(),
		TTL:  ttl,
		RTT:  rtt,
		Size: len(pkt.Data),
		Time: received,
	})
}

// handleError resolves a probe from an ICMP error quoting it.
func (s *Scheduler) handleError(pkt *transport.Packet, m echo.Message) {
	if m.OriginalDst.IsValid() && m.OriginalDst != s.target.Addr {
		slog.Debug("ICMP error for another destination", "src", pkt.Src, "dst", m.OriginalDst)
		return
	}

	p, ok := s.inflight.take(m.Seq)
	if !ok {
		slog.Debug("ICMP error without probe in flight", "src", pkt.Src, "seq", m.Seq)
		return
	}

	o := shared.Outcome{
		Kind: shared.KindTTLExceeded,
		Seq:  p.seq,
		Addr: pkt.Src.String(),
		Code: m.Code,
		Time: pkt.Received,
	}
	if m.Kind == echo.KindUnreachable {
		o.Kind = shared.KindUnreachable
	}
	if o.Time.IsZero() {
		o.Time = s.now()
	}
	s.emit(o)
}
