package probe

import (
	"context"
	"log/slog"

	"github.com/tkjaer/ping/pkg/transport"
)

// receive reads packets until draining is finished. Each read is bounded by
// the poll interval so the loop notices the end of the run.
func (s *Scheduler) receive(gctx context.Context) error {
	for {
		select {
		case <-s.done:
			slog.Debug("Stopping receive routine")
			return nil
		case <-gctx.Done():
			return nil
		default:
		}

		pkt, err := s.tr.Receive(s.cfg.PollInterval)
		if err != nil {
			if transport.IsFatal(err) {
				slog.Error("Error receiving packets", "error", err)
				return err
			}
			slog.Warn("Receive failed", "error", err)
			continue
		}
		if pkt == nil {
			continue
		}
		s.handlePacket(pkt)
	}
}
