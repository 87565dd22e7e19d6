// ABOUTME: In-process network relay joining two device attachments
// ABOUTME: Forwards events in both directions without loss, duplication or reordering
package relay

import (
	"context"

	"github.com/hactar-dev/hactar-sim/internal/protocol"
	"go.uber.org/zap"
)

// Stats counts events carried in each direction
type Stats struct {
	AToB int
	BToA int
}

// Relay simulates the network between two devices
type Relay struct {
	logger *zap.Logger
	stats  Stats
}

// New creates a relay
func New(logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{logger: logger.Named("relay")}
}

// Run forwards a's outbound events to b and b's to a until either side
// closes or ctx is done. Both inbound senders are closed on return.
func (r *Relay) Run(ctx context.Context, a, b protocol.Attachment) error {
	defer a.Inbound.Close()
	defer b.Inbound.Close()
	defer a.Outbound.Abandon()
	defer b.Outbound.Abandon()

	r.logger.Debug("relay started")

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-a.Outbound.C():
			if !ok {
				r.logger.Debug("side a closed", zap.Int("a_to_b", r.stats.AToB), zap.Int("b_to_a", r.stats.BToA))
				return nil
			}
			b.Inbound.Send(ev)
			r.stats.AToB++

		case ev, ok := <-b.Outbound.C():
			if !ok {
				r.logger.Debug("side b closed", zap.Int("a_to_b", r.stats.AToB), zap.Int("b_to_a", r.stats.BToA))
				return nil
			}
			a.Inbound.Send(ev)
			r.stats.BToA++
		}
	}
}

// Stats returns the forwarded counts. Only meaningful after Run returns.
func (r *Relay) Stats() Stats {
	return r.stats
}
