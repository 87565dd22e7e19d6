// ABOUTME: View: translates events between the World and the Controller
// ABOUTME: Holds no state; each event is forwarded exactly once, payload untouched
package view

import (
	"context"
	"sync"

	"github.com/hactar-dev/hactar-sim/internal/mailbox"
	"github.com/hactar-dev/hactar-sim/internal/protocol"
	"go.uber.org/zap"
)

// Config wires a View between its World and Controller
type Config struct {
	FromWorld      *mailbox.Receiver[protocol.WorldToView]
	ToWorld        *mailbox.Sender[protocol.ViewToWorld]
	FromController *mailbox.Receiver[protocol.ControllerToView]
	ToController   *mailbox.Sender[protocol.ViewToController]
}

// View relays events between a World and a Controller
type View struct {
	config   Config
	logger   *zap.Logger
	stopOnce sync.Once
}

// New creates a view
func New(config Config, logger *zap.Logger) *View {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &View{config: config, logger: logger.Named("view")}
}

// Run relays until either inbound mailbox closes or ctx is done, then closes
// both outbound mailboxes.
func (v *View) Run(ctx context.Context) error {
	c := v.config
	defer v.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-c.FromWorld.C():
			if !ok {
				v.logger.Debug("world closed")
				return nil
			}
			if out := FromWorld(ev); out != nil {
				c.ToController.Send(out)
			}

		case ev, ok := <-c.FromController.C():
			if !ok {
				v.logger.Debug("controller closed")
				return nil
			}
			if out := FromController(ev); out != nil {
				c.ToWorld.Send(out)
			}
		}
	}
}

// Stop closes both outbound mailboxes and abandons both inbound ones. Run
// calls it on return; call it directly only for a view that never ran.
func (v *View) Stop() {
	v.stopOnce.Do(func() {
		c := v.config
		c.ToWorld.Close()
		c.ToController.Close()
		c.FromWorld.Abandon()
		c.FromController.Abandon()
	})
}

// FromWorld translates a World event for the Controller
func FromWorld(ev protocol.WorldToView) protocol.ViewToController {
	switch e := ev.(type) {
	case protocol.WorldClick:
		return protocol.ControllerClick{}
	case protocol.WorldAudio:
		return protocol.ControllerAudio{Packet: e.Packet}
	}
	return nil
}

// FromController translates a Controller event for the World
func FromController(ev protocol.ControllerToView) protocol.ViewToWorld {
	switch e := ev.(type) {
	case protocol.ViewShow:
		return protocol.WorldShow{Name: e.Name, Count: e.Count}
	case protocol.ViewStartRecording:
		return protocol.WorldStartRecording{}
	case protocol.ViewStopRecording:
		return protocol.WorldStopRecording{}
	case protocol.ViewAudio:
		return protocol.WorldPlay{Packet: e.Packet}
	}
	return nil
}
