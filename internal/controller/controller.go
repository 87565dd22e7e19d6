// ABOUTME: Device controller: click bookkeeping and recording state
// ABOUTME: Routes events between the View and the network attachment
package controller

import (
	"context"
	"sync"

	"github.com/hactar-dev/hactar-sim/internal/handoff"
	"github.com/hactar-dev/hactar-sim/internal/mailbox"
	"github.com/hactar-dev/hactar-sim/internal/protocol"
	"go.uber.org/zap"
)

// Controller owns a device's click counts and recording state
type Controller struct {
	name   string
	logger *zap.Logger

	fromView    *mailbox.Receiver[protocol.ViewToController]
	toView      *mailbox.Sender[protocol.ControllerToView]
	fromNetwork *mailbox.Receiver[protocol.NetworkEvent]
	toNetwork   *mailbox.Sender[protocol.NetworkEvent]

	attachment *handoff.Once[protocol.Attachment]
	stopOnce   sync.Once

	mu        sync.Mutex
	counts    map[string]int
	recording bool
}

// New creates a controller for the device called name, wired to its View.
// The network side is created here and handed out by NetworkAttachment.
func New(name string, fromView *mailbox.Receiver[protocol.ViewToController], toView *mailbox.Sender[protocol.ControllerToView], logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}

	outTx, outRx := mailbox.New[protocol.NetworkEvent]()
	inTx, inRx := mailbox.New[protocol.NetworkEvent]()

	return &Controller{
		name:        name,
		logger:      logger.Named("controller").With(zap.String("device", name)),
		fromView:    fromView,
		toView:      toView,
		fromNetwork: inRx,
		toNetwork:   outTx,
		attachment:  handoff.New(protocol.Attachment{Outbound: outRx, Inbound: inTx}),
		counts:      make(map[string]int),
	}
}

// NetworkAttachment hands out the network side of the controller.
// It panics with handoff.ErrAlreadyTaken when called a second time.
func (c *Controller) NetworkAttachment() protocol.Attachment {
	return c.attachment.MustTake()
}

// Run processes events until either inbound mailbox closes or ctx is done.
// On return the controller's outbound mailboxes are closed.
func (c *Controller) Run(ctx context.Context) error {
	defer c.Stop()

	c.logger.Debug("controller started")
	defer c.logger.Debug("controller stopped")

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-c.fromView.C():
			if !ok {
				return nil
			}
			c.handleView(ev)

		case ev, ok := <-c.fromNetwork.C():
			if !ok {
				return nil
			}
			c.handleNetwork(ev)
		}
	}
}

// Stop closes the controller's outbound mailboxes and abandons its inbound
// ones. An attachment nobody took is released too. Run calls it on return;
// call it directly only for a controller that never ran.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		c.toView.Close()
		c.toNetwork.Close()
		c.fromView.Abandon()
		c.fromNetwork.Abandon()

		if att, err := c.attachment.Take(); err == nil {
			att.Inbound.Close()
			att.Outbound.Abandon()
		}
	})
}

func (c *Controller) handleView(ev protocol.ViewToController) {
	switch e := ev.(type) {
	case protocol.ControllerClick:
		click := protocol.NetClick{Name: c.name}
		c.handleNetwork(click)
		c.toNetwork.Send(click)

		if c.toggleRecording() {
			c.logger.Debug("recording started")
			c.toView.Send(protocol.ViewStartRecording{})
		} else {
			c.logger.Debug("recording stopped")
			c.toView.Send(protocol.ViewStopRecording{})
		}

	case protocol.ControllerAudio:
		c.toNetwork.Send(protocol.NetAudio{Packet: e.Packet})
	}
}

func (c *Controller) handleNetwork(ev protocol.NetworkEvent) {
	switch e := ev.(type) {
	case protocol.NetClick:
		count := c.count(e.Name)
		c.toView.Send(protocol.ViewShow{Name: e.Name, Count: count})

	case protocol.NetAudio:
		c.toView.Send(protocol.ViewAudio{Packet: e.Packet})
	}
}

func (c *Controller) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[name]++
	return c.counts[name]
}

func (c *Controller) toggleRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recording = !c.recording
	return c.recording
}

// Count returns the clicks seen so far for name
func (c *Controller) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

// Recording reports whether the controller last asked for capture to run
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// Name returns the device identity
func (c *Controller) Name() string {
	return c.name
}
