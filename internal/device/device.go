// ABOUTME: Device composition root: one World, View and Controller wired by mailboxes
// ABOUTME: Also provides the main-goroutine driver that ticks a set of devices
package device

import (
	"context"
	"fmt"
	"time"

	"github.com/hactar-dev/hactar-sim/internal/controller"
	"github.com/hactar-dev/hactar-sim/internal/mailbox"
	"github.com/hactar-dev/hactar-sim/internal/protocol"
	"github.com/hactar-dev/hactar-sim/internal/ui"
	"github.com/hactar-dev/hactar-sim/internal/view"
	"github.com/hactar-dev/hactar-sim/internal/world"
	"github.com/hactar-dev/hactar-sim/pkg/audio/backend"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config holds device configuration
type Config struct {
	Name      string
	FrameMs   int
	LatencyMs int
}

// Device is one simulated unit
type Device struct {
	name       string
	logger     *zap.Logger
	world      *world.World
	view       *view.View
	controller *controller.Controller
	group      *errgroup.Group
}

// New builds a device on host's default audio devices, drawing on surface.
// It fails if either audio device or stream cannot be opened.
func New(config Config, host backend.Host, surface ui.Surface, logger *zap.Logger) (*Device, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("device name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	worldTx, worldRx := mailbox.New[protocol.WorldToView]()
	toWorldTx, toWorldRx := mailbox.New[protocol.ViewToWorld]()
	toCtrlTx, toCtrlRx := mailbox.New[protocol.ViewToController]()
	ctrlTx, ctrlRx := mailbox.New[protocol.ControllerToView]()

	w, err := world.New(world.Config{
		Name:      config.Name,
		FrameMs:   config.FrameMs,
		LatencyMs: config.LatencyMs,
	}, host, surface, toWorldRx, worldTx, logger)
	if err != nil {
		worldTx.Close()
		toWorldTx.Close()
		toCtrlTx.Close()
		ctrlTx.Close()
		return nil, fmt.Errorf("device %s: %w", config.Name, err)
	}

	return &Device{
		name:   config.Name,
		logger: logger.Named("device").With(zap.String("device", config.Name)),
		world:  w,
		view: view.New(view.Config{
			FromWorld:      worldRx,
			ToWorld:        toWorldTx,
			FromController: ctrlRx,
			ToController:   toCtrlTx,
		}, logger.With(zap.String("device", config.Name))),
		controller: controller.New(config.Name, toCtrlRx, ctrlTx, logger),
	}, nil
}

// Name returns the device identity
func (d *Device) Name() string {
	return d.name
}

// NetworkAttachment hands out the controller's network side. Panics on a second call.
func (d *Device) NetworkAttachment() protocol.Attachment {
	return d.controller.NetworkAttachment()
}

// Start runs the View and Controller on their own goroutines
func (d *Device) Start(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.view.Run(ctx) })
	g.Go(func() error { return d.controller.Run(ctx) })
	d.group = g
	d.logger.Debug("device started")
}

// Wait blocks until the View and Controller have stopped
func (d *Device) Wait() error {
	if d.group == nil {
		return nil
	}
	return d.group.Wait()
}

// Ready reports whether the device's surface is still usable
func (d *Device) Ready() bool {
	return d.world.Ready()
}

// RunOne ticks the World
func (d *Device) RunOne() {
	d.world.RunOne()
}

// Close closes the World, which shuts the View and Controller down in turn.
// A device that was never started has its View and Controller mailboxes
// released here instead.
func (d *Device) Close() {
	d.world.Close()
	if d.group == nil {
		d.view.Stop()
		d.controller.Stop()
	}
}

// Stats returns the World's pipeline counters
func (d *Device) Stats() world.Stats {
	return d.world.Stats()
}

// Count returns how many clicks from name the controller has seen
func (d *Device) Count(name string) int {
	return d.controller.Count(name)
}

// Recording reports whether the device's capture stream is running
func (d *Device) Recording() bool {
	return d.world.Recording()
}

// Run ticks every device in order at fps frames per second while all of
// them are ready, then closes them all. It must run on the goroutine that
// created the devices.
func Run(ctx context.Context, fps int, devices ...*Device) {
	if fps <= 0 {
		fps = 60
	}

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	defer func() {
		for _, d := range devices {
			d.Close()
		}
	}()

	for allReady(devices) {
		for _, d := range devices {
			d.RunOne()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func allReady(devices []*Device) bool {
	for _, d := range devices {
		if !d.Ready() {
			return false
		}
	}
	return true
}
