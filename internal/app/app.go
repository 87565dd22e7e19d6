// ABOUTME: Application orchestration for local and two-process runs
// ABOUTME: Opens audio, surfaces and devices, links them and drives the tick loop
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/hactar-dev/hactar-sim/internal/config"
	"github.com/hactar-dev/hactar-sim/internal/device"
	"github.com/hactar-dev/hactar-sim/internal/relay"
	"github.com/hactar-dev/hactar-sim/internal/ui"
	"github.com/hactar-dev/hactar-sim/pkg/audio"
	"github.com/hactar-dev/hactar-sim/pkg/audio/backend"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// App runs simulated devices according to a config
type App struct {
	config *config.Config
	logger *zap.Logger
}

// New creates an app
func New(cfg *config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{config: cfg, logger: logger}
}

// RunLocal runs two devices in this process joined by the in-process relay.
// It returns when a surface closes, escape is pressed or ctx is done.
func (a *App) RunLocal(ctx context.Context) error {
	if err := a.config.RequireDevices(2); err != nil {
		return err
	}

	ctx, cancel := a.withDuration(ctx)
	defer cancel()

	host, err := a.openHost()
	if err != nil {
		return err
	}
	defer host.Close()

	panels := ui.NewHeadless(a.config.Devices...)
	devices, err := a.buildDevices(host, panels)
	if err != nil {
		return err
	}

	stopSurfaces := a.startSurfaces(ctx, panels)
	defer stopSurfaces()

	for _, d := range devices {
		d.Start(ctx)
	}

	g := &errgroup.Group{}
	r := relay.New(a.logger)
	linkA, linkB := devices[0].NetworkAttachment(), devices[1].NetworkAttachment()
	g.Go(func() error { return r.Run(ctx, linkA, linkB) })

	a.logger.Info("simulator running",
		zap.Strings("devices", a.config.Devices),
		zap.String("backend", a.config.Audio.Backend),
		zap.String("ui", a.config.UI.Mode))

	device.Run(ctx, a.config.FPS, devices...)

	for _, d := range devices {
		g.Go(d.Wait)
	}
	err = g.Wait()

	stats := r.Stats()
	a.logger.Info("simulator stopped", zap.Int("a_to_b", stats.AToB), zap.Int("b_to_a", stats.BToA))
	return err
}

// withDuration bounds ctx by the configured run time, if any
func (a *App) withDuration(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.UI.Duration > 0 {
		return context.WithTimeout(ctx, a.config.UI.Duration)
	}
	return context.WithCancel(ctx)
}

// openHost creates the configured audio host
func (a *App) openHost() (backend.Host, error) {
	null := backend.DefaultNullConfig()
	null.Format = audio.Format{SampleRate: a.config.Audio.SampleRate, Channels: a.config.Audio.Channels}

	host, err := backend.New(a.config.Audio.Backend, null, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio backend: %w", err)
	}
	return host, nil
}

// buildDevices creates one device per panel, closing the ones already
// built if any fails
func (a *App) buildDevices(host backend.Host, panels []*ui.Panel) ([]*device.Device, error) {
	devices := make([]*device.Device, 0, len(panels))
	for _, p := range panels {
		d, err := device.New(device.Config{
			Name:      p.Name(),
			FrameMs:   a.config.FrameMs,
			LatencyMs: a.config.Audio.LatencyMs,
		}, host, p, a.logger)
		if err != nil {
			for _, built := range devices {
				built.Close()
			}
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// startSurfaces puts the panels on screen (terminal mode) or starts the
// click script (headless mode). The returned func undoes it.
func (a *App) startSurfaces(ctx context.Context, panels []*ui.Panel) func() {
	if a.config.UI.Mode == config.ModeTUI {
		term := ui.NewTerminal(panels)
		term.Start()
		return func() {
			if err := term.Stop(); err != nil {
				a.logger.Warn("terminal UI failed", zap.Error(err))
			}
		}
	}

	if a.config.UI.ClickInterval <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		clickScript(ctx, panels, a.config.UI.ClickInterval)
	}()
	return func() {
		cancel()
		<-done
	}
}

// clickScript presses each panel in turn, one press per interval. A press
// is held for half the interval so the world sees the level change.
func clickScript(ctx context.Context, panels []*ui.Panel, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	next := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		p := panels[next%len(panels)]
		next++

		p.Press()
		select {
		case <-ctx.Done():
			p.Release()
			return
		case <-time.After(interval / 2):
		}
		p.Release()
	}
}
