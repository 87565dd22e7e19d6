// ABOUTME: Two-process mode: one device per process joined over a websocket link
// ABOUTME: serve listens (and advertises over mDNS); join dials a known or discovered peer
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hactar-dev/hactar-sim/internal/device"
	"github.com/hactar-dev/hactar-sim/internal/discovery"
	"github.com/hactar-dev/hactar-sim/internal/netlink"
	"github.com/hactar-dev/hactar-sim/internal/ui"
	"go.uber.org/zap"
)

const (
	discoveryTimeout = 10 * time.Second
	dialRetry        = 250 * time.Millisecond
)

// Serve waits for a peer on net.listen and runs the first configured device against it
func (a *App) Serve(ctx context.Context) error {
	name := a.config.Devices[0]

	ctx, cancel := a.withDuration(ctx)
	defer cancel()

	l, err := netlink.Listen(a.config.Net.Listen, a.logger)
	if err != nil {
		return err
	}
	defer l.Close()

	if a.config.Net.MDNS {
		mgr := discovery.NewManager(discovery.Config{Device: name, Port: l.Port()}, a.logger)
		if err := mgr.Advertise(); err != nil {
			a.logger.Warn("mDNS advertisement failed", zap.Error(err))
		}
		defer mgr.Stop()
	}

	a.logger.Info("waiting for peer", zap.String("addr", l.Addr().String()))
	conn, err := l.Accept(ctx, name)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return fmt.Errorf("accept failed: %w", err)
	}

	return a.runLinked(ctx, name, conn)
}

// Join connects to net.peer, or to a peer found over mDNS, and runs the
// second configured device against it (the only one if just one is set)
func (a *App) Join(ctx context.Context) error {
	name := a.joinName()

	ctx, cancel := a.withDuration(ctx)
	defer cancel()

	addr := a.config.Net.Peer
	if addr == "" {
		if !a.config.Net.MDNS {
			return fmt.Errorf("no peer address configured and mDNS disabled")
		}

		mgr := discovery.NewManager(discovery.Config{Device: name}, a.logger)
		findCtx, findCancel := context.WithTimeout(ctx, discoveryTimeout)
		peer, err := mgr.WaitForPeer(findCtx)
		findCancel()
		mgr.Stop()
		if err != nil {
			return err
		}
		addr = peer.Addr()
	}

	conn, err := a.dial(ctx, addr, name)
	if err != nil {
		return err
	}

	return a.runLinked(ctx, name, conn)
}

// joinName picks the joining device. With the default pair this is the
// second name, so it differs from the serving side and mDNS does not skip
// the server as itself.
func (a *App) joinName() string {
	return a.config.Devices[len(a.config.Devices)-1]
}

// dial retries until the peer accepts or ctx is done
func (a *App) dial(ctx context.Context, addr, name string) (*netlink.Conn, error) {
	for {
		conn, err := netlink.Dial(ctx, addr, name, a.logger)
		if err == nil {
			return conn, nil
		}
		if errors.Is(err, netlink.ErrSameName) {
			return nil, err
		}
		a.logger.Debug("dial failed, retrying", zap.String("addr", addr), zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("could not reach %s: %w", addr, err)
		case <-time.After(dialRetry):
		}
	}
}

// runLinked runs one device bridged to conn until the device or the link stops
func (a *App) runLinked(ctx context.Context, name string, conn *netlink.Conn) error {
	defer conn.Close()

	host, err := a.openHost()
	if err != nil {
		return err
	}
	defer host.Close()

	panels := ui.NewHeadless(name)
	devices, err := a.buildDevices(host, panels)
	if err != nil {
		return err
	}
	d := devices[0]

	stopSurfaces := a.startSurfaces(ctx, panels)
	defer stopSurfaces()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	d.Start(ctx)

	linkDone := make(chan error, 1)
	attachment := d.NetworkAttachment()
	go func() {
		linkDone <- conn.Bridge(ctx, attachment)
		stop()
	}()

	a.logger.Info("device linked", zap.String("device", name), zap.String("peer", conn.Remote().Device))

	device.Run(runCtx, a.config.FPS, d)

	err = errors.Join(d.Wait(), <-linkDone)
	s := d.Stats()
	a.logger.Info("device stopped",
		zap.Uint64("captured", s.Captured),
		zap.Uint64("played", s.Played),
		zap.Uint64("underrun", s.Underrun))
	return err
}
