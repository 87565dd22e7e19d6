// ABOUTME: Tests for the device controller
// ABOUTME: Covers click counting, recording toggles, audio forwarding and shutdown
package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hactar-dev/hactar-sim/internal/handoff"
	"github.com/hactar-dev/hactar-sim/internal/mailbox"
	"github.com/hactar-dev/hactar-sim/internal/protocol"
	"github.com/hactar-dev/hactar-sim/pkg/audio"
)

type harness struct {
	ctrl   *Controller
	view   *mailbox.Sender[protocol.ViewToController]
	fromC  *mailbox.Receiver[protocol.ControllerToView]
	net    protocol.Attachment
	done   chan error
	cancel context.CancelFunc
}

func start(t *testing.T, name string) *harness {
	t.Helper()

	viewTx, viewRx := mailbox.New[protocol.ViewToController]()
	ctrlTx, ctrlRx := mailbox.New[protocol.ControllerToView]()

	c := New(name, viewRx, ctrlTx, nil)
	h := &harness{
		ctrl:  c,
		view:  viewTx,
		fromC: ctrlRx,
		net:   c.NetworkAttachment(),
		done:  make(chan error, 1),
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- c.Run(ctx) }()
	t.Cleanup(cancel)
	return h
}

func recv[T any](t *testing.T, rx *mailbox.Receiver[T]) T {
	t.Helper()
	select {
	case v, ok := <-rx.C():
		if !ok {
			t.Fatal("mailbox closed")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

func TestLocalClickCountsAndForwards(t *testing.T) {
	h := start(t, "a")
	h.view.Send(protocol.ControllerClick{})

	show, ok := recv(t, h.fromC).(protocol.ViewShow)
	if !ok || show.Name != "a" || show.Count != 1 {
		t.Errorf("expected ViewShow{a 1}, got %+v", show)
	}
	if _, ok := recv(t, h.fromC).(protocol.ViewStartRecording); !ok {
		t.Error("expected ViewStartRecording after first click")
	}

	click, ok := recv(t, h.net.Outbound).(protocol.NetClick)
	if !ok || click.Name != "a" {
		t.Errorf("expected NetClick{a}, got %+v", click)
	}
}

func TestRecordingTogglesPerLocalClick(t *testing.T) {
	h := start(t, "a")

	h.view.Send(protocol.ControllerClick{})
	recv(t, h.fromC)
	if _, ok := recv(t, h.fromC).(protocol.ViewStartRecording); !ok {
		t.Error("expected start on click 1")
	}

	// remote clicks never touch recording state
	h.net.Inbound.Send(protocol.NetClick{Name: "b"})
	recv(t, h.fromC)

	h.view.Send(protocol.ControllerClick{})
	recv(t, h.fromC)
	if _, ok := recv(t, h.fromC).(protocol.ViewStopRecording); !ok {
		t.Error("expected stop on click 2")
	}

	h.view.Send(protocol.ControllerClick{})
	recv(t, h.fromC)
	if _, ok := recv(t, h.fromC).(protocol.ViewStartRecording); !ok {
		t.Error("expected start on click 3")
	}
}

func TestRemoteClicksCountPerName(t *testing.T) {
	h := start(t, "b")

	for i := 1; i <= 3; i++ {
		h.net.Inbound.Send(protocol.NetClick{Name: "a"})
		show := recv(t, h.fromC).(protocol.ViewShow)
		if show.Name != "a" || show.Count != i {
			t.Errorf("expected ViewShow{a %d}, got %+v", i, show)
		}
	}

	if h.ctrl.Count("a") != 3 {
		t.Errorf("expected count 3 for a, got %d", h.ctrl.Count("a"))
	}
	if h.ctrl.Count("b") != 0 {
		t.Errorf("expected own count 0, got %d", h.ctrl.Count("b"))
	}
	if h.ctrl.Recording() {
		t.Error("remote clicks must not start recording")
	}
}

func TestAudioForwardedUnchanged(t *testing.T) {
	h := start(t, "a")

	local := audio.Packet{1, 2, 3}
	h.view.Send(protocol.ControllerAudio{Packet: local})
	out := recv(t, h.net.Outbound).(protocol.NetAudio)
	if len(out.Packet) != 3 || &out.Packet[0] != &local[0] {
		t.Errorf("expected the same packet forwarded, got %v", out.Packet)
	}

	remote := audio.Packet{4, 5}
	h.net.Inbound.Send(protocol.NetAudio{Packet: remote})
	in := recv(t, h.fromC).(protocol.ViewAudio)
	if len(in.Packet) != 2 || &in.Packet[0] != &remote[0] {
		t.Errorf("expected the same packet delivered, got %v", in.Packet)
	}
}

func TestAttachmentTakenOnce(t *testing.T) {
	h := start(t, "a")

	defer func() {
		err, ok := recover().(error)
		if !ok || !errors.Is(err, handoff.ErrAlreadyTaken) {
			t.Errorf("expected panic with ErrAlreadyTaken, got %v", err)
		}
	}()
	h.ctrl.NetworkAttachment()
}

func TestClosedViewStopsController(t *testing.T) {
	h := start(t, "a")
	h.view.Close()

	select {
	case err := <-h.done:
		if err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not stop")
	}

	if _, ok := h.fromC.Recv(); ok {
		t.Error("expected view mailbox closed")
	}
	if _, ok := h.net.Outbound.Recv(); ok {
		t.Error("expected network outbound closed")
	}

	// sends into an abandoned inbox must not block
	for i := 0; i < 100; i++ {
		h.net.Inbound.Send(protocol.NetClick{Name: "b"})
	}
}

func TestClosedNetworkStopsController(t *testing.T) {
	h := start(t, "a")
	h.net.Inbound.Close()

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not stop")
	}
}

func TestStopWithoutRunReleasesAttachment(t *testing.T) {
	_, viewRx := mailbox.New[protocol.ViewToController]()
	ctrlTx, ctrlRx := mailbox.New[protocol.ControllerToView]()

	c := New("a", viewRx, ctrlTx, nil)
	c.Stop()
	c.Stop()

	if _, ok := ctrlRx.Recv(); ok {
		t.Error("expected view side closed")
	}

	defer func() {
		if r := recover(); r != handoff.ErrAlreadyTaken {
			t.Errorf("expected the unused attachment to be consumed by Stop, got %v", r)
		}
	}()
	c.NetworkAttachment()
}
