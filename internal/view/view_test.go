// ABOUTME: Tests for the View relay
// ABOUTME: Checks translation tables, ordering and structural shutdown
package view

import (
	"context"
	"testing"
	"time"

	"github.com/hactar-dev/hactar-sim/internal/mailbox"
	"github.com/hactar-dev/hactar-sim/internal/protocol"
	"github.com/hactar-dev/hactar-sim/pkg/audio"
)

func TestFromWorld(t *testing.T) {
	p := audio.Packet{7, 8}

	if _, ok := FromWorld(protocol.WorldClick{}).(protocol.ControllerClick); !ok {
		t.Error("expected WorldClick to become ControllerClick")
	}

	a, ok := FromWorld(protocol.WorldAudio{Packet: p}).(protocol.ControllerAudio)
	if !ok || &a.Packet[0] != &p[0] {
		t.Errorf("expected ControllerAudio with same packet, got %+v", a)
	}
}

func TestFromController(t *testing.T) {
	p := audio.Packet{9}

	tests := []struct {
		name  string
		in    protocol.ControllerToView
		check func(protocol.ViewToWorld) bool
	}{
		{"show", protocol.ViewShow{Name: "a", Count: 2}, func(ev protocol.ViewToWorld) bool {
			s, ok := ev.(protocol.WorldShow)
			return ok && s.Name == "a" && s.Count == 2
		}},
		{"start", protocol.ViewStartRecording{}, func(ev protocol.ViewToWorld) bool {
			_, ok := ev.(protocol.WorldStartRecording)
			return ok
		}},
		{"stop", protocol.ViewStopRecording{}, func(ev protocol.ViewToWorld) bool {
			_, ok := ev.(protocol.WorldStopRecording)
			return ok
		}},
		{"audio", protocol.ViewAudio{Packet: p}, func(ev protocol.ViewToWorld) bool {
			a, ok := ev.(protocol.WorldPlay)
			return ok && &a.Packet[0] == &p[0]
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if out := FromController(tt.in); !tt.check(out) {
				t.Errorf("unexpected translation %+v", out)
			}
		})
	}
}

type wiring struct {
	worldTx *mailbox.Sender[protocol.WorldToView]
	worldRx *mailbox.Receiver[protocol.ViewToWorld]
	ctrlTx  *mailbox.Sender[protocol.ControllerToView]
	ctrlRx  *mailbox.Receiver[protocol.ViewToController]
	done    chan error
}

func run(t *testing.T) *wiring {
	t.Helper()

	wTx, wRx := mailbox.New[protocol.WorldToView]()
	toWTx, toWRx := mailbox.New[protocol.ViewToWorld]()
	cTx, cRx := mailbox.New[protocol.ControllerToView]()
	toCTx, toCRx := mailbox.New[protocol.ViewToController]()

	v := New(Config{FromWorld: wRx, ToWorld: toWTx, FromController: cRx, ToController: toCTx}, nil)
	w := &wiring{worldTx: wTx, worldRx: toWRx, ctrlTx: cTx, ctrlRx: toCRx, done: make(chan error, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { w.done <- v.Run(ctx) }()
	return w
}

func TestRelayPreservesOrder(t *testing.T) {
	w := run(t)

	for i := 0; i < 100; i++ {
		w.worldTx.Send(protocol.WorldAudio{Packet: audio.Packet{uint16(i)}})
	}
	for i := 0; i < 100; i++ {
		ev, ok := w.ctrlRx.Recv()
		if !ok {
			t.Fatal("mailbox closed early")
		}
		if got := ev.(protocol.ControllerAudio).Packet[0]; got != uint16(i) {
			t.Errorf("expected packet %d, got %d", i, got)
		}
	}
}

func TestClosedWorldClosesOutputs(t *testing.T) {
	w := run(t)
	w.worldTx.Send(protocol.WorldClick{})
	w.worldTx.Close()

	select {
	case <-w.done:
	case <-time.After(2 * time.Second):
		t.Fatal("view did not stop")
	}

	if _, ok := w.ctrlRx.Recv(); !ok {
		t.Error("expected the click sent before close to be delivered")
	}
	if _, ok := w.ctrlRx.Recv(); ok {
		t.Error("expected controller mailbox closed")
	}
	if _, ok := w.worldRx.Recv(); ok {
		t.Error("expected world mailbox closed")
	}
}

func TestClosedControllerStopsView(t *testing.T) {
	w := run(t)
	w.ctrlTx.Close()

	select {
	case err := <-w.done:
		if err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("view did not stop")
	}
}

func TestStopWithoutRunClosesOutbound(t *testing.T) {
	_, worldRx := mailbox.New[protocol.WorldToView]()
	toWorldTx, toWorldRx := mailbox.New[protocol.ViewToWorld]()
	_, ctrlRx := mailbox.New[protocol.ControllerToView]()
	toCtrlTx, toCtrlRx := mailbox.New[protocol.ViewToController]()

	v := New(Config{
		FromWorld:      worldRx,
		ToWorld:        toWorldTx,
		FromController: ctrlRx,
		ToController:   toCtrlTx,
	}, nil)
	v.Stop()
	v.Stop()

	if _, ok := toWorldRx.Recv(); ok {
		t.Error("expected world side closed")
	}
	if _, ok := toCtrlRx.Recv(); ok {
		t.Error("expected controller side closed")
	}
}
