// ABOUTME: World: a device's surface and audio hardware, ticked from the main goroutine
// ABOUTME: Turns pointer presses and captured audio into events and applies the View's requests
package world

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/hactar-dev/hactar-sim/internal/mailbox"
	"github.com/hactar-dev/hactar-sim/internal/protocol"
	"github.com/hactar-dev/hactar-sim/internal/ui"
	"github.com/hactar-dev/hactar-sim/pkg/audio"
	"github.com/hactar-dev/hactar-sim/pkg/audio/backend"
	"github.com/hactar-dev/hactar-sim/pkg/audio/packet"
	"go.uber.org/zap"
)

// blendSteps is the number of frames spent fading between two colors
const blendSteps = 128

// Config holds world configuration
type Config struct {
	Name      string
	FrameMs   int // packet duration
	LatencyMs int // silence played before the first received packet
}

// Stats counts packets through the world's audio pipeline
type Stats struct {
	Captured  uint64 // packets completed by the capture callback
	Forwarded uint64 // packets handed to the View
	Queued    uint64 // packets received for playback
	Played    uint64 // packets taken by the playback callback
	Underrun  uint64 // silence samples substituted on playback
}

// World owns the surface and the audio streams of one device.
// Every method must be called from the goroutine that created it.
type World struct {
	config    Config
	logger    *zap.Logger
	surface   ui.Surface
	annotator ui.Annotator

	inbox  *mailbox.Receiver[protocol.ViewToWorld]
	outbox *mailbox.Sender[protocol.WorldToView]

	format       audio.Format
	capture      backend.Stream
	playback     backend.Stream
	captured     *packet.Queue[audio.Packet]
	packetizer   *packet.Packetizer
	toPlay       *packet.Queue[audio.Packet]
	depacketizer *packet.Depacketizer

	pointerDown bool
	recording   bool
	show        string
	forwarded   uint64
	queued      uint64

	color     uint32
	nextColor uint32
	step      uint32
	frame     []uint32

	closed bool
}

// New opens the default input and output devices of host and builds the
// capture and playback streams. Playback starts immediately; capture starts
// paused. Any device or stream failure is returned and nothing is left open.
func New(config Config, host backend.Host, surface ui.Surface, inbox *mailbox.Receiver[protocol.ViewToWorld], outbox *mailbox.Sender[protocol.WorldToView], logger *zap.Logger) (*World, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.FrameMs <= 0 {
		config.FrameMs = 10
	}
	logger = logger.Named("world").With(zap.String("device", config.Name))

	input, err := host.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("failed to open input device: %w", err)
	}
	output, err := host.DefaultOutputDevice()
	if err != nil {
		return nil, fmt.Errorf("failed to open output device: %w", err)
	}

	// both directions use the input's format so packets are interchangeable
	format := input.Format()
	length := audio.PacketLength(format, config.FrameMs)
	preroll := format.SampleRate * config.LatencyMs / 1000 * format.Channels

	w := &World{
		config:    config,
		logger:    logger,
		surface:   surface,
		inbox:     inbox,
		outbox:    outbox,
		format:    format,
		captured:  packet.NewQueue[audio.Packet](),
		toPlay:    packet.NewQueue[audio.Packet](),
		nextColor: rand.Uint32() & 0xffffff,
		frame:     make([]uint32, ui.Width*ui.Height),
	}
	if a, ok := surface.(ui.Annotator); ok {
		w.annotator = a
	}
	w.packetizer = packet.NewPacketizer(length, w.captured)
	w.depacketizer = packet.NewDepacketizer(w.toPlay, preroll)

	logger.Info("opening audio",
		zap.String("input", input.Name()),
		zap.String("output", output.Name()),
		zap.Int("sample_rate", format.SampleRate),
		zap.Int("channels", format.Channels),
		zap.Int("packet_length", length),
		zap.Int("preroll", preroll))

	packetizer := w.packetizer
	w.capture, err = input.BuildCaptureStream(format, func(samples []float32) {
		packetizer.Write(samples)
	}, w.streamError("capture"))
	if err != nil {
		return nil, fmt.Errorf("failed to build capture stream: %w", err)
	}

	depacketizer := w.depacketizer
	w.playback, err = output.BuildPlaybackStream(format, func(out []float32) {
		depacketizer.Fill(out)
	}, w.streamError("playback"))
	if err != nil {
		w.capture.Close()
		return nil, fmt.Errorf("failed to build playback stream: %w", err)
	}

	if err := w.playback.Play(); err != nil {
		w.capture.Close()
		w.playback.Close()
		return nil, fmt.Errorf("failed to start playback: %w", err)
	}

	return w, nil
}

// streamError returns a callback that logs runtime stream errors. Streams are
// left in whatever state they were in.
func (w *World) streamError(stream string) backend.ErrorFunc {
	logger := w.logger
	return func(err error) {
		logger.Warn("audio stream error", zap.String("stream", stream), zap.Error(err))
	}
}

// Ready reports whether the surface is open and escape is not pressed
func (w *World) Ready() bool {
	return w.surface.IsOpen() && !w.surface.IsEscapePressed()
}

// RunOne performs one tick: apply pending requests, forward captured audio,
// detect a click and render a frame.
func (w *World) RunOne() {
	if w.closed {
		return
	}
	if !w.drainInbox() {
		return
	}

	for {
		p, ok := w.captured.Pop()
		if !ok {
			break
		}
		// the copy travels on; the buffer goes back to the capture callback
		w.outbox.Send(protocol.WorldAudio{Packet: slices.Clone(p)})
		w.packetizer.Recycle(p)
		w.forwarded++
	}

	// the level is sampled every tick, so only the rising edge is a click
	down := w.surface.IsPointerDown()
	if down != w.pointerDown {
		if down {
			w.outbox.Send(protocol.WorldClick{})
		}
		w.pointerDown = down
	}

	w.render()
	w.annotate()
}

// drainInbox handles the events pending at the start of the tick. It
// returns false when the inbox is closed.
func (w *World) drainInbox() bool {
	n := max(w.inbox.Pending(), 1)
	for i := 0; i < n; i++ {
		ev, ok, closed := w.inbox.TryRecv()
		if closed {
			return false
		}
		if !ok {
			break
		}
		w.handle(ev)
	}
	return true
}

func (w *World) handle(ev protocol.ViewToWorld) {
	switch e := ev.(type) {
	case protocol.WorldShow:
		w.show = fmt.Sprintf("[%s] name: %s, count: %d", w.config.Name, e.Name, e.Count)
		w.logger.Info("show", zap.String("name", e.Name), zap.Int("count", e.Count))

	case protocol.WorldStartRecording:
		if err := w.capture.Play(); err != nil {
			w.logger.Warn("failed to start capture", zap.Error(err))
			return
		}
		w.recording = true

	case protocol.WorldStopRecording:
		if err := w.capture.Pause(); err != nil {
			w.logger.Warn("failed to stop capture", zap.Error(err))
			return
		}
		w.recording = false

	case protocol.WorldPlay:
		w.toPlay.Push(e.Packet)
		w.queued++
	}
}

func (w *World) render() {
	w.step++
	if w.step >= blendSteps {
		w.color = w.nextColor
		w.nextColor = rand.Uint32() & 0xffffff
		w.step = 0
	}

	c := blend(w.color, w.nextColor, w.step, blendSteps)
	for i := range w.frame {
		w.frame[i] = c
	}

	if err := w.surface.Present(w.frame); err != nil {
		w.logger.Debug("present failed", zap.Error(err))
	}
}

func (w *World) annotate() {
	if w.annotator == nil {
		return
	}
	s := w.Stats()
	w.annotator.Annotate(ui.Annotation{
		Show:      w.show,
		Recording: w.recording,
		Captured:  s.Captured,
		Played:    s.Played,
		Underrun:  s.Underrun,
	})
}

// blend mixes a into b, i steps out of n, per 8-bit channel
func blend(a, b, i, n uint32) uint32 {
	var out uint32
	for shift := 0; shift <= 16; shift += 8 {
		ca := (a >> shift) & 0xff
		cb := (b >> shift) & 0xff
		out |= (ca*(n-i)/n + cb*i/n) << shift
	}
	return out
}

// Stats returns the pipeline counters
func (w *World) Stats() Stats {
	return Stats{
		Captured:  w.packetizer.Packets(),
		Forwarded: w.forwarded,
		Queued:    w.queued,
		Played:    w.depacketizer.Played(),
		Underrun:  w.depacketizer.Underrun(),
	}
}

// Format returns the negotiated stream format
func (w *World) Format() audio.Format {
	return w.format
}

// Recording reports whether capture is running
func (w *World) Recording() bool {
	return w.recording
}

// Close stops both streams and closes the outbox, which shuts the rest of
// the device down. Safe to call more than once.
func (w *World) Close() {
	if w.closed {
		return
	}
	w.closed = true

	w.outbox.Close()
	w.inbox.Abandon()

	if err := w.capture.Close(); err != nil {
		w.logger.Warn("failed to close capture stream", zap.Error(err))
	}
	if err := w.playback.Close(); err != nil {
		w.logger.Warn("failed to close playback stream", zap.Error(err))
	}

	s := w.Stats()
	w.logger.Info("world closed",
		zap.Uint64("captured", s.Captured),
		zap.Uint64("forwarded", s.Forwarded),
		zap.Uint64("queued", s.Queued),
		zap.Uint64("played", s.Played),
		zap.Uint64("underrun", s.Underrun))
}
