// ABOUTME: Oto-based playback streams
// ABOUTME: oto pulls PCM from an io.Reader on its own thread; the reader is the playback callback
package backend

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/hactar-dev/hactar-sim/pkg/audio"
	"go.uber.org/zap"
)

// Oto host plays through oto and captures through malgo.
// oto allows a single context per process, so every playback stream built by
// this host must share one format.
type Oto struct {
	capture *Malgo
	logger  *zap.Logger

	mu     sync.Mutex
	otoCtx *oto.Context
	format audio.Format
}

// NewOto creates an oto playback host
func NewOto(logger *zap.Logger) (*Oto, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	capture, err := NewMalgo(logger)
	if err != nil {
		return nil, err
	}

	return &Oto{capture: capture, logger: logger.Named("oto")}, nil
}

// DefaultInputDevice returns malgo's default capture device
func (o *Oto) DefaultInputDevice() (Device, error) {
	return o.capture.DefaultInputDevice()
}

// DefaultOutputDevice returns the oto output. Its format mirrors the system
// default output reported by miniaudio.
func (o *Oto) DefaultOutputDevice() (Device, error) {
	probe, err := o.capture.DefaultOutputDevice()
	if err != nil {
		return nil, err
	}
	return &otoDevice{host: o, format: probe.Format()}, nil
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	if o.otoCtx != nil {
		if err := o.otoCtx.Suspend(); err != nil {
			o.logger.Warn("oto suspend error", zap.Error(err))
		}
	}
	o.mu.Unlock()

	return o.capture.Close()
}

// context returns the process-wide oto context, creating it on first use
func (o *Oto) context(format audio.Format) (*oto.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.otoCtx != nil {
		if o.format != format {
			return nil, fmt.Errorf("oto doesn't support reinitialization (%dHz %dch -> %dHz %dch)",
				o.format.SampleRate, o.format.Channels, format.SampleRate, format.Channels)
		}
		return o.otoCtx, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatFloat32LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	o.otoCtx = ctx
	o.format = format

	o.logger.Info("Audio output initialized",
		zap.Int("sample_rate", format.SampleRate),
		zap.Int("channels", format.Channels))

	return ctx, nil
}

type otoDevice struct {
	host   *Oto
	format audio.Format
}

func (d *otoDevice) Name() string         { return "oto" }
func (d *otoDevice) Format() audio.Format { return d.format }

func (d *otoDevice) BuildCaptureStream(audio.Format, DataFunc, ErrorFunc) (Stream, error) {
	return nil, fmt.Errorf("oto device has no capture support")
}

// BuildPlaybackStream creates a paused oto player pulling from onData
func (d *otoDevice) BuildPlaybackStream(format audio.Format, onData DataFunc, onError ErrorFunc) (Stream, error) {
	ctx, err := d.host.context(format)
	if err != nil {
		return nil, err
	}

	player := ctx.NewPlayer(&pullReader{onData: onData})
	// Keep oto's internal buffer near 40ms so the queue, not oto, holds the backlog
	player.SetBufferSize(format.SampleRate * format.Channels * bytesPerSample * 40 / 1000)

	return &otoStream{player: player, onError: onError}, nil
}

// pullReader turns oto's Read calls into playback callbacks
type pullReader struct {
	onData  DataFunc
	scratch []float32
}

// Read always fills p completely (rounded down to whole samples)
func (r *pullReader) Read(p []byte) (int, error) {
	n := len(p) / bytesPerSample
	r.scratch = grow(r.scratch, n)
	r.onData(r.scratch)
	floatsToBytes(p, r.scratch)
	return n * bytesPerSample, nil
}

type otoStream struct {
	player  *oto.Player
	onError ErrorFunc
}

func (s *otoStream) Play() error {
	if s.player == nil {
		return fmt.Errorf("stream closed")
	}
	s.player.Play()
	s.report()
	return nil
}

func (s *otoStream) Pause() error {
	if s.player == nil {
		return fmt.Errorf("stream closed")
	}
	s.player.Pause()
	s.report()
	return nil
}

func (s *otoStream) Close() error {
	if s.player == nil {
		return nil
	}
	err := s.player.Close()
	s.player = nil
	return err
}

// report forwards a player error, if any, to the error callback
func (s *otoStream) report() {
	if err := s.player.Err(); err != nil && s.onError != nil {
		s.onError(err)
	}
}
