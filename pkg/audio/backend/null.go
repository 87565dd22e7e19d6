// ABOUTME: Synthetic audio host for headless runs and tests
// ABOUTME: Capture streams generate a test tone; playback streams meter what they are fed
package backend

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hactar-dev/hactar-sim/pkg/audio"
)

// NullConfig configures the synthetic host
type NullConfig struct {
	Format    audio.Format
	Period    time.Duration // callback cadence; 0 means streams only run on Tick
	Frequency float64       // test tone frequency in Hz
	Amplitude float64       // test tone amplitude in [0, 1]

	NoInput   bool // DefaultInputDevice fails
	NoOutput  bool // DefaultOutputDevice fails
	FailBuild bool // stream construction fails
}

// DefaultNullConfig returns a 16kHz mono host ticking every 10ms
func DefaultNullConfig() NullConfig {
	return NullConfig{
		Format:    audio.Format{SampleRate: 16000, Channels: 1},
		Period:    10 * time.Millisecond,
		Frequency: 440.0, // A4 note
		Amplitude: 0.5,
	}
}

// Null is a synthetic audio host
type Null struct {
	config NullConfig

	mu        sync.Mutex
	captures  []*NullStream
	playbacks []*NullStream
}

// NewNull creates a synthetic host
func NewNull(config NullConfig) *Null {
	if config.Format.SampleRate == 0 {
		config.Format.SampleRate = 16000
	}
	if config.Format.Channels == 0 {
		config.Format.Channels = 1
	}
	if config.Frequency == 0 {
		config.Frequency = 440.0
	}
	if config.Amplitude == 0 {
		config.Amplitude = 0.5
	}
	return &Null{config: config}
}

func (n *Null) DefaultInputDevice() (Device, error) {
	if n.config.NoInput {
		return nil, fmt.Errorf("input: %w", ErrNoDevice)
	}
	return &nullDevice{host: n, capture: true}, nil
}

func (n *Null) DefaultOutputDevice() (Device, error) {
	if n.config.NoOutput {
		return nil, fmt.Errorf("output: %w", ErrNoDevice)
	}
	return &nullDevice{host: n}, nil
}

// Close stops every stream built by this host
func (n *Null) Close() error {
	n.mu.Lock()
	streams := append(append([]*NullStream{}, n.captures...), n.playbacks...)
	n.mu.Unlock()

	for _, s := range streams {
		s.Close()
	}
	return nil
}

// Captures returns the capture streams in build order
func (n *Null) Captures() []*NullStream {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*NullStream{}, n.captures...)
}

// Playbacks returns the playback streams in build order
func (n *Null) Playbacks() []*NullStream {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*NullStream{}, n.playbacks...)
}

// Tick runs one period on every playing stream, synchronously
func (n *Null) Tick() {
	n.mu.Lock()
	streams := append(append([]*NullStream{}, n.captures...), n.playbacks...)
	n.mu.Unlock()

	for _, s := range streams {
		s.Tick()
	}
}

// periodSamples returns the number of interleaved samples per period
func (n *Null) periodSamples() int {
	period := n.config.Period
	if period <= 0 {
		period = 10 * time.Millisecond
	}
	frames := int(int64(n.config.Format.SampleRate) * int64(period) / int64(time.Second))
	return frames * n.config.Format.Channels
}

type nullDevice struct {
	host    *Null
	capture bool
}

func (d *nullDevice) Name() string {
	if d.capture {
		return "null-input"
	}
	return "null-output"
}

func (d *nullDevice) Format() audio.Format { return d.host.config.Format }

func (d *nullDevice) BuildCaptureStream(format audio.Format, onData DataFunc, onError ErrorFunc) (Stream, error) {
	if !d.capture {
		return nil, fmt.Errorf("device %q is not an input device", d.Name())
	}
	return d.build(format, onData, onError, true)
}

func (d *nullDevice) BuildPlaybackStream(format audio.Format, onData DataFunc, onError ErrorFunc) (Stream, error) {
	if d.capture {
		return nil, fmt.Errorf("device %q is not an output device", d.Name())
	}
	return d.build(format, onData, onError, false)
}

func (d *nullDevice) build(format audio.Format, onData DataFunc, onError ErrorFunc, capture bool) (*NullStream, error) {
	h := d.host
	if h.config.FailBuild {
		return nil, fmt.Errorf("failed to build %s stream", d.Name())
	}

	s := &NullStream{
		capture:   capture,
		onData:    onData,
		onError:   onError,
		buf:       make([]float32, h.periodSamples()),
		channels:  format.Channels,
		step:      2 * math.Pi * h.config.Frequency / float64(format.SampleRate),
		amplitude: h.config.Amplitude,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	if h.config.Period > 0 {
		go s.run(h.config.Period)
	} else {
		close(s.done)
	}

	h.mu.Lock()
	if capture {
		h.captures = append(h.captures, s)
	} else {
		h.playbacks = append(h.playbacks, s)
	}
	h.mu.Unlock()

	return s, nil
}

// NullStream is a synthetic stream. Its callback runs on the stream's own
// goroutine, or on the caller of Tick when the host has no period.
type NullStream struct {
	capture   bool
	onData    DataFunc
	onError   ErrorFunc
	buf       []float32
	channels  int
	step      float64
	amplitude float64
	phase     float64

	playing   atomic.Bool
	closed    atomic.Bool
	tickMu    sync.Mutex
	samples   atomic.Uint64
	nonSilent atomic.Uint64

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func (s *NullStream) run(period time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick runs one callback period if the stream is playing
func (s *NullStream) Tick() {
	if !s.playing.Load() || s.closed.Load() {
		return
	}

	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if s.capture {
		s.tone()
		s.onData(s.buf)
		s.samples.Add(uint64(len(s.buf)))
		return
	}

	s.onData(s.buf)
	s.meter()
}

// tone fills buf with the next period of a sine wave on every channel
func (s *NullStream) tone() {
	channels := max(s.channels, 1)
	for i := 0; i+channels <= len(s.buf); i += channels {
		v := float32(s.amplitude * math.Sin(s.phase))
		for c := 0; c < channels; c++ {
			s.buf[i+c] = v
		}
		s.phase += s.step
		if s.phase > 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
	}
}

// meter counts samples handed to playback and how many were audible
func (s *NullStream) meter() {
	var loud uint64
	for _, v := range s.buf {
		if math.Abs(float64(v)) > audio.Step {
			loud++
		}
	}
	s.samples.Add(uint64(len(s.buf)))
	s.nonSilent.Add(loud)
}

// Fail reports err through the stream's error callback
func (s *NullStream) Fail(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}

// Playing reports whether the stream is running
func (s *NullStream) Playing() bool { return s.playing.Load() }

// Samples returns the number of samples produced (capture) or consumed (playback)
func (s *NullStream) Samples() uint64 { return s.samples.Load() }

// NonSilent returns the number of audible samples consumed by a playback stream
func (s *NullStream) NonSilent() uint64 { return s.nonSilent.Load() }

func (s *NullStream) Play() error {
	if s.closed.Load() {
		return fmt.Errorf("stream closed")
	}
	s.playing.Store(true)
	return nil
}

func (s *NullStream) Pause() error {
	if s.closed.Load() {
		return fmt.Errorf("stream closed")
	}
	s.playing.Store(false)
	return nil
}

func (s *NullStream) Close() error {
	s.closed.Store(true)
	s.playing.Store(false)
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	return nil
}
