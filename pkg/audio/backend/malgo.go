// ABOUTME: Malgo-based capture and playback streams
// ABOUTME: Uses miniaudio via malgo with float32 samples and realtime data callbacks
package backend

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/hactar-dev/hactar-sim/pkg/audio"
	"go.uber.org/zap"
)

const bytesPerSample = 4

// Malgo host backed by a single miniaudio context
type Malgo struct {
	malgoCtx *malgo.AllocatedContext
	logger   *zap.Logger
	mu       sync.Mutex
}

// NewMalgo initializes a miniaudio context
func NewMalgo(logger *zap.Logger) (*Malgo, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("malgo")

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		logger.Debug("miniaudio", zap.String("msg", strings.TrimSpace(msg)))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	return &Malgo{malgoCtx: ctx, logger: logger}, nil
}

// DefaultInputDevice returns the default capture device
func (m *Malgo) DefaultInputDevice() (Device, error) {
	return m.defaultDevice(malgo.Capture)
}

// DefaultOutputDevice returns the default playback device
func (m *Malgo) DefaultOutputDevice() (Device, error) {
	return m.defaultDevice(malgo.Playback)
}

// defaultDevice finds the default device of kind and probes its native format
func (m *Malgo) defaultDevice(kind malgo.DeviceType) (*malgoDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.malgoCtx == nil {
		return nil, fmt.Errorf("malgo host closed")
	}

	infos, err := m.malgoCtx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate %s devices: %w", kindName(kind), err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("%s: %w", kindName(kind), ErrNoDevice)
	}

	name := infos[0].Name()
	for i := range infos {
		if infos[i].IsDefault != 0 {
			name = infos[i].Name()
			break
		}
	}

	format, err := m.probe(kind)
	if err != nil {
		return nil, err
	}

	m.logger.Info("Using default device",
		zap.String("kind", kindName(kind)),
		zap.String("name", name),
		zap.Int("sample_rate", format.SampleRate),
		zap.Int("channels", format.Channels))

	return &malgoDevice{host: m, kind: kind, name: name, format: format}, nil
}

// probe opens the default device with native settings to read its format
func (m *Malgo) probe(kind malgo.DeviceType) (audio.Format, error) {
	cfg := malgo.DefaultDeviceConfig(kind)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Playback.Format = malgo.FormatF32
	cfg.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(m.malgoCtx.Context, cfg, malgo.DeviceCallbacks{})
	if err != nil {
		return audio.Format{}, fmt.Errorf("failed to probe %s device: %w", kindName(kind), err)
	}
	defer device.Uninit()

	channels := device.PlaybackChannels()
	if kind == malgo.Capture {
		channels = device.CaptureChannels()
	}

	return audio.Format{
		SampleRate: int(device.SampleRate()),
		Channels:   int(channels),
	}, nil
}

// Close releases the miniaudio context
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.malgoCtx == nil {
		return nil
	}
	if err := m.malgoCtx.Uninit(); err != nil {
		m.logger.Warn("malgo context uninit error", zap.Error(err))
	}
	m.malgoCtx.Free()
	m.malgoCtx = nil
	return nil
}

type malgoDevice struct {
	host   *Malgo
	kind   malgo.DeviceType
	name   string
	format audio.Format
}

func (d *malgoDevice) Name() string         { return d.name }
func (d *malgoDevice) Format() audio.Format { return d.format }

// BuildCaptureStream creates a paused capture stream
func (d *malgoDevice) BuildCaptureStream(format audio.Format, onData DataFunc, onError ErrorFunc) (Stream, error) {
	if d.kind != malgo.Capture {
		return nil, fmt.Errorf("device %q is not an input device", d.name)
	}

	var scratch []float32
	data := func(_, input []byte, frameCount uint32) {
		n := int(frameCount) * format.Channels
		if n*bytesPerSample > len(input) {
			n = len(input) / bytesPerSample
		}
		scratch = grow(scratch, n)
		bytesToFloats(scratch, input)
		onData(scratch)
	}

	return d.host.buildStream(malgo.Capture, format, data, onError)
}

// BuildPlaybackStream creates a paused playback stream
func (d *malgoDevice) BuildPlaybackStream(format audio.Format, onData DataFunc, onError ErrorFunc) (Stream, error) {
	if d.kind != malgo.Playback {
		return nil, fmt.Errorf("device %q is not an output device", d.name)
	}

	var scratch []float32
	data := func(output, _ []byte, frameCount uint32) {
		n := int(frameCount) * format.Channels
		if n*bytesPerSample > len(output) {
			n = len(output) / bytesPerSample
		}
		scratch = grow(scratch, n)
		onData(scratch)
		floatsToBytes(output, scratch)
	}

	return d.host.buildStream(malgo.Playback, format, data, onError)
}

func (m *Malgo) buildStream(kind malgo.DeviceType, format audio.Format, data malgo.DataProc, onError ErrorFunc) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.malgoCtx == nil {
		return nil, fmt.Errorf("malgo host closed")
	}

	cfg := malgo.DefaultDeviceConfig(kind)
	cfg.SampleRate = uint32(format.SampleRate)
	cfg.Alsa.NoMMap = 1
	if kind == malgo.Capture {
		cfg.Capture.Format = malgo.FormatF32
		cfg.Capture.Channels = uint32(format.Channels)
	} else {
		cfg.Playback.Format = malgo.FormatF32
		cfg.Playback.Channels = uint32(format.Channels)
	}

	s := &malgoStream{}
	callbacks := malgo.DeviceCallbacks{
		Data: data,
		Stop: func() {
			// Stop also fires for our own Pause; only unrequested stops are errors
			if s.running.Load() && onError != nil {
				onError(ErrDeviceStopped)
			}
		},
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s device: %w", kindName(kind), err)
	}
	s.device = device

	return s, nil
}

// malgoStream wraps a malgo device. It is driven from the goroutine that built it.
type malgoStream struct {
	device  *malgo.Device
	running atomic.Bool
}

func (s *malgoStream) Play() error {
	if s.device == nil {
		return fmt.Errorf("stream closed")
	}
	if s.device.IsStarted() {
		return nil
	}
	s.running.Store(true)
	if err := s.device.Start(); err != nil {
		s.running.Store(false)
		return fmt.Errorf("failed to start device: %w", err)
	}
	return nil
}

func (s *malgoStream) Pause() error {
	if s.device == nil {
		return fmt.Errorf("stream closed")
	}
	s.running.Store(false)
	if !s.device.IsStarted() {
		return nil
	}
	if err := s.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop device: %w", err)
	}
	return nil
}

func (s *malgoStream) Close() error {
	if s.device == nil {
		return nil
	}
	s.running.Store(false)
	s.device.Uninit()
	s.device = nil
	return nil
}

// grow returns buf resized to n, reallocating only when capacity is short
func grow(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}
	return buf[:n]
}

// bytesToFloats decodes little-endian float32 samples
func bytesToFloats(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*bytesPerSample:]))
	}
}

// floatsToBytes encodes float32 samples as little-endian bytes
func floatsToBytes(dst []byte, src []float32) {
	for i, s := range src {
		binary.LittleEndian.PutUint32(dst[i*bytesPerSample:], math.Float32bits(s))
	}
}

// kindName returns human-readable device kind
func kindName(kind malgo.DeviceType) string {
	switch kind {
	case malgo.Capture:
		return "input"
	case malgo.Playback:
		return "output"
	default:
		return fmt.Sprintf("Unknown(%d)", kind)
	}
}
