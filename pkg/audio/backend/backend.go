// ABOUTME: Audio backend interface definitions
// ABOUTME: Common interfaces for capture/playback hosts, devices and streams
package backend

import (
	"errors"
	"fmt"

	"github.com/hactar-dev/hactar-sim/pkg/audio"
	"go.uber.org/zap"
)

var (
	// ErrNoDevice is returned when the host has no default device of the requested kind
	ErrNoDevice = errors.New("no default audio device")

	// ErrDeviceStopped is reported through onError when a stream stops without being paused
	ErrDeviceStopped = errors.New("audio device stopped unexpectedly")
)

// DataFunc receives or fills one buffer of interleaved float samples
type DataFunc func(samples []float32)

// ErrorFunc receives runtime stream errors
type ErrorFunc func(err error)

// Host represents an audio subsystem
type Host interface {
	// DefaultInputDevice returns the default capture device
	DefaultInputDevice() (Device, error)

	// DefaultOutputDevice returns the default playback device
	DefaultOutputDevice() (Device, error)

	// Close releases host resources
	Close() error
}

// Device represents one input or output device
type Device interface {
	// Name returns a human readable device name
	Name() string

	// Format returns the format negotiated with the device
	Format() audio.Format

	// BuildCaptureStream creates a paused stream delivering input buffers to onData
	BuildCaptureStream(format audio.Format, onData DataFunc, onError ErrorFunc) (Stream, error)

	// BuildPlaybackStream creates a paused stream asking onData to fill output buffers
	BuildPlaybackStream(format audio.Format, onData DataFunc, onError ErrorFunc) (Stream, error)
}

// Stream is a running or paused device stream
type Stream interface {
	Play() error
	Pause() error
	Close() error
}

// New creates the host selected by name ("malgo", "oto" or "null")
func New(name string, null NullConfig, logger *zap.Logger) (Host, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch name {
	case "malgo", "":
		return NewMalgo(logger)
	case "oto":
		return NewOto(logger)
	case "null":
		return NewNull(null), nil
	default:
		return nil, fmt.Errorf("unknown audio backend: %q", name)
	}
}
