// ABOUTME: Audio backend package wrapping the platform audio subsystem
// ABOUTME: Provides Host/Device/Stream interfaces with malgo, oto and null implementations
// Package backend exposes the default input and output devices of an audio host
// as callback-driven streams.
//
// A capture stream calls onData with each freshly filled input buffer; a playback
// stream calls onData with a buffer that must be completely filled before the
// callback returns. Both callbacks run on backend-owned threads and must not block.
//
// Supported hosts:
//   - Malgo: miniaudio capture and playback (default)
//   - Oto: oto playback with malgo capture
//   - Null: ticker-driven synthetic devices (test tone in, meter out)
//
// Example:
//
//	host, err := backend.NewMalgo(logger)
//	in, err := host.DefaultInputDevice()
//	stream, err := in.BuildCaptureStream(in.Format(), onData, onError)
//	err = stream.Play()
package backend
