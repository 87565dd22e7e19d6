// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Packet and the float <-> wire sample codec
// Package audio provides the sample types shared by the capture and playback pipeline.
//
// This package defines:
//   - Format: negotiated stream format (sample rate, channel count)
//   - Packet: a fixed-duration run of wire-format samples
//
// Samples are float32 in [-1, 1] on the device side and uint16 in [0, 65535] on the
// wire, with 0.0 mapped to Midpoint:
//
//	w := audio.Encode(0.25)
//	x := audio.Decode(w) // within one quantization step of 0.25
//
// Packet length is derived once from the format and a frame duration:
//
//	n := audio.PacketLength(audio.Format{SampleRate: 16000, Channels: 1}, 10) // 160
package audio
