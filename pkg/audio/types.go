// ABOUTME: Audio type definitions and sample codec
// ABOUTME: Defines stream format, packets and float32 <-> uint16 conversion
package audio

import "math"

const (
	// Midpoint is the wire value of a silent sample.
	Midpoint uint16 = math.MaxUint16 >> 1

	// scale maps [-1, 1] onto [0, 2*Midpoint].
	scale = float64(Midpoint)

	// Step is one quantization step in the float domain.
	Step = 1.0 / scale
)

// Format describes a negotiated stream format
type Format struct {
	SampleRate int
	Channels   int
}

// Packet is an ordered run of wire-format samples, interleaved by channel.
// A packet is never modified after it has been handed to the next stage.
type Packet []uint16

// PacketLength returns the number of samples in a packet of frameMs milliseconds
func PacketLength(format Format, frameMs int) int {
	frames := format.SampleRate * frameMs / 1000
	return frames * format.Channels
}

// Encode converts a float sample to its wire representation.
// Values outside [-1, 1] are clamped and NaN encodes as silence.
func Encode(sample float32) uint16 {
	s := float64(sample)
	switch {
	case math.IsNaN(s):
		return Midpoint
	case s < -1:
		s = -1
	case s > 1:
		s = 1
	}
	return uint16(math.Round((s + 1) * scale))
}

// Decode converts a wire sample back to float
func Decode(wire uint16) float32 {
	return float32(float64(wire)/scale - 1)
}

// EncodeInto encodes src into dst and returns the number of samples written
func EncodeInto(dst []uint16, src []float32) int {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = Encode(src[i])
	}
	return n
}

// DecodeInto decodes src into dst and returns the number of samples written
func DecodeInto(dst []float32, src []uint16) int {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = Decode(src[i])
	}
	return n
}

// Silence returns a packet of n silent samples
func Silence(n int) Packet {
	p := make(Packet, n)
	for i := range p {
		p[i] = Midpoint
	}
	return p
}
