// ABOUTME: Tests for audio types
// ABOUTME: Tests sample codec, packet length and silence helpers
package audio

import (
	"math"
	"testing"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name     string
		input    float32
		expected uint16
	}{
		{"zero", 0, Midpoint},
		{"min", -1, 0},
		{"max", 1, 2 * Midpoint},
		{"below range", -3.5, 0},
		{"above range", 7, 2 * Midpoint},
		{"nan", float32(math.NaN()), Midpoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Encode(tt.input)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		input    uint16
		expected float32
	}{
		{"midpoint", Midpoint, 0},
		{"zero", 0, -1},
		{"double midpoint", 2 * Midpoint, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Decode(tt.input)
			if result != tt.expected {
				t.Errorf("expected %f, got %f", tt.expected, result)
			}
		})
	}
}

func TestRoundTripWithinOneStep(t *testing.T) {
	const steps = 200000
	for i := 0; i <= steps; i++ {
		x := float32(-1 + 2*float64(i)/steps)
		got := Decode(Encode(x))
		if diff := math.Abs(float64(got) - float64(x)); diff > Step {
			t.Fatalf("round-trip of %f gave %f (diff %g > %g)", x, got, diff, Step)
		}
	}
}

func TestEncodeMonotonic(t *testing.T) {
	prev := Encode(-1)
	for i := 1; i <= 1000; i++ {
		w := Encode(float32(-1 + 2*float64(i)/1000))
		if w < prev {
			t.Fatalf("encode not monotonic at step %d: %d < %d", i, w, prev)
		}
		prev = w
	}
}

func TestPacketLength(t *testing.T) {
	tests := []struct {
		name     string
		format   Format
		frameMs  int
		expected int
	}{
		{"16k mono 10ms", Format{SampleRate: 16000, Channels: 1}, 10, 160},
		{"48k stereo 10ms", Format{SampleRate: 48000, Channels: 2}, 10, 960},
		{"44.1k mono 10ms rounds down", Format{SampleRate: 44100, Channels: 1}, 10, 441},
		{"22.05k stereo 10ms rounds frames down", Format{SampleRate: 22050, Channels: 2}, 10, 440},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := PacketLength(tt.format, tt.frameMs)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestEncodeDecodeInto(t *testing.T) {
	src := []float32{-1, 0, 1}
	wire := make([]uint16, 2)

	if n := EncodeInto(wire, src); n != 2 {
		t.Fatalf("expected 2 samples encoded, got %d", n)
	}
	if wire[0] != 0 || wire[1] != Midpoint {
		t.Errorf("unexpected wire samples %v", wire)
	}

	out := make([]float32, 4)
	if n := DecodeInto(out, wire); n != 2 {
		t.Fatalf("expected 2 samples decoded, got %d", n)
	}
	if out[0] != -1 || out[1] != 0 {
		t.Errorf("unexpected decoded samples %v", out)
	}
}

func TestSilence(t *testing.T) {
	p := Silence(160)
	if len(p) != 160 {
		t.Fatalf("expected 160 samples, got %d", len(p))
	}
	for i, s := range p {
		if s != Midpoint {
			t.Fatalf("sample %d: expected %d, got %d", i, Midpoint, s)
		}
	}
}
