// ABOUTME: Wire format for network events and the connection handshake
// ABOUTME: Events travel as binary frames; the hello exchange is JSON
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hactar-dev/hactar-sim/pkg/audio"
)

// Binary frame types
const (
	FrameClick byte = 0
	FrameAudio byte = 1
)

// ErrMalformed is returned for frames that cannot be decoded
var ErrMalformed = errors.New("malformed frame")

// Message is the envelope for JSON control messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// MessageHello is the type of the handshake message
const MessageHello = "hello"

// Hello is exchanged by both ends when a link opens
type Hello struct {
	SessionID string `json:"session_id"`
	Device    string `json:"device"`
	Version   string `json:"version"`
}

// EncodeEvent serializes a network event into a binary frame:
// one type byte followed by the name bytes (click) or big-endian samples (audio).
func EncodeEvent(ev NetworkEvent) ([]byte, error) {
	switch e := ev.(type) {
	case NetClick:
		frame := make([]byte, 1+len(e.Name))
		frame[0] = FrameClick
		copy(frame[1:], e.Name)
		return frame, nil

	case NetAudio:
		frame := make([]byte, 1+2*len(e.Packet))
		frame[0] = FrameAudio
		for i, s := range e.Packet {
			binary.BigEndian.PutUint16(frame[1+2*i:], s)
		}
		return frame, nil

	default:
		return nil, fmt.Errorf("unknown network event %T", ev)
	}
}

// DecodeEvent parses a binary frame produced by EncodeEvent
func DecodeEvent(frame []byte) (NetworkEvent, error) {
	if len(frame) < 1 {
		return nil, fmt.Errorf("empty frame: %w", ErrMalformed)
	}

	payload := frame[1:]
	switch frame[0] {
	case FrameClick:
		return NetClick{Name: string(payload)}, nil

	case FrameAudio:
		if len(payload)%2 != 0 {
			return nil, fmt.Errorf("odd audio payload length %d: %w", len(payload), ErrMalformed)
		}
		packet := make(audio.Packet, len(payload)/2)
		for i := range packet {
			packet[i] = binary.BigEndian.Uint16(payload[2*i:])
		}
		return NetAudio{Packet: packet}, nil

	default:
		return nil, fmt.Errorf("unknown frame type %d: %w", frame[0], ErrMalformed)
	}
}
