// ABOUTME: Capture-side packetizer
// ABOUTME: Groups captured samples into fixed-length wire packets
package packet

import (
	"sync/atomic"

	"github.com/hactar-dev/hactar-sim/pkg/audio"
)

// spares is the number of packet buffers made up front for recycling
const spares = 8

// Packetizer accumulates captured samples and emits a packet every time the
// accumulator reaches the configured length. Write is meant to be called from
// the capture callback only.
//
// Buffers handed back through Recycle are reused for later packets, so a
// consumer that copies and recycles keeps Write free of allocations.
type Packetizer struct {
	length int
	acc    audio.Packet
	out    *Queue[audio.Packet]
	free   *Queue[audio.Packet]

	packets atomic.Uint64
}

// NewPacketizer creates a packetizer emitting packets of length samples into out
func NewPacketizer(length int, out *Queue[audio.Packet]) *Packetizer {
	if length <= 0 {
		length = 1
	}
	p := &Packetizer{
		length: length,
		out:    out,
		free:   NewQueue[audio.Packet](),
	}
	for i := 0; i < spares; i++ {
		p.free.Push(make(audio.Packet, 0, length))
	}
	p.acc = p.buffer()
	return p
}

// buffer returns an empty packet buffer, recycled when one is available
func (p *Packetizer) buffer() audio.Packet {
	if b, ok := p.free.Pop(); ok {
		return b[:0]
	}
	return make(audio.Packet, 0, p.length)
}

// Recycle hands an emitted packet back once its consumer no longer reads
// it. Must only be called from the single goroutine that consumes out.
// Packets of the wrong capacity are dropped.
func (p *Packetizer) Recycle(packet audio.Packet) {
	if cap(packet) != p.length {
		return
	}
	p.free.Push(packet[:0])
}

// Write appends samples, emitting complete packets. A partial remainder is
// kept for the next call. Never blocks.
func (p *Packetizer) Write(samples []float32) {
	for _, s := range samples {
		p.acc = append(p.acc, audio.Encode(s))
		if len(p.acc) == p.length {
			p.out.Push(p.acc)
			p.packets.Add(1)
			p.acc = p.buffer()
		}
	}
}

// Length returns the packet length in samples
func (p *Packetizer) Length() int {
	return p.length
}

// Pending returns the number of samples waiting for the next packet.
// Only meaningful from the goroutine that calls Write.
func (p *Packetizer) Pending() int {
	return len(p.acc)
}

// Packets returns the number of packets emitted so far
func (p *Packetizer) Packets() uint64 {
	return p.packets.Load()
}
