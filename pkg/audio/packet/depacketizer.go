// ABOUTME: Playback-side depacketizer
// ABOUTME: Drains queued packets into output buffers, substituting silence on underrun
package packet

import (
	"sync/atomic"

	"github.com/hactar-dev/hactar-sim/pkg/audio"
)

// Depacketizer feeds the playback callback from a packet queue. Fill is meant
// to be called from the playback callback only.
type Depacketizer struct {
	in      *Queue[audio.Packet]
	current audio.Packet
	pos     int

	played   atomic.Uint64
	underrun atomic.Uint64
}

// NewDepacketizer creates a depacketizer reading from in. The first preroll
// samples played are silence, ahead of any queued packet.
func NewDepacketizer(in *Queue[audio.Packet], preroll int) *Depacketizer {
	d := &Depacketizer{in: in}
	if preroll > 0 {
		d.current = audio.Silence(preroll)
	}
	return d
}

// Fill writes exactly len(out) samples. Queued samples are used first; every
// sample with nothing queued is silence. Never blocks. Returns the number of
// silence samples substituted.
func (d *Depacketizer) Fill(out []float32) int {
	missing := 0
	for i := range out {
		if !d.advance() {
			out[i] = audio.Decode(audio.Midpoint)
			missing++
			continue
		}
		out[i] = audio.Decode(d.current[d.pos])
		d.pos++
	}

	if missing > 0 {
		d.underrun.Add(uint64(missing))
	}
	return missing
}

// advance makes sure current has a sample at pos
func (d *Depacketizer) advance() bool {
	for d.pos >= len(d.current) {
		next, ok := d.in.Pop()
		if !ok {
			d.current = nil
			d.pos = 0
			return false
		}
		d.current = next
		d.pos = 0
		d.played.Add(1)
	}
	return true
}

// Played returns the number of packets taken from the queue
func (d *Depacketizer) Played() uint64 {
	return d.played.Load()
}

// Underrun returns the number of silence samples substituted so far
func (d *Depacketizer) Underrun() uint64 {
	return d.underrun.Load()
}
