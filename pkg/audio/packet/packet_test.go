// ABOUTME: Tests for packetizer, depacketizer and queue
// ABOUTME: Covers packet boundaries, underrun silence and concurrent SPSC use
package packet

import (
	"sync"
	"testing"

	"github.com/hactar-dev/hactar-sim/pkg/audio"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int]()

	if _, ok := q.Pop(); ok {
		t.Fatal("expected empty queue")
	}

	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	if q.Len() != 5 {
		t.Errorf("expected length 5, got %d", q.Len())
	}

	for i := 0; i < 5; i++ {
		v, ok := q.Pop()
		if !ok || v != i {
			t.Fatalf("expected %d, got %d (ok=%v)", i, v, ok)
		}
	}

	if _, ok := q.Pop(); ok {
		t.Error("expected queue to be drained")
	}
}

func TestQueueConcurrentProducerConsumer(t *testing.T) {
	const n = 100000
	q := NewQueue[int]()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Push(i)
		}
	}()

	next := 0
	for next < n {
		v, ok := q.Pop()
		if !ok {
			continue
		}
		if v != next {
			t.Fatalf("expected %d, got %d", next, v)
		}
		next++
	}
	wg.Wait()
}

func TestPacketizerEmitsFixedLengthPackets(t *testing.T) {
	out := NewQueue[audio.Packet]()
	p := NewPacketizer(4, out)

	p.Write([]float32{0, 0, 0})
	if out.Len() != 0 {
		t.Fatalf("expected no packet yet, got %d", out.Len())
	}
	if p.Pending() != 3 {
		t.Errorf("expected 3 pending samples, got %d", p.Pending())
	}

	// Completes the first packet, fills a second and leaves a remainder of 1
	p.Write([]float32{1, -1, -1, -1, -1, 0})

	first, ok := out.Pop()
	if !ok || len(first) != 4 {
		t.Fatalf("expected first packet of 4 samples, got %v", first)
	}
	if first[3] != audio.Encode(1) {
		t.Errorf("expected last sample of first packet %d, got %d", audio.Encode(1), first[3])
	}

	second, ok := out.Pop()
	if !ok || len(second) != 4 {
		t.Fatalf("expected second packet of 4 samples, got %v", second)
	}
	for i, s := range second {
		if s != 0 {
			t.Errorf("sample %d: expected 0, got %d", i, s)
		}
	}

	if p.Pending() != 1 {
		t.Errorf("expected remainder of 1 sample, got %d", p.Pending())
	}
	if p.Packets() != 2 {
		t.Errorf("expected 2 packets, got %d", p.Packets())
	}
}

func TestPacketizerDoesNotReuseEmittedPackets(t *testing.T) {
	out := NewQueue[audio.Packet]()
	p := NewPacketizer(2, out)

	p.Write([]float32{1, 1})
	first, _ := out.Pop()
	p.Write([]float32{-1, -1})

	if first[0] != audio.Encode(1) {
		t.Errorf("emitted packet was modified: %v", first)
	}
}

func TestDepacketizerEmptyQueueIsSilence(t *testing.T) {
	d := NewDepacketizer(NewQueue[audio.Packet](), 0)

	out := make([]float32, 160)
	for i := range out {
		out[i] = 0.5
	}

	missing := d.Fill(out)
	if missing != 160 {
		t.Errorf("expected 160 underrun samples, got %d", missing)
	}

	silence := audio.Decode(audio.Midpoint)
	for i, s := range out {
		if s != silence {
			t.Fatalf("sample %d: expected silence %f, got %f", i, silence, s)
		}
	}
	if d.Underrun() != 160 {
		t.Errorf("expected underrun counter 160, got %d", d.Underrun())
	}
}

func TestDepacketizerSpansPacketsAndPadsTail(t *testing.T) {
	in := NewQueue[audio.Packet]()
	in.Push(audio.Packet{0, 0})
	in.Push(audio.Packet{})
	in.Push(audio.Packet{2 * audio.Midpoint})

	d := NewDepacketizer(in, 0)
	out := make([]float32, 5)
	missing := d.Fill(out)

	expected := []float32{-1, -1, 1, 0, 0}
	for i := range expected {
		if out[i] != expected[i] {
			t.Errorf("sample %d: expected %f, got %f", i, expected[i], out[i])
		}
	}
	if missing != 2 {
		t.Errorf("expected 2 missing samples, got %d", missing)
	}
	if d.Played() != 3 {
		t.Errorf("expected 3 packets consumed, got %d", d.Played())
	}
}

func TestDepacketizerKeepsPartialPacketAcrossCalls(t *testing.T) {
	in := NewQueue[audio.Packet]()
	in.Push(audio.Packet{0, audio.Midpoint, 2 * audio.Midpoint})

	d := NewDepacketizer(in, 0)

	a := make([]float32, 2)
	d.Fill(a)
	b := make([]float32, 1)
	d.Fill(b)

	if a[0] != -1 || a[1] != 0 || b[0] != 1 {
		t.Errorf("unexpected samples %v %v", a, b)
	}
	if d.Underrun() != 0 {
		t.Errorf("expected no underrun, got %d", d.Underrun())
	}
}

func TestDepacketizerPreroll(t *testing.T) {
	in := NewQueue[audio.Packet]()
	in.Push(audio.Packet{0})

	d := NewDepacketizer(in, 3)
	out := make([]float32, 4)
	missing := d.Fill(out)

	if missing != 0 {
		t.Errorf("expected preroll to count as data, got %d missing", missing)
	}
	if out[0] != 0 || out[2] != 0 || out[3] != -1 {
		t.Errorf("unexpected samples %v", out)
	}
}

func TestPipelineLoopback(t *testing.T) {
	q := NewQueue[audio.Packet]()
	p := NewPacketizer(160, q)
	d := NewDepacketizer(q, 0)

	in := make([]float32, 480)
	for i := range in {
		in[i] = float32(i%10) / 10
	}
	p.Write(in)

	out := make([]float32, 480)
	if missing := d.Fill(out); missing != 0 {
		t.Fatalf("expected no underrun, got %d", missing)
	}
	for i := range in {
		diff := float64(out[i] - in[i])
		if diff < -audio.Step || diff > audio.Step {
			t.Fatalf("sample %d: expected %f, got %f", i, in[i], out[i])
		}
	}
}

func TestQueueReusesConsumedNodes(t *testing.T) {
	q := NewQueue[int]()

	for i := 0; i < 3; i++ {
		q.Push(i)
		q.Pop()
	}

	allocs := testing.AllocsPerRun(100, func() {
		q.Push(1)
		q.Push(2)
		q.Pop()
		q.Pop()
	})
	if allocs != 0 {
		t.Errorf("expected no allocations in steady state, got %.1f per run", allocs)
	}

	q.Push(7)
	q.Push(8)
	if v, _ := q.Pop(); v != 7 {
		t.Errorf("expected 7, got %d", v)
	}
	if v, _ := q.Pop(); v != 8 {
		t.Errorf("expected 8, got %d", v)
	}
}

func TestPacketizerRecyclesBuffers(t *testing.T) {
	out := NewQueue[audio.Packet]()
	p := NewPacketizer(4, out)
	samples := []float32{0.5, 0.5, 0.5, 0.5}

	cycle := func() {
		p.Write(samples)
		packet, ok := out.Pop()
		if !ok {
			t.Fatal("expected a packet")
		}
		p.Recycle(packet)
	}
	for i := 0; i < 20; i++ {
		cycle()
	}

	if allocs := testing.AllocsPerRun(100, cycle); allocs != 0 {
		t.Errorf("expected Write to reuse recycled buffers, got %.1f allocations per packet", allocs)
	}

	p.Write(samples)
	packet, _ := out.Pop()
	for i, s := range packet {
		if s != audio.Encode(0.5) {
			t.Errorf("sample %d: expected %d, got %d", i, audio.Encode(0.5), s)
		}
	}
}

func TestRecycleIgnoresForeignBuffers(t *testing.T) {
	out := NewQueue[audio.Packet]()
	p := NewPacketizer(4, out)

	p.Recycle(make(audio.Packet, 3, 3))
	p.Write([]float32{0, 0, 0, 0})

	packet, ok := out.Pop()
	if !ok || len(packet) != 4 || cap(packet) != 4 {
		t.Errorf("expected a packet of 4 samples, got len %d cap %d", len(packet), cap(packet))
	}
}
