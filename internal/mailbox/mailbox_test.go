// ABOUTME: Tests for the unbounded mailbox
// ABOUTME: Covers ordering, close semantics, non-blocking receive and abandon
package mailbox

import (
	"sync"
	"testing"
	"time"
)

func TestSendNeverWaitsForReceiver(t *testing.T) {
	tx, rx := New[int]()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			tx.Send(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("send blocked without a receiver")
	}

	if rx.Pending() != 10000 {
		t.Errorf("expected 10000 pending, got %d", rx.Pending())
	}
}

func TestFIFOAndCloseAfterDrain(t *testing.T) {
	tx, rx := New[int]()

	for i := 0; i < 100; i++ {
		tx.Send(i)
	}
	tx.Close()

	for i := 0; i < 100; i++ {
		v, ok := rx.Recv()
		if !ok {
			t.Fatalf("mailbox closed early at %d", i)
		}
		if v != i {
			t.Errorf("expected %d, got %d", i, v)
		}
	}

	if _, ok := rx.Recv(); ok {
		t.Error("expected closed mailbox after drain")
	}
}

func TestTryRecv(t *testing.T) {
	tx, rx := New[string]()

	if _, ok, closed := rx.TryRecv(); ok || closed {
		t.Errorf("expected empty open mailbox, got ok=%v closed=%v", ok, closed)
	}

	tx.Send("a")
	tx.Send("b")

	v, ok, _ := rx.TryRecv()
	if !ok || v != "a" {
		t.Errorf("expected a, got %q (ok=%v)", v, ok)
	}
	v, ok, _ = rx.TryRecv()
	if !ok || v != "b" {
		t.Errorf("expected b, got %q (ok=%v)", v, ok)
	}

	tx.Close()
	deadline := time.After(2 * time.Second)
	for {
		_, _, closed := rx.TryRecv()
		if closed {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected closed mailbox")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestTryRecvAfterDrainDoesNotWait(t *testing.T) {
	for i := 0; i < 200; i++ {
		tx, rx := New[int]()
		tx.Send(1)

		if v, ok, _ := rx.TryRecv(); !ok || v != 1 {
			t.Fatalf("expected 1, got %d (ok=%v)", v, ok)
		}

		done := make(chan bool, 1)
		go func() {
			_, ok, _ := rx.TryRecv()
			done <- ok
		}()

		select {
		case ok := <-done:
			if ok {
				t.Fatal("expected nothing on an empty mailbox")
			}
		case <-time.After(time.Second):
			tx.Send(2)
			t.Fatal("TryRecv waited on an empty mailbox")
		}

		if rx.Pending() != 0 {
			t.Errorf("expected 0 pending, got %d", rx.Pending())
		}
		tx.Close()
	}
}

func TestPendingTracksDelivery(t *testing.T) {
	tx, rx := New[int]()
	tx.Send(1)
	tx.Send(2)

	if rx.Pending() != 2 {
		t.Errorf("expected 2 pending, got %d", rx.Pending())
	}
	rx.Recv()
	if rx.Pending() != 1 {
		t.Errorf("expected 1 pending, got %d", rx.Pending())
	}
	rx.Recv()
	if rx.Pending() != 0 {
		t.Errorf("expected 0 pending, got %d", rx.Pending())
	}
}

func TestAbandonDiscards(t *testing.T) {
	tx, rx := New[int]()
	tx.Send(1)
	rx.Abandon()
	rx.Abandon()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			tx.Send(i)
		}
		tx.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("send blocked after abandon")
	}

	select {
	case _, ok := <-rx.C():
		if ok {
			t.Error("expected no deliveries after abandon")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected delivery channel to close")
	}

	if rx.Pending() != 0 {
		t.Errorf("expected 0 pending after abandon, got %d", rx.Pending())
	}
}

func TestConcurrentProducerConsumer(t *testing.T) {
	tx, rx := New[int]()
	const n = 5000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			tx.Send(i)
		}
		tx.Close()
	}()

	next := 0
	for v := range rx.C() {
		if v != next {
			t.Fatalf("expected %d, got %d", next, v)
		}
		next++
	}
	wg.Wait()

	if next != n {
		t.Errorf("expected %d items, got %d", n, next)
	}
}
