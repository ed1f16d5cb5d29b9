package queue

import (
	"testing"
	"time"
)

func TestPushPopFIFO(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)
	q.Push(3)

	for _, want := range []int{1, 2, 3} {
		got, ok := q.Pop()
		if !ok {
			t.Fatalf("expected ok=true")
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
}

func TestPopWithTimeoutExpires(t *testing.T) {
	q := New[int]()
	start := time.Now()
	_, ok := q.PopWithTimeout(20 * time.Millisecond)
	if ok {
		t.Fatalf("expected ok=false on empty queue")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("returned before the timeout elapsed")
	}
}

func TestCloseDrainsThenReportsClosed(t *testing.T) {
	q := New[string]()
	q.Push("a")
	q.Close()

	v, ok := q.Pop()
	if !ok || v != "a" {
		t.Fatalf("expected buffered item to drain after close, got %q ok=%v", v, ok)
	}

	_, ok = q.Pop()
	if ok {
		t.Fatalf("expected ok=false once drained and closed")
	}
}

func TestDrainAll(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)
	items := q.DrainAll()
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
}
