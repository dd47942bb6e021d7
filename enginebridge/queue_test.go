package enginebridge

import (
	"fmt"
	"testing"
)

func TestQueueFlushPreservesOrder(t *testing.T) {
	q := NewPendingCommandQueue()
	q.Enqueue("first")
	q.Enqueue("second")
	q.Enqueue("third")

	var sent []string
	n := q.TryFlush(func(text string) bool {
		sent = append(sent, text)
		return true
	})
	if n != 3 {
		t.Fatalf("expected 3 sent, got %d", n)
	}
	want := []string{"first", "second", "third"}
	for i, w := range want {
		if sent[i] != w {
			t.Errorf("sent[%d] = %q, want %q", i, sent[i], w)
		}
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue after flush, got %d", q.Len())
	}
}

func TestQueueStopsAtFirstFailure(t *testing.T) {
	q := NewPendingCommandQueue()
	q.Enqueue("a")
	q.Enqueue("b")
	q.Enqueue("c")

	attempts := 0
	n := q.TryFlush(func(text string) bool {
		attempts++
		return text != "b"
	})
	if n != 1 {
		t.Fatalf("expected 1 sent, got %d", n)
	}
	if attempts != 2 {
		t.Errorf("expected flush to stop after the failed send, got %d attempts", attempts)
	}
	if q.Len() != 2 {
		t.Fatalf("expected 2 commands left, got %d", q.Len())
	}

	// The failed command stays at the head for the next flush.
	var next string
	q.TryFlush(func(text string) bool {
		next = text
		return false
	})
	if next != "b" {
		t.Errorf("expected %q at the head, got %q", "b", next)
	}
}

func TestQueueRemovesOnlyOnConfirmedSend(t *testing.T) {
	q := NewPendingCommandQueue()
	q.Enqueue("only")

	q.TryFlush(func(string) bool { return false })
	if q.Len() != 1 {
		t.Fatalf("failed send must not remove the command, len = %d", q.Len())
	}
	q.TryFlush(func(string) bool { return true })
	if q.Len() != 0 {
		t.Fatalf("confirmed send must remove the command, len = %d", q.Len())
	}
}

func TestQueueFlushIsBounded(t *testing.T) {
	q := NewPendingCommandQueue()
	for i := 0; i < maxFlushPerCall+10; i++ {
		q.Enqueue(fmt.Sprintf("cmd-%d", i))
	}

	n := q.TryFlush(func(string) bool { return true })
	if n != maxFlushPerCall {
		t.Fatalf("expected one pass to send %d, got %d", maxFlushPerCall, n)
	}
	if q.Len() != 10 {
		t.Fatalf("expected 10 left for the next pass, got %d", q.Len())
	}
	if n := q.TryFlush(func(string) bool { return true }); n != 10 {
		t.Fatalf("expected second pass to drain the rest, got %d", n)
	}
}

func TestQueueReentrantEnqueueDuringFlush(t *testing.T) {
	q := NewPendingCommandQueue()
	q.Enqueue("outer")

	q.TryFlush(func(text string) bool {
		if text == "outer" {
			q.Enqueue("inner")
		}
		return true
	})
	if q.Len() != 0 {
		t.Fatalf("expected re-entrant enqueue to be flushed in the same pass, len = %d", q.Len())
	}
}

func TestQueueClear(t *testing.T) {
	q := NewPendingCommandQueue()
	q.Enqueue("a")
	q.Enqueue("b")
	q.Clear()
	if q.Len() != 0 {
		t.Fatalf("expected empty queue after clear, got %d", q.Len())
	}
	if n := q.TryFlush(func(string) bool { return true }); n != 0 {
		t.Fatalf("expected nothing to flush after clear, got %d", n)
	}
}
