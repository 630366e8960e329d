package readyqueue_test

import (
	"testing"
	"time"

	"github.com/clustersched/messaging/internal/readyqueue"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := readyqueue.New[int]()
	q.Push(1)
	q.Push(2)
	q.Push(3)
	if got := q.Pop(); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
	if got := q.Pop(); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
	if got := q.Pop(); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := readyqueue.New[string]()
	done := make(chan string, 1)
	go func() {
		done <- q.Pop()
	}()

	select {
	case <-done:
		t.Fatal("Pop returned before any Push")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push("ready")
	select {
	case v := <-done:
		if v != "ready" {
			t.Errorf("expected %q, got %q", "ready", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after Push")
	}
}
