package messaging

import (
	"errors"
	"testing"
)

func TestFIFOOrder(t *testing.T) {
	m := NewMailbox(10)
	_ = m.Enqueue(Message{Payload: map[string]any{"n": 1}})
	_ = m.Enqueue(Message{Payload: map[string]any{"n": 2}})

	first, ok := m.Dequeue()
	if !ok || first.Payload["n"] != 1 {
		t.Fatalf("expected first message n=1, got %+v ok=%v", first, ok)
	}
	second, ok := m.Dequeue()
	if !ok || second.Payload["n"] != 2 {
		t.Fatalf("expected second message n=2, got %+v ok=%v", second, ok)
	}
}

func TestDropOldestOnOverflow(t *testing.T) {
	m := NewMailbox(2)
	_ = m.Enqueue(Message{Payload: map[string]any{"n": 1}})
	_ = m.Enqueue(Message{Payload: map[string]any{"n": 2}})
	_ = m.Enqueue(Message{Payload: map[string]any{"n": 3}})

	if m.Depth() != 2 {
		t.Fatalf("expected depth 2, got %d", m.Depth())
	}
	if m.Overflow() != 1 {
		t.Fatalf("expected overflow 1, got %d", m.Overflow())
	}
	oldest, _ := m.Peek()
	if oldest.Payload["n"] != 2 {
		t.Fatalf("expected oldest retained message n=2, got %+v", oldest)
	}
}

func TestRejectWhenFullPolicy(t *testing.T) {
	m := NewMailbox(1, WithOverflowPolicy(RejectWhenFull))
	if err := m.Enqueue(Message{}); err != nil {
		t.Fatalf("first enqueue should succeed: %v", err)
	}
	err := m.Enqueue(Message{})
	if !errors.Is(err, ErrMailboxFull) {
		t.Fatalf("expected ErrMailboxFull, got %v", err)
	}
	if m.Depth() != 1 {
		t.Fatalf("expected depth to stay 1, got %d", m.Depth())
	}
}

func TestDrainEmptiesMailbox(t *testing.T) {
	m := NewMailbox(5)
	_ = m.Enqueue(Message{})
	_ = m.Enqueue(Message{})

	drained := m.Drain()
	if len(drained) != 2 {
		t.Fatalf("expected 2 drained messages, got %d", len(drained))
	}
	if m.Depth() != 0 {
		t.Fatalf("expected empty mailbox after drain, got depth %d", m.Depth())
	}
}
