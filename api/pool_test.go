package api

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"todo-api/domain"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
	block  chan struct{}
}

func (p *recordingPublisher) Publish(ctx context.Context, ev domain.Event) error {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Events() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Event, len(p.events))
	copy(out, p.events)
	return out
}

func waitForEvents(t *testing.T, pub *recordingPublisher, expected int) []domain.Event {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		events := pub.Events()
		if len(events) == expected {
			return events
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %d events, got %d", expected, len(events))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestSender(t *testing.T, pub EventPublisher, opts EventOptions) *EventSender {
	t.Helper()
	logger, _ := test.NewNullLogger()
	s := NewEventSender(pub, opts, logger)
	t.Cleanup(s.Close)
	return s
}

func TestNewEventSenderNilPublisher(t *testing.T) {
	s := NewEventSender(nil, EventOptions{Workers: 1}, log.New())
	if s != nil {
		t.Fatal("expected nil sender without a publisher")
	}
	s.Emit(domain.Event{ID: "dropped"})
	s.Close()
}

func TestEventSenderPublishesInBackground(t *testing.T) {
	pub := &recordingPublisher{}
	s := newTestSender(t, pub, EventOptions{Workers: 2, Buffer: 8, Timeout: time.Second})

	s.Emit(domain.Event{ID: "a"})
	s.Emit(domain.Event{ID: "b"})

	events := waitForEvents(t, pub, 2)
	ids := map[string]bool{}
	for _, ev := range events {
		ids[ev.ID] = true
	}
	if !ids["a"] || !ids["b"] {
		t.Fatalf("unexpected events: %#v", events)
	}
}

func TestEventSenderCloseDrainsQueue(t *testing.T) {
	pub := &recordingPublisher{}
	logger, _ := test.NewNullLogger()
	s := NewEventSender(pub, EventOptions{Workers: 1, Buffer: 16, Timeout: time.Second}, logger)

	for i := 0; i < 10; i++ {
		s.Emit(domain.Event{TodoID: int64(i)})
	}
	s.Close()

	if got := len(pub.Events()); got != 10 {
		t.Fatalf("expected all queued events published before close returns, got %d", got)
	}
	s.Close()
}

func TestEventSenderInlineWhenSaturated(t *testing.T) {
	block := make(chan struct{})
	pub := &recordingPublisher{block: block}
	s := newTestSender(t, pub, EventOptions{Workers: 1, Buffer: 0, Timeout: time.Second, HandoffTimeout: 0})

	// Occupy the only worker.
	go s.Emit(domain.Event{ID: "first"})
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Emit(domain.Event{ID: "second"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("inline publish returned before publisher unblocked")
	case <-time.After(20 * time.Millisecond):
	}
	close(block)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for inline publish")
	}
	waitForEvents(t, pub, 2)
}

func TestEventSenderTryEnqueueWaitsForCapacity(t *testing.T) {
	s := &EventSender{jobs: make(chan domain.Event, 1), handoff: 50 * time.Millisecond}
	s.jobs <- domain.Event{}

	done := make(chan bool, 1)
	go func() {
		done <- s.tryEnqueue(domain.Event{})
	}()

	select {
	case <-done:
		t.Fatal("tryEnqueue returned before capacity was freed")
	case <-time.After(20 * time.Millisecond):
	}

	<-s.jobs

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected successful enqueue after capacity freed")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for enqueue completion")
	}
}

func TestEventSenderTryEnqueueTimesOut(t *testing.T) {
	s := &EventSender{jobs: make(chan domain.Event, 1), handoff: 30 * time.Millisecond}
	s.jobs <- domain.Event{}

	if s.tryEnqueue(domain.Event{}) {
		t.Fatal("expected enqueue to fail when timeout elapsed")
	}
	select {
	case <-s.jobs:
	default:
		t.Fatal("expected channel to remain full after timeout")
	}
}

func TestEventSenderTryEnqueueReturnsFalseWhenClosed(t *testing.T) {
	s := &EventSender{jobs: make(chan domain.Event)}
	close(s.jobs)

	if s.tryEnqueue(domain.Event{}) {
		t.Fatal("expected enqueue to fail when channel is closed")
	}
}

func TestEventSenderLogsPublishFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	pub := &recordingPublisher{err: errors.New("queue down")}
	s := NewEventSender(pub, EventOptions{Workers: 1, Buffer: 1, Timeout: time.Second}, logger)

	s.Emit(domain.Event{ID: "lost", Type: domain.TodoCreated, TodoID: 1})
	s.Close()

	var found bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "event publish failed" {
			found = true
			if entry.Data["event"] != "lost" {
				t.Fatalf("unexpected event field: %#v", entry.Data["event"])
			}
			if entry.Level != log.ErrorLevel {
				t.Fatalf("unexpected level: %v", entry.Level)
			}
		}
	}
	if !found {
		t.Fatal("expected publish failure to be logged")
	}
}
