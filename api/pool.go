package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"todo-api/domain"
)

// EventOptions sizes the background publishing pool.
type EventOptions struct {
	Workers        int
	Buffer         int
	Timeout        time.Duration
	HandoffTimeout time.Duration
}

// EventSender publishes change events on a pool of background workers. When
// the buffer stays full past the handoff timeout the event is published inline.
// A nil *EventSender drops every event.
type EventSender struct {
	publisher EventPublisher
	log       *log.Logger
	jobs      chan domain.Event
	timeout   time.Duration
	handoff   time.Duration
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewEventSender starts the worker pool. It returns nil when publisher is nil.
func NewEventSender(publisher EventPublisher, opts EventOptions, logger *log.Logger) *EventSender {
	if publisher == nil {
		return nil
	}
	if logger == nil {
		panic("Logger is not initialized")
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Buffer < 0 {
		opts.Buffer = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	s := &EventSender{
		publisher: publisher,
		log:       logger,
		jobs:      make(chan domain.Event, opts.Buffer),
		timeout:   opts.Timeout,
		handoff:   opts.HandoffTimeout,
	}
	for i := 0; i < opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	logger.Infof("event sender started, workers: %d, buffer: %d, timeout: %v, handoff: %v", opts.Workers, opts.Buffer, opts.Timeout, opts.HandoffTimeout)
	return s
}

// Emit queues ev for publishing. It never blocks longer than the handoff
// timeout plus one inline publish.
func (s *EventSender) Emit(ev domain.Event) {
	if s == nil {
		return
	}
	if s.tryEnqueue(ev) {
		return
	}
	s.log.Warn("event buffer saturated; publishing inline")
	s.publish(-1, ev)
}

// Close stops accepting events and waits for queued ones to be published.
func (s *EventSender) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		close(s.jobs)
	})
	s.wg.Wait()
}

func (s *EventSender) worker(id int) {
	defer s.wg.Done()
	for ev := range s.jobs {
		s.publish(id, ev)
	}
}

func (s *EventSender) publish(worker int, ev domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	err := s.publisher.Publish(ctx, ev)
	cancel()
	if err != nil {
		s.log.WithFields(log.Fields{
			"event":  ev.ID,
			"type":   ev.Type,
			"todo":   ev.TodoID,
			"worker": worker,
			"error":  err.Error(),
		}).Error("event publish failed")
	}
}

func (s *EventSender) tryEnqueue(ev domain.Event) bool {
	if ok, closed := trySendNonBlocking(s.jobs, ev); closed {
		return false
	} else if ok {
		return true
	}

	if s.handoff <= 0 {
		return false
	}

	timer := time.NewTimer(s.handoff)
	defer timer.Stop()

	ok, closed := sendWithTimer(s.jobs, ev, timer.C)
	if closed {
		return false
	}
	return ok
}

func trySendNonBlocking(ch chan domain.Event, ev domain.Event) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- ev:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan domain.Event, ev domain.Event, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- ev:
		return true, false
	case <-timer:
		return false, false
	}
}
