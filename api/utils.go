package api

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"todo-api/domain"
)

var (
	lastTimestamp int64
)

// nextTimestamp returns the current time in nanoseconds, bumped so that
// successive calls never return the same or a smaller value.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}

func newEvent(typ domain.EventType, id int64, todo *domain.Todo) domain.Event {
	ev := domain.Event{
		ID:     uuid.NewString(),
		Type:   typ,
		TodoID: id,
		Time:   nextTimestamp(),
	}
	if todo != nil {
		t := todo.Clone()
		ev.Todo = &t
	}
	return ev
}
