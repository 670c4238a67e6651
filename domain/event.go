package domain

// EventType names a change applied to a todo.
type EventType string

const (
	TodoCreated EventType = "todo-created"
	TodoUpdated EventType = "todo-updated"
	TodoDeleted EventType = "todo-deleted"
)

// Event describes a committed change. Todo is nil for deletions.
type Event struct {
	ID     string    `json:"id"`
	Type   EventType `json:"type"`
	TodoID int64     `json:"todoId"`
	Todo   *Todo     `json:"todo,omitempty"`
	Time   int64     `json:"time"`
}
