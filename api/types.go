package api

import (
	"context"

	"todo-api/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	List(ctx context.Context) ([]domain.Todo, error)
	ListCompleted(ctx context.Context) ([]domain.Todo, error)
	FindByID(ctx context.Context, id int64) (domain.Todo, error)
	Add(ctx context.Context, todo domain.Todo) (domain.Todo, error)
	Update(ctx context.Context, id int64, todo domain.Todo) (domain.Todo, error)
	Remove(ctx context.Context, id int64) error
}

// EventPublisher delivers change events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}
