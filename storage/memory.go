package storage

import (
	"context"
	"sort"
	"sync"

	"todo-api/domain"
)

// Memory keeps todos in a process-local map. Contents are lost on restart.
type Memory struct {
	mu     sync.RWMutex
	items  map[int64]domain.Todo
	lastID int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[int64]domain.Todo)}
}

// List returns every todo ordered by id.
func (m *Memory) List(ctx context.Context) ([]domain.Todo, error) {
	return m.collect(func(domain.Todo) bool { return true }), nil
}

// ListCompleted returns the todos marked complete, ordered by id.
func (m *Memory) ListCompleted(ctx context.Context) ([]domain.Todo, error) {
	return m.collect(func(t domain.Todo) bool { return t.IsComplete }), nil
}

func (m *Memory) FindByID(ctx context.Context, id int64) (domain.Todo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.items[id]
	if !ok {
		return domain.Todo{}, domain.ErrNotFound
	}
	return t.Clone(), nil
}

// Add assigns the next id to todo and stores it. Any id on the input is ignored.
func (m *Memory) Add(ctx context.Context, todo domain.Todo) (domain.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastID++
	todo = todo.Clone()
	todo.ID = m.lastID
	m.items[todo.ID] = todo
	return todo.Clone(), nil
}

// Update overwrites name and completion of an existing todo.
func (m *Memory) Update(ctx context.Context, id int64, todo domain.Todo) (domain.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[id]
	if !ok {
		return domain.Todo{}, domain.ErrNotFound
	}
	cur.Name = todo.Clone().Name
	cur.IsComplete = todo.IsComplete
	m.items[id] = cur
	return cur.Clone(), nil
}

func (m *Memory) Remove(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *Memory) collect(keep func(domain.Todo) bool) []domain.Todo {
	m.mu.RLock()
	out := make([]domain.Todo, 0, len(m.items))
	for _, t := range m.items {
		if keep(t) {
			out = append(out, t.Clone())
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
