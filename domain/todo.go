package domain

// Todo represents a single to-do item.
type Todo struct {
	ID         int64   `json:"id"`
	Name       *string `json:"name"`
	IsComplete bool    `json:"isComplete"`
}

// Clone returns a copy that shares no memory with t.
func (t Todo) Clone() Todo {
	if t.Name != nil {
		name := *t.Name
		t.Name = &name
	}
	return t
}

// TodoInput is the client supplied body for create and update requests.
type TodoInput struct {
	Name       *string `json:"name"`
	IsComplete bool    `json:"isComplete"`
}

// Todo converts the input into an entity without an id.
func (in TodoInput) Todo() Todo {
	return Todo{Name: in.Name, IsComplete: in.IsComplete}.Clone()
}
