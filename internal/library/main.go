package library

import (
	"context"
	"encoding/json"
)

// Greeting is the result of library.main.handler.
type Greeting struct {
	Hello json.RawMessage `json:"Hello"`
}

// Handler fetches the todo resource and wraps it in a Greeting.
func Handler(ctx context.Context, _ json.RawMessage) (*Greeting, error) {
	todo, err := fetchTodo(ctx)
	if err != nil {
		return nil, err
	}
	return &Greeting{Hello: todo}, nil
}
