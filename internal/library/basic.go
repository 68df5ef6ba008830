package library

import (
	"context"
	"encoding/json"
)

// Handle returns the todo resource as fetched.
func Handle(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
	return fetchTodo(ctx)
}
