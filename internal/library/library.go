// Package library holds the built-in functions every protoflow binary can run.
// Importing it registers them in the default registry.
package library

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jdziat/protoflow/pkg/jobctx"
	"github.com/jdziat/protoflow/pkg/registry"
	"github.com/jdziat/protoflow/pkg/security"
)

// TodoURL is the resource fetched by library.main.handler and library.basic.handle.
var TodoURL = "https://jsonplaceholder.typicode.com/todos/1"

// Client performs the fixture HTTP calls.
var Client = &http.Client{Timeout: 30 * time.Second}

func init() {
	registry.MustRegister("library.main", "handler", Handler)
	registry.MustRegister("library.basic", "handle", Handle)
	registry.MustRegister("library.echo", "echo", Echo)
	registry.MustRegister("library.echo", "fail", Fail)
}

func fetchTodo(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, TodoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", TodoURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, security.MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", TodoURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: unexpected status %d", TodoURL, resp.StatusCode)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("get %s: response is not JSON", TodoURL)
	}
	jobctx.Logger(ctx).Debug("fetched todo", "url", TodoURL, "bytes", len(body))
	return body, nil
}
