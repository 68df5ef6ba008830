package library

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/protoflow/pkg/diag"
	"github.com/jdziat/protoflow/pkg/protocol"
	"github.com/jdziat/protoflow/pkg/registry"
	"github.com/jdziat/protoflow/pkg/runner"
)

func mockTodo(t *testing.T, status int, body string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	prev := TodoURL
	TodoURL = srv.URL + "/todos/1"
	t.Cleanup(func() { TodoURL = prev })
}

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

func TestInit_RegistersFixtures(t *testing.T) {
	for _, key := range [][2]string{
		{"library.main", "handler"},
		{"library.basic", "handle"},
		{"library.echo", "echo"},
		{"library.echo", "fail"},
	} {
		assert.True(t, registry.Default.Has(key[0], key[1]), "%s.%s", key[0], key[1])
	}
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

func TestHandler_WrapsTodo(t *testing.T) {
	mockTodo(t, http.StatusOK, `{"id": 1}`)

	g, err := Handler(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)

	out, err := json.Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Hello":{"id":1}}`, string(out))
}

func TestHandle_ReturnsTodo(t *testing.T) {
	mockTodo(t, http.StatusOK, `{"id":1,"title":"x","completed":false}`)

	out, err := Handle(context.Background(), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"title":"x","completed":false}`, string(out))
}

func TestHandler_BadStatus(t *testing.T) {
	mockTodo(t, http.StatusInternalServerError, `oops`)

	_, err := Handler(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500")
}

func TestHandler_NotJSON(t *testing.T) {
	mockTodo(t, http.StatusOK, `<html>`)

	_, err := Handler(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not JSON")
}

func TestEcho(t *testing.T) {
	out, err := Echo(json.RawMessage(`[1,2]`))
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(out))

	out, err = Echo(nil)
	require.NoError(t, err)
	assert.Equal(t, `null`, string(out))
}

func TestFail(t *testing.T) {
	_, err := Fail(json.RawMessage(`"x"`))
	assert.ErrorIs(t, err, ErrFail)
}

// ---------------------------------------------------------------------------
// End to end through the runner
// ---------------------------------------------------------------------------

func TestRunner_MainHandlerScenario(t *testing.T) {
	mockTodo(t, http.StatusOK, `{"id": 1}`)

	dir, err := os.MkdirTemp("", "pfl")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	path := filepath.Join(dir, "server.sock")

	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer ln.Close()

	responses := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = protocol.WriteMessage(conn, protocol.FramingJSON,
			[]byte(`{"input": {}, "import_path": "library.main", "function_name": "handler"}`))
		b, _ := io.ReadAll(conn)
		responses <- b
	}()

	var stderr bytes.Buffer
	r := runner.New(nil,
		runner.WithSocket(path),
		runner.WithLogger(diag.New(&stderr, slog.LevelInfo)),
	)

	assert.Equal(t, runner.ExitSuccess, r.Run(context.Background()))
	select {
	case b := <-responses:
		assert.JSONEq(t, `{"result": {"Hello": {"id": 1}}, "error": null}`, string(b))
	case <-time.After(5 * time.Second):
		t.Fatal("no response")
	}
	assert.Empty(t, stderr.String())
}
