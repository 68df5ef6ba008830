package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/protoflow/pkg/diag"
	"github.com/jdziat/protoflow/pkg/runner"
)

const envHelper = "PROTOFLOW_TEST_CLI"

// TestMain lets the test binary act as the runner spawned by "call".
func TestMain(m *testing.M) {
	if os.Getenv(envHelper) == "1" {
		args := append([]string{"protoflow"}, os.Args[1:]...)
		os.Exit(submain(context.Background(), args, os.Stdin, os.Stdout, os.Stderr))
	}
	os.Exit(m.Run())
}

func run(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := submain(context.Background(), append([]string{"protoflow"}, args...), strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// isolate keeps the user's config file and run history out of the test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{"PROTOFLOW_SOCKET", "PROTOFLOW_PROFILE", "PROTOFLOW_FRAMING", "PROTOFLOW_RUN_DB"} {
		t.Setenv(key, "")
	}
}

// ----------------------------------------------------------------------------
// argv0 aliases
// ----------------------------------------------------------------------------

func TestArgv0Alias(t *testing.T) {
	tests := []struct {
		name string
		base string
		want string
	}{
		{name: "protoflow-runtime", base: "protoflow-runtime", want: "runtime"},
		{name: "pfrt", base: "pfrt", want: "runtime"},
		{name: "protoflow", base: "protoflow", want: ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, argv0Alias(tc.base), tc.name)
	}
}

func TestApplyArgv0Alias(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{name: "empty", args: nil, want: nil},
		{name: "no-alias", args: []string{"protoflow", "serve"}, want: []string{"protoflow", "serve"}},
		{name: "runtime", args: []string{"/usr/bin/protoflow-runtime", "--framing", "length"}, want: []string{"/usr/bin/protoflow-runtime", "runtime", "--framing", "length"}},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, applyArgv0Alias(tc.args), tc.name)
	}
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	names := make(map[string]bool)
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"runtime", "call", "serve", "functions", "runs", "config"} {
		assert.True(t, names[want], "missing command %q", want)
	}
}

func TestUnknownCommand(t *testing.T) {
	isolate(t)
	code, _, stderr := run(t, "", "bogus")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "protoflow:")
}

// ----------------------------------------------------------------------------
// runtime
// ----------------------------------------------------------------------------

func TestRuntime_MissingSocket(t *testing.T) {
	isolate(t)

	code, stdout, stderr := run(t, "", "runtime")
	assert.Equal(t, runner.ExitFailure, code)
	assert.Empty(t, stdout)

	records := diag.ParseRecords([]byte(stderr))
	require.Len(t, records, 1)
	assert.Equal(t, "PROTOFLOW_SOCKET not set", records[0].Msg)
	assert.Equal(t, "runtime", records[0].Context)
}

func TestRuntime_InvalidProfileFlag(t *testing.T) {
	isolate(t)

	code, _, stderr := run(t, "", "runtime", "--profile", "carrier-pigeon")
	assert.Equal(t, runner.ExitFailure, code)

	records := diag.ParseRecords([]byte(stderr))
	require.Len(t, records, 1)
	assert.Equal(t, "Error loading configuration", records[0].Msg)
}

func TestRuntime_Socket(t *testing.T) {
	isolate(t)

	dir, err := os.MkdirTemp("", "pfc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	sock := filepath.Join(dir, "server.sock")

	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	defer ln.Close()

	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			got <- ""
			return
		}
		defer conn.Close()
		_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
		_, _ = conn.Write([]byte(`{"input":{"a":1},"import_path":"library.echo","function_name":"echo"}`))
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(conn)
		got <- buf.String()
	}()

	code, _, stderr := run(t, "", "runtime", "--socket", sock)
	assert.Equal(t, runner.ExitSuccess, code, stderr)
	assert.JSONEq(t, `{"result":{"a":1},"error":null}`, <-got)
}

func TestRuntime_Stdin(t *testing.T) {
	isolate(t)

	dir, err := os.MkdirTemp("", "pfc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	sock := filepath.Join(dir, "server.sock")

	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	defer ln.Close()

	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			got <- ""
			return
		}
		defer conn.Close()
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(conn)
		got <- buf.String()
	}()

	desc, err := json.Marshal(map[string]any{
		"input":         "hi",
		"import_path":   "library.echo",
		"function_name": "fail",
		"socket":        sock,
	})
	require.NoError(t, err)

	code, _, stderr := run(t, string(desc), "runtime", "--profile", "stdin")
	assert.Equal(t, runner.ExitFailure, code)

	var env struct {
		Result json.RawMessage `json:"result"`
		Error  *string         `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(<-got), &env))
	assert.Equal(t, "null", string(env.Result))
	require.NotNil(t, env.Error)
	assert.True(t, strings.HasPrefix(*env.Error, "InvocationError: "))

	records := diag.ParseRecords([]byte(stderr))
	require.Len(t, records, 1)
	assert.Equal(t, "Error running function", records[0].Msg)
}

// ----------------------------------------------------------------------------
// call
// ----------------------------------------------------------------------------

// callConfig writes a config that spawns this test binary as the runner.
func callConfig(t *testing.T, extra string) string {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	t.Setenv(envHelper, "1")

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "call:\n  command: [" + `"` + exe + `", "runtime"` + "]\n  accept_timeout: 30s\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestCall_Echo(t *testing.T) {
	isolate(t)
	cfg := callConfig(t, "")

	code, stdout, stderr := run(t, "", "-c", cfg, "call", "library.echo", "echo", "--input", `[1,2,3]`, "--no-history")
	require.Equal(t, 0, code, stderr)
	assert.JSONEq(t, `{"result":[1,2,3],"error":null}`, stdout)
}

func TestCall_FunctionFailure(t *testing.T) {
	isolate(t)
	cfg := callConfig(t, "")

	code, stdout, stderr := run(t, "", "-c", cfg, "call", "library.echo", "fail", "--no-history", "--diagnostics")
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, `"error":"InvocationError: `)

	records := diag.ParseRecords([]byte(stderr))
	require.Len(t, records, 1)
	assert.Equal(t, "Error running function", records[0].Msg)
}

func TestCall_RecordsRun(t *testing.T) {
	isolate(t)
	db := filepath.Join(t.TempDir(), "runs.db")
	cfg := callConfig(t, "run_db: "+db+"\n")

	code, _, stderr := run(t, "", "-c", cfg, "call", "library.echo", "echo", "-i", `"x"`)
	require.Equal(t, 0, code, stderr)

	code, stdout, stderr := run(t, "", "-c", cfg, "runs", "list", "--json")
	require.Equal(t, 0, code, stderr)

	var runs []struct {
		ID           string          `json:"id"`
		ImportPath   string          `json:"import_path"`
		FunctionName string          `json:"function_name"`
		Status       string          `json:"status"`
		Input        json.RawMessage `json:"input"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "library.echo", runs[0].ImportPath)
	assert.Equal(t, "echo", runs[0].FunctionName)
	assert.Equal(t, "completed", runs[0].Status)
	assert.Equal(t, `"x"`, string(runs[0].Input))

	code, stdout, stderr = run(t, "", "-c", cfg, "runs", "show", runs[0].ID)
	require.Equal(t, 0, code, stderr)
	var shown map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(stdout), &shown))
	assert.Equal(t, `"x"`, string(shown["input"]))
	assert.Equal(t, `"x"`, string(shown["result"]))
}

func TestCall_InvalidInput(t *testing.T) {
	isolate(t)

	code, _, stderr := run(t, "", "call", "library.echo", "echo", "--input", "{nope", "--no-history")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "input is not valid JSON")
}

// ----------------------------------------------------------------------------
// functions / config / runs
// ----------------------------------------------------------------------------

func TestFunctions(t *testing.T) {
	isolate(t)

	code, stdout, _ := run(t, "", "functions")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "library.main")
	assert.Contains(t, stdout, "handler")

	code, stdout, _ = run(t, "", "functions", "--json")
	require.Equal(t, 0, code)
	var fns []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &fns))
	assert.NotEmpty(t, fns)
}

func TestConfigInitAndShow(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "protoflow.yaml")

	code, stdout, stderr := run(t, "", "config", "init", path)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, path)

	code, _, stderr = run(t, "", "config", "init", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "already exists")

	code, stdout, stderr = run(t, "", "-c", path, "config")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "accept_timeout: 10m0s")
}

func TestRuns_Disabled(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run_db: \"\"\n"), 0o600))

	code, _, stderr := run(t, "", "-c", path, "runs", "list")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "run history is disabled")
}

func TestRuns_PurgeRejectsNonPositive(t *testing.T) {
	isolate(t)
	code, _, stderr := run(t, "", "runs", "purge", "--older-than", "0s")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "--older-than must be positive")
}
