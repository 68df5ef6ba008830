package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/protoflow/pkg/config"
	"github.com/jdziat/protoflow/pkg/orchestrator"
)

type nopCaller struct{}

func (nopCaller) Call(context.Context, orchestrator.Request) (*orchestrator.Result, error) {
	return nil, nil
}

func TestNewScheduler(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Schedules = []config.ScheduleConfig{
		{Name: "todo", Schedule: "@every 1m", ImportPath: "library.main"},
		{Name: "echo", Schedule: "*/5 * * * *", ImportPath: "library.echo", FunctionName: "echo", Input: map[string]any{"a": 1}},
	}

	sched, err := newScheduler(cfg, nopCaller{})
	require.NoError(t, err)

	entries := sched.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "echo", entries[0].Name)
	assert.JSONEq(t, `{"a":1}`, string(entries[0].Request.Input))
	assert.Equal(t, "todo", entries[1].Name)
	assert.Equal(t, "null", string(entries[1].Request.Input))
	assert.Equal(t, "", entries[1].Request.FunctionName)
}

func TestNewScheduler_InvalidSchedule(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Schedules = []config.ScheduleConfig{{Name: "bad", Schedule: "whenever", ImportPath: "library.main"}}

	_, err := newScheduler(cfg, nopCaller{})
	assert.Error(t, err)
}

func TestServe_InvalidConfig(t *testing.T) {
	isolate(t)
	t.Setenv("PROTOFLOW_FRAMING", "xml")

	code, _, stderr := run(t, "", "serve")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "framing")
}
