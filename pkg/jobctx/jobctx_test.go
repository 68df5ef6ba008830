package jobctx_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/protoflow/pkg/core"
	"github.com/jdziat/protoflow/pkg/diag"
	intctx "github.com/jdziat/protoflow/pkg/internal/context"
	"github.com/jdziat/protoflow/pkg/jobctx"
)

func TestOutsideRunner(t *testing.T) {
	ctx := context.Background()

	assert.Nil(t, jobctx.DescriptorFromContext(ctx))
	_, ok := jobctx.FunctionKeyFromContext(ctx)
	assert.False(t, ok)
	assert.Empty(t, jobctx.ProfileFromContext(ctx))
	assert.Same(t, slog.Default(), jobctx.Logger(ctx))
}

func TestInsideRunner(t *testing.T) {
	var buf bytes.Buffer
	desc := &core.JobDescriptor{ImportPath: "library.main", FunctionName: "handler"}
	ctx := intctx.WithRunContext(context.Background(), &intctx.RunContext{
		Descriptor: desc,
		Profile:    "stdin",
		Logger:     diag.New(&buf, slog.LevelInfo),
	})

	assert.Same(t, desc, jobctx.DescriptorFromContext(ctx))
	key, ok := jobctx.FunctionKeyFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "library.main.handler", key.String())
	assert.Equal(t, "stdin", jobctx.ProfileFromContext(ctx))

	jobctx.Logger(ctx).Info("fetched", "status", 200)

	records := diag.ParseRecords(buf.Bytes())
	require.Len(t, records, 1)
	assert.Equal(t, "fetched", records[0].Msg)
	assert.Equal(t, "library.main.handler", records[0].Data["function"])
	assert.EqualValues(t, 200, records[0].Data["status"])
}
