// Package runner implements the one-shot job runner.
//
// A runner process handles exactly one job:
//
//	Acquire → Decode → Resolve → Invoke → Report → Exit
//
// Any failure short-circuits to reporting an error envelope and a non-zero
// exit code. Nothing is retried; retry belongs to the orchestrator.
//
// Basic usage, in a binary whose packages registered their functions at init:
//
//	r := runner.New(registry.Default,
//	    runner.WithSocket(os.Getenv("PROTOFLOW_SOCKET")),
//	)
//	os.Exit(r.Run(ctx))
package runner
