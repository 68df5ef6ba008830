// Package orchestrator runs functions out of process.
//
// A Caller spawns one runner process per call, hands it the job over a unix
// socket it listens on (or over the child's stdin), reads the result envelope
// and waits for the process to exit:
//
//	caller := orchestrator.New(orchestrator.WithStore(store))
//	res, err := caller.Call(ctx, orchestrator.Request{
//	    ImportPath:   "library.main",
//	    FunctionName: "handler",
//	    Input:        json.RawMessage(`{}`),
//	})
//
// err reports orchestration failures only. A function that failed is a
// successful call whose Envelope carries the error trace.
package orchestrator
