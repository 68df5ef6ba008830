package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jdziat/protoflow/pkg/core"
	"github.com/jdziat/protoflow/pkg/fanout"
	"github.com/jdziat/protoflow/pkg/security"
)

// MaxBatchCalls bounds the number of calls in one /batch request.
const MaxBatchCalls = 100

type batchRequest struct {
	Calls []struct {
		ImportPath   string          `json:"import_path"`
		FunctionName string          `json:"function_name"`
		Input        json.RawMessage `json:"input"`
	} `json:"calls"`
	Strategy    string  `json:"strategy"`
	Threshold   float64 `json:"threshold"`
	Concurrency int     `json:"concurrency"`
}

type batchItem struct {
	Index  int             `json:"index"`
	RunID  string          `json:"run_id,omitempty"`
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

type batchResponse struct {
	Results   []batchItem `json:"results"`
	Succeeded int         `json:"succeeded"`
	Error     *string     `json:"error"`
}

func (a *api) handleBatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, security.MaxRequestSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if len(body) > security.MaxRequestSize {
		writeError(w, http.StatusRequestEntityTooLarge, core.ErrRequestTooLarge.Error())
		return
	}

	var req batchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "body is not a valid batch request")
		return
	}
	if len(req.Calls) == 0 || len(req.Calls) > MaxBatchCalls {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("calls must hold 1 to %d entries", MaxBatchCalls))
		return
	}
	strategy, err := fanout.ParseStrategy(req.Strategy)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	subs := make([]fanout.SubCall, len(req.Calls))
	for i, c := range req.Calls {
		if err := security.ValidateImportPath(c.ImportPath); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("calls[%d]: %v", i, err))
			return
		}
		if c.FunctionName != "" {
			if err := security.ValidateFunctionName(c.FunctionName); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("calls[%d]: %v", i, err))
				return
			}
		}
		var input any
		if len(c.Input) > 0 {
			input = c.Input
		}
		subs[i] = fanout.Sub(c.ImportPath, c.FunctionName, input)
	}

	opts := []fanout.Option{fanout.WithStrategy(strategy, req.Threshold)}
	if req.Concurrency > 0 {
		opts = append(opts, fanout.WithConcurrency(req.Concurrency))
	}

	results, ferr := fanout.FanOut[json.RawMessage](r.Context(), a.caller, subs, opts...)

	resp := batchResponse{Results: make([]batchItem, len(results))}
	for i, res := range results {
		item := batchItem{Index: res.Index, RunID: res.RunID, Result: res.Value}
		if res.Err != nil {
			msg := res.Err.Error()
			var fnErr *fanout.FunctionError
			if errors.As(res.Err, &fnErr) {
				msg = fnErr.Trace
			}
			item.Error = &msg
			item.Result = nil
		}
		if item.Result == nil {
			item.Result = json.RawMessage("null")
		}
		resp.Results[i] = item
	}
	resp.Succeeded = fanout.SuccessCount(results)
	if ferr != nil {
		msg := ferr.Error()
		resp.Error = &msg
		a.logger.Warn("batch failed", "calls", len(subs), "error", ferr)
	}
	writeJSON(w, http.StatusOK, resp)
}
