package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/jdziat/protoflow/pkg/core"
	"github.com/jdziat/protoflow/pkg/orchestrator"
	"github.com/jdziat/protoflow/pkg/registry"
	"github.com/jdziat/protoflow/pkg/security"
)

// HeaderRunID carries the run ID of a /run response.
const HeaderRunID = "X-Protoflow-Run-Id"

// Caller runs one function out of process.
type Caller interface {
	Call(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
}

// statsSource is implemented by stores that can aggregate run counts.
type statsSource interface {
	FunctionStats(ctx context.Context) ([]*core.FunctionStats, error)
}

type api struct {
	caller   Caller
	registry *registry.Registry
	store    core.RunStore
	logger   *slog.Logger
}

// Handler creates the protoflow HTTP API.
//
//	POST /run/{unit}/{function}   body is the function input
//	POST /run/{unit}              calls the default function
//	POST /batch                   fans out many calls in parallel
//	GET  /functions               registered functions
//	GET  /runs, /runs/{id}        run history (with WithStore)
//	GET  /stats                   per-function run counts (with WithStore)
func Handler(caller Caller, opts ...Option) http.Handler {
	cfg := &config{}
	for _, opt := range opts {
		opt.apply(cfg)
	}
	if cfg.registry == nil {
		cfg.registry = registry.Default
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	a := &api{
		caller:   caller,
		registry: cfg.registry,
		store:    cfg.store,
		logger:   cfg.logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /run/{unit}/{function}", a.handleRun)
	mux.HandleFunc("POST /run/{unit}", a.handleRun)
	mux.HandleFunc("POST /batch", a.handleBatch)
	mux.HandleFunc("GET /functions", a.handleFunctions)
	mux.HandleFunc("GET /runs", a.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", a.handleGetRun)
	mux.HandleFunc("GET /stats", a.handleStats)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	var h http.Handler = mux
	if cfg.rateLimit > 0 {
		h = rateLimit(cfg.rateLimit, cfg.burst, h)
	}
	h = logRequests(cfg.logger, h)

	// HTTP/2 over cleartext for clients that keep one connection for many calls.
	h = h2c.NewHandler(h, &http2.Server{})

	if cfg.middleware != nil {
		return cfg.middleware(h)
	}
	return h
}

func (a *api) handleRun(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, security.MaxRequestSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if len(body) > security.MaxRequestSize {
		writeError(w, http.StatusRequestEntityTooLarge, core.ErrRequestTooLarge.Error())
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "body is not valid JSON")
		return
	}

	req := orchestrator.Request{
		ImportPath:   r.PathValue("unit"),
		FunctionName: r.PathValue("function"),
		Input:        body,
	}
	if err := security.ValidateImportPath(req.ImportPath); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.FunctionName != "" {
		if err := security.ValidateFunctionName(req.FunctionName); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	res, err := a.caller.Call(r.Context(), req)
	if err != nil {
		a.logger.Error("call failed", "import_path", req.ImportPath, "function_name", req.FunctionName, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	if res.RunID != "" {
		w.Header().Set(HeaderRunID, res.RunID)
	}
	writeJSON(w, http.StatusOK, res.Envelope)
}

func (a *api) handleFunctions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.registry.Describe())
}

func (a *api) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}

	q := r.URL.Query()
	filter := core.RunFilter{
		ImportPath:   q.Get("import_path"),
		FunctionName: q.Get("function_name"),
		Status:       core.RunStatus(q.Get("status")),
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	runs, err := a.store.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *api) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}

	run, err := a.store.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, core.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *api) handleStats(w http.ResponseWriter, r *http.Request) {
	src, ok := a.store.(statsSource)
	if !ok {
		writeError(w, http.StatusNotFound, "run statistics are not available")
		return
	}
	stats, err := src.FunctionStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
