package core

import (
	"bytes"
	"encoding/json"
	"time"
)

// JobDescriptor is the request a runner receives: which function to run and with what input.
type JobDescriptor struct {
	Input        json.RawMessage `json:"input"`
	ImportPath   string          `json:"import_path"`
	FunctionName string          `json:"function_name"`

	// Socket is the response channel path. Only the stdin profile carries it.
	Socket string `json:"socket,omitempty"`
}

// Key returns the registry key the descriptor addresses.
func (d *JobDescriptor) Key() FunctionKey {
	return FunctionKey{ImportPath: d.ImportPath, FunctionName: d.FunctionName}
}

// ResultEnvelope is the response a runner writes back.
// Both keys are always serialized; Error is null on success.
type ResultEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// Success builds an envelope carrying a result.
func Success(result json.RawMessage) *ResultEnvelope {
	if len(result) == 0 {
		result = nullJSON
	}
	return &ResultEnvelope{Result: result}
}

// Failure builds an envelope carrying an error trace.
func Failure(trace string) *ResultEnvelope {
	return &ResultEnvelope{Result: nullJSON, Error: &trace}
}

// Failed reports whether the envelope carries an error.
func (e *ResultEnvelope) Failed() bool {
	return e.Error != nil
}

// ErrorString returns the error trace or "" on success.
func (e *ResultEnvelope) ErrorString() string {
	if e.Error == nil {
		return ""
	}
	return *e.Error
}

var nullJSON = json.RawMessage("null")

// IsNull reports whether raw is absent or the JSON literal null.
func IsNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, nullJSON)
}

// FunctionKey addresses a function in the registry: unit (import path) plus symbol.
type FunctionKey struct {
	ImportPath   string `json:"import_path"`
	FunctionName string `json:"function_name"`
}

func (k FunctionKey) String() string {
	return k.ImportPath + "." + k.FunctionName
}

// RunStatus represents the state of a recorded run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is one orchestrated invocation of a function, as kept in run history.
type Run struct {
	ID           string          `gorm:"primaryKey;size:36" json:"id"`
	ImportPath   string          `gorm:"index:idx_runs_function;size:255;not null" json:"import_path"`
	FunctionName string          `gorm:"index:idx_runs_function;size:255;not null" json:"function_name"`
	Profile      string          `gorm:"size:20" json:"profile"`
	Status       RunStatus       `gorm:"index;size:20;default:'running'" json:"status"`
	Input        json.RawMessage `gorm:"type:bytes" json:"input,omitempty"`
	Result       json.RawMessage `gorm:"type:bytes" json:"result,omitempty"`
	Error        string          `gorm:"type:text" json:"error,omitempty"`
	ExitCode     int             `gorm:"default:0" json:"exit_code"`
	DurationMS   int64           `gorm:"default:0" json:"duration_ms"`
	StartedAt    time.Time       `gorm:"index" json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Function is a catalog row describing a registered function.
type Function struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	ImportPath   string    `gorm:"uniqueIndex:idx_functions_key;size:255;not null" json:"import_path"`
	FunctionName string    `gorm:"uniqueIndex:idx_functions_key;size:255;not null" json:"function_name"`
	ArgType      string    `gorm:"size:255" json:"arg_type"`
	ResultType   string    `gorm:"size:255" json:"result_type,omitempty"`
	HasContext   bool      `json:"has_context"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Key returns the registry key of the catalog row.
func (f *Function) Key() FunctionKey {
	return FunctionKey{ImportPath: f.ImportPath, FunctionName: f.FunctionName}
}
