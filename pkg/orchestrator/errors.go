package orchestrator

import (
	"errors"
	"fmt"
)

// ErrNoResponse means the runner exited before sending a result envelope.
var ErrNoResponse = errors.New("orchestrator: runner exited without responding")

// Stage names the orchestration step a CallError comes from.
type Stage string

const (
	StageListen Stage = "listen"
	StageSpawn  Stage = "spawn"
	StageAccept Stage = "accept"
	StageSend   Stage = "send"
	StageRecv   Stage = "receive"
	StageDecode Stage = "decode"
)

// CallError is an orchestration failure: the runner never reported a result.
type CallError struct {
	Stage    Stage
	ExitCode int // -1 when the process did not exit or was never started
	Stderr   string
	Err      error
}

func (e *CallError) Error() string {
	msg := fmt.Sprintf("orchestrator: %s: %v", e.Stage, e.Err)
	if e.ExitCode >= 0 {
		msg += fmt.Sprintf(" (exit code %d)", e.ExitCode)
	}
	return msg
}

func (e *CallError) Unwrap() error {
	return e.Err
}
