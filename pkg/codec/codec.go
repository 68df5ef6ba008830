// Package codec encodes and decodes the runner's wire messages.
//
// Decoding is strict about presence: every required key of a JobDescriptor
// must appear in the document. Values are not validated beyond their JSON
// type; the input value is passed through untouched.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jdziat/protoflow/pkg/core"
)

// Wire keys of the descriptor.
const (
	KeyInput        = "input"
	KeyImportPath   = "import_path"
	KeyFunctionName = "function_name"
	KeySocket       = "socket"
)

// DecodeDescriptor parses a request body. When requireSocket is set the
// socket key is required as well (stdin profile).
//
// The returned descriptor is never nil: on a field error it carries whatever
// fields did decode, so a caller can still find the response socket.
// Errors are *core.DecodeError.
func DecodeDescriptor(data []byte, requireSocket bool) (*core.JobDescriptor, error) {
	desc := &core.JobDescriptor{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return desc, core.Decode(fmt.Errorf("request is not a JSON object: %w", err))
	}
	if fields == nil {
		return desc, core.Decode(fmt.Errorf("%w: request is null", core.ErrInvalidField))
	}

	// Socket first so it is available even when other fields are broken.
	if raw, ok := fields[KeySocket]; ok {
		if err := decodeString(raw, KeySocket, &desc.Socket); err != nil {
			return desc, err
		}
	} else if requireSocket {
		return desc, core.Decode(fmt.Errorf("%w: %s", core.ErrMissingField, KeySocket))
	}

	input, ok := fields[KeyInput]
	if !ok {
		return desc, core.Decode(fmt.Errorf("%w: %s", core.ErrMissingField, KeyInput))
	}
	desc.Input = input

	for _, f := range []struct {
		key string
		dst *string
	}{
		{KeyImportPath, &desc.ImportPath},
		{KeyFunctionName, &desc.FunctionName},
	} {
		raw, ok := fields[f.key]
		if !ok {
			return desc, core.Decode(fmt.Errorf("%w: %s", core.ErrMissingField, f.key))
		}
		if err := decodeString(raw, f.key, f.dst); err != nil {
			return desc, err
		}
	}

	return desc, nil
}

func decodeString(raw json.RawMessage, key string, dst *string) error {
	if core.IsNull(raw) {
		return core.Decode(fmt.Errorf("%w: %s is null", core.ErrInvalidField, key))
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return core.Decode(fmt.Errorf("%w: %s must be a string", core.ErrInvalidField, key))
	}
	return nil
}

// EncodeDescriptor serializes a request. A missing input is sent as null so
// the key is always present.
func EncodeDescriptor(d *core.JobDescriptor) ([]byte, error) {
	out := *d
	if len(bytes.TrimSpace(out.Input)) == 0 {
		out.Input = json.RawMessage("null")
	}
	return json.Marshal(&out)
}

// EncodeEnvelope serializes a response. Both keys are always present.
func EncodeEnvelope(env *core.ResultEnvelope) ([]byte, error) {
	out := *env
	if len(bytes.TrimSpace(out.Result)) == 0 {
		out.Result = json.RawMessage("null")
	}
	data, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope parses a response. A missing error key reads as null, which
// keeps runtimes that only send {"result": ...} compatible.
func DecodeEnvelope(data []byte) (*core.ResultEnvelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("decode envelope: %w: null", core.ErrInvalidField)
	}

	env := &core.ResultEnvelope{Result: json.RawMessage("null")}
	if raw, ok := fields["result"]; ok && len(raw) > 0 {
		env.Result = raw
	}
	if raw, ok := fields["error"]; ok && !core.IsNull(raw) {
		var msg string
		if err := json.Unmarshal(raw, &msg); err != nil {
			// Non-string errors are kept in their JSON form.
			msg = string(raw)
		}
		env.Error = &msg
	}
	return env, nil
}
