package library

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrFail is returned by library.echo.fail.
var ErrFail = errors.New("library: fail called")

// Echo returns its input unchanged.
func Echo(input json.RawMessage) (json.RawMessage, error) {
	if len(input) == 0 {
		return json.RawMessage("null"), nil
	}
	return input, nil
}

// Fail always fails, quoting its input.
func Fail(input json.RawMessage) (any, error) {
	return nil, fmt.Errorf("%w with %s", ErrFail, input)
}
