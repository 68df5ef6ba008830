package codec

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/protoflow/pkg/core"
)

func TestDecodeDescriptor_Valid(t *testing.T) {
	d, err := DecodeDescriptor([]byte(`{"input": {"a": [1, 2]}, "import_path": "library.main", "function_name": "handler"}`), false)
	require.NoError(t, err)

	assert.Equal(t, "library.main", d.ImportPath)
	assert.Equal(t, "handler", d.FunctionName)
	assert.JSONEq(t, `{"a": [1, 2]}`, string(d.Input))
	assert.Empty(t, d.Socket)
}

func TestDecodeDescriptor_InputMayBeAnyValue(t *testing.T) {
	for _, input := range []string{`null`, `0`, `"s"`, `[1,2]`, `true`, `{}`} {
		d, err := DecodeDescriptor([]byte(`{"input":`+input+`,"import_path":"a","function_name":"b"}`), false)
		require.NoError(t, err, input)
		assert.Equal(t, input, string(d.Input))
	}
}

func TestDecodeDescriptor_MissingFields(t *testing.T) {
	cases := map[string]string{
		"input":         `{"import_path":"a","function_name":"b"}`,
		"import_path":   `{"input":{},"function_name":"b"}`,
		"function_name": `{"input":{},"import_path":"a"}`,
	}
	for field, body := range cases {
		_, err := DecodeDescriptor([]byte(body), false)
		require.Error(t, err, field)

		var decErr *core.DecodeError
		assert.True(t, errors.As(err, &decErr), field)
		assert.ErrorIs(t, err, core.ErrMissingField, field)
		assert.Contains(t, err.Error(), field)
	}
}

func TestDecodeDescriptor_SocketRequiredForStdinProfile(t *testing.T) {
	body := []byte(`{"input":{},"import_path":"a","function_name":"b"}`)

	_, err := DecodeDescriptor(body, true)
	require.ErrorIs(t, err, core.ErrMissingField)
	assert.Contains(t, err.Error(), "socket")

	d, err := DecodeDescriptor([]byte(`{"input":{},"import_path":"a","function_name":"b","socket":"/tmp/x.sock"}`), true)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.sock", d.Socket)
}

func TestDecodeDescriptor_PartialKeepsSocket(t *testing.T) {
	d, err := DecodeDescriptor([]byte(`{"input":{},"socket":"/tmp/r.sock"}`), true)
	require.Error(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "/tmp/r.sock", d.Socket)
}

func TestDecodeDescriptor_InvalidTypes(t *testing.T) {
	_, err := DecodeDescriptor([]byte(`{"input":{},"import_path":5,"function_name":"b"}`), false)
	assert.ErrorIs(t, err, core.ErrInvalidField)

	_, err = DecodeDescriptor([]byte(`{"input":{},"import_path":"a","function_name":null}`), false)
	assert.ErrorIs(t, err, core.ErrInvalidField)

	_, err = DecodeDescriptor([]byte(`{"input":{},"import_path":"a","function_name":"b","socket":[]}`), false)
	assert.ErrorIs(t, err, core.ErrInvalidField)
}

func TestDecodeDescriptor_NotAnObject(t *testing.T) {
	for _, body := range []string{``, `not json`, `[1,2]`, `"str"`, `{"input":`} {
		d, err := DecodeDescriptor([]byte(body), false)
		require.Error(t, err, body)
		assert.NotNil(t, d)
		assert.Equal(t, core.KindDecode, core.KindOf(err), body)
	}

	_, err := DecodeDescriptor([]byte(`null`), false)
	assert.ErrorIs(t, err, core.ErrInvalidField)
}

func TestEncodeDescriptor_AlwaysCarriesInput(t *testing.T) {
	data, err := EncodeDescriptor(&core.JobDescriptor{ImportPath: "a", FunctionName: "b"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"input":null,"import_path":"a","function_name":"b"}`, string(data))

	d, err := DecodeDescriptor(data, false)
	require.NoError(t, err)
	assert.Equal(t, "a", d.ImportPath)
}

func TestEnvelope_RoundTrip(t *testing.T) {
	trace := "InvocationError: boom"
	envelopes := []*core.ResultEnvelope{
		core.Success(json.RawMessage(`{"Hello":{"id":1}}`)),
		core.Success(json.RawMessage(`[1,2,3]`)),
		core.Success(nil),
		{Result: json.RawMessage(`null`), Error: &trace},
	}

	for _, env := range envelopes {
		data, err := EncodeEnvelope(env)
		require.NoError(t, err)

		got, err := DecodeEnvelope(data)
		require.NoError(t, err)
		assert.JSONEq(t, string(env.Result), string(got.Result))
		assert.Equal(t, env.Error == nil, got.Error == nil)
		assert.Equal(t, env.ErrorString(), got.ErrorString())
	}
}

func TestEncodeEnvelope_BothKeysPresent(t *testing.T) {
	data, err := EncodeEnvelope(&core.ResultEnvelope{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":null,"error":null}`, string(data))
}

func TestDecodeEnvelope_MissingErrorKeyIsNull(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"result":{"id":1}}`))
	require.NoError(t, err)
	assert.False(t, env.Failed())
	assert.JSONEq(t, `{"id":1}`, string(env.Result))
}

func TestDecodeEnvelope_NonStringError(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"result":null,"error":{"code":3}}`))
	require.NoError(t, err)
	assert.True(t, env.Failed())
	assert.Equal(t, `{"code":3}`, env.ErrorString())
}

func TestDecodeEnvelope_Invalid(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`garbage`))
	assert.Error(t, err)

	_, err = DecodeEnvelope([]byte(`null`))
	assert.ErrorIs(t, err, core.ErrInvalidField)
}
