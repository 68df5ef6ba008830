package protocol

import (
	"bytes"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/protoflow/pkg/core"
)

func TestParseFraming(t *testing.T) {
	f, err := ParseFraming("")
	require.NoError(t, err)
	assert.Equal(t, FramingJSON, f)

	f, err = ParseFraming("length")
	require.NoError(t, err)
	assert.Equal(t, FramingLength, f)

	_, err = ParseFraming("xml")
	assert.ErrorIs(t, err, core.ErrUnknownFraming)
}

func TestJSONFraming_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	body := []byte(`{"input":{"a":[1,2,3]},"import_path":"library.main","function_name":"handler"}`)
	require.NoError(t, WriteMessage(&buf, FramingJSON, body))

	got, err := ReadMessage(&buf, FramingJSON, 1024)
	require.NoError(t, err)
	assert.JSONEq(t, string(body), string(got))
}

func TestJSONFraming_LargerThanOldFixedBuffer(t *testing.T) {
	big := `{"input":"` + strings.Repeat("x", 10000) + `","import_path":"a","function_name":"b"}`

	got, err := ReadMessage(strings.NewReader(big), FramingJSON, 1<<20)
	require.NoError(t, err)
	assert.Len(t, got, len(big))
}

func TestJSONFraming_StopsAtValueBoundaryWithoutEOF(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		_ = WriteMessage(client, FramingJSON, []byte(`{"ok":true}`))
		// Connection intentionally left open.
	}()

	got, err := ReadMessage(server, FramingJSON, 1024)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(got))
}

func TestJSONFraming_Errors(t *testing.T) {
	_, err := ReadMessage(strings.NewReader(""), FramingJSON, 1024)
	assert.ErrorIs(t, err, core.ErrInvalidFrame)

	_, err = ReadMessage(strings.NewReader(`{"truncated":`), FramingJSON, 1024)
	assert.ErrorIs(t, err, core.ErrInvalidFrame)

	_, err = ReadMessage(strings.NewReader(`not json`), FramingJSON, 1024)
	assert.ErrorIs(t, err, core.ErrInvalidFrame)

	_, err = ReadMessage(strings.NewReader(`"`+strings.Repeat("x", 100)+`"`), FramingJSON, 10)
	assert.ErrorIs(t, err, core.ErrRequestTooLarge)
}

func TestLengthFraming_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	body := []byte(`{"result":{"Hello":{"id":1}},"error":null}`)
	require.NoError(t, WriteMessage(&buf, FramingLength, body))

	raw := buf.Bytes()
	require.Len(t, raw, HeaderSize+len(body))
	assert.Equal(t, []byte("pfw"), raw[0:3])
	assert.Equal(t, Version, raw[3])

	got, err := ReadMessage(&buf, FramingLength, 1024)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestLengthFraming_EmptyBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, FramingLength, nil))

	got, err := ReadMessage(&buf, FramingLength, 1024)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLengthFraming_Errors(t *testing.T) {
	_, err := ReadMessage(bytes.NewReader(nil), FramingLength, 1024)
	assert.ErrorIs(t, err, core.ErrInvalidFrame)

	_, err = ReadMessage(bytes.NewReader([]byte("xyz\x01\x00\x00\x00\x00")), FramingLength, 1024)
	require.ErrorIs(t, err, core.ErrInvalidFrame)
	assert.Contains(t, err.Error(), "magic")

	_, err = ReadMessage(bytes.NewReader([]byte("pfw\x09\x00\x00\x00\x00")), FramingLength, 1024)
	require.ErrorIs(t, err, core.ErrInvalidFrame)
	assert.Contains(t, err.Error(), "version")

	_, err = ReadMessage(bytes.NewReader([]byte("pfw\x01\x00\x00\x10\x00")), FramingLength, 1024)
	assert.ErrorIs(t, err, core.ErrRequestTooLarge)

	_, err = ReadMessage(io.MultiReader(bytes.NewReader([]byte("pfw\x01\x00\x00\x00\x05")), strings.NewReader("ab")), FramingLength, 1024)
	assert.ErrorIs(t, err, core.ErrInvalidFrame)
}

func TestUnknownFraming(t *testing.T) {
	assert.ErrorIs(t, WriteMessage(io.Discard, Framing("xml"), nil), core.ErrUnknownFraming)

	_, err := ReadMessage(strings.NewReader("{}"), Framing("xml"), 10)
	assert.ErrorIs(t, err, core.ErrUnknownFraming)
}
