// Package protocol implements message framing for the runner channel.
//
// A channel carries exactly one request and one response. Two framings exist:
//
// FramingJSON (default): the message is a single JSON document. The reader
// stops at the end of the value, so neither a size guess nor a half-close is
// needed to find the boundary.
//
// FramingLength: a fixed-size 8-byte header followed by the body.
//
//	0      3  4         8
//	┌──────┬──┬─────────┬───────────────┐
//	│magic │v │ bodyLen │    body ...    │
//	│ pfw  │01│ uint32  │ bodyLen bytes  │
//	└──────┴──┴─────────┴───────────────┘
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/jdziat/protoflow/pkg/core"
)

// Magic number bytes: "pfw" (protoflow).
const (
	MagicByte1 byte = 0x70 // 'p'
	MagicByte2 byte = 0x66 // 'f'
	MagicByte3 byte = 0x77 // 'w'
	Version    byte = 0x01
	HeaderSize int  = 8 // 3 (magic) + 1 (version) + 4 (bodyLen)
)

// Framing selects how message boundaries are found on the stream.
type Framing string

const (
	FramingJSON   Framing = "json"
	FramingLength Framing = "length"
)

// ParseFraming maps a configuration value to a Framing. Empty means FramingJSON.
func ParseFraming(s string) (Framing, error) {
	switch Framing(s) {
	case "", FramingJSON:
		return FramingJSON, nil
	case FramingLength:
		return FramingLength, nil
	}
	return "", fmt.Errorf("%w: %q", core.ErrUnknownFraming, s)
}

// WriteMessage writes one framed message to w.
func WriteMessage(w io.Writer, f Framing, body []byte) error {
	switch f {
	case FramingJSON, "":
		_, err := w.Write(body)
		return err
	case FramingLength:
		if uint64(len(body)) > math.MaxUint32 {
			return fmt.Errorf("%w: %d bytes do not fit a length header", core.ErrRequestTooLarge, len(body))
		}
		header := make([]byte, HeaderSize)
		copy(header[0:3], []byte{MagicByte1, MagicByte2, MagicByte3})
		header[3] = Version
		binary.BigEndian.PutUint32(header[4:8], uint32(len(body)))
		if _, err := w.Write(header); err != nil {
			return err
		}
		_, err := w.Write(body)
		return err
	}
	return fmt.Errorf("%w: %q", core.ErrUnknownFraming, f)
}

// ReadMessage reads one framed message of at most limit bytes from r.
func ReadMessage(r io.Reader, f Framing, limit int) ([]byte, error) {
	switch f {
	case FramingJSON, "":
		return readJSON(r, limit)
	case FramingLength:
		return readLength(r, limit)
	}
	return nil, fmt.Errorf("%w: %q", core.ErrUnknownFraming, f)
}

// countingReader tracks how many bytes the JSON decoder pulled.
type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func readJSON(r io.Reader, limit int) ([]byte, error) {
	cr := &countingReader{r: io.LimitReader(r, int64(limit)+1)}
	dec := json.NewDecoder(cr)

	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		if cr.n > limit {
			return nil, fmt.Errorf("%w: more than %d bytes", core.ErrRequestTooLarge, limit)
		}
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty message", core.ErrInvalidFrame)
		}
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidFrame, err)
	}
	return raw, nil
}

func readLength(r io.Reader, limit int) ([]byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty message", core.ErrInvalidFrame)
		}
		return nil, fmt.Errorf("%w: header: %v", core.ErrInvalidFrame, err)
	}

	if header[0] != MagicByte1 || header[1] != MagicByte2 || header[2] != MagicByte3 {
		return nil, fmt.Errorf("%w: invalid magic number: %x", core.ErrInvalidFrame, header[0:3])
	}
	if header[3] != Version {
		return nil, fmt.Errorf("%w: unsupported version: %d", core.ErrInvalidFrame, header[3])
	}

	bodyLen := binary.BigEndian.Uint32(header[4:8])
	if uint64(bodyLen) > uint64(limit) {
		return nil, fmt.Errorf("%w: %d > %d bytes", core.ErrRequestTooLarge, bodyLen, limit)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("%w: body: %v", core.ErrInvalidFrame, err)
	}
	return body, nil
}
