// Package diag provides the runner's diagnostic log stream: a slog.Handler
// that writes one JSON object per line in the shape orchestrators parse,
//
//	{"type":"log","context":"runtime","msg":"...","data":{...}}
//
// Record attributes land under "data"; groups become nested objects.
package diag

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// DefaultContext is the context field value for runner records.
const DefaultContext = "runtime"

// Options configures a Handler.
type Options struct {
	// Level is the minimum level written. Default: slog.LevelInfo.
	Level slog.Leveler
	// Context is the "context" field. Default: DefaultContext.
	Context string
}

// Record is the wire shape of one diagnostic line.
type Record struct {
	Type    string         `json:"type"`
	Context string         `json:"context"`
	Msg     string         `json:"msg"`
	Data    map[string]any `json:"data"`
}

type groupedAttr struct {
	groups []string
	attr   slog.Attr
}

// Handler is a slog.Handler writing Records.
type Handler struct {
	w       io.Writer
	mu      *sync.Mutex
	level   slog.Leveler
	context string
	attrs   []groupedAttr
	groups  []string
}

var _ slog.Handler = (*Handler)(nil)

// NewHandler creates a Handler writing to w.
func NewHandler(w io.Writer, opts *Options) *Handler {
	h := &Handler{
		w:       w,
		mu:      &sync.Mutex{},
		level:   slog.LevelInfo,
		context: DefaultContext,
	}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		if opts.Context != "" {
			h.context = opts.Context
		}
	}
	return h
}

// New returns a logger writing diagnostic records to w.
func New(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(NewHandler(w, &Options{Level: level}))
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	data := make(map[string]any)
	for _, ga := range h.attrs {
		put(data, ga.groups, ga.attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		put(data, h.groups, a)
		return true
	})

	line, err := json.Marshal(&Record{
		Type:    "log",
		Context: h.context,
		Msg:     r.Message,
		Data:    data,
	})
	if err != nil {
		return err
	}
	line = append(line, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(line)
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	h2.attrs = make([]groupedAttr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(h2.attrs, h.attrs)
	for _, a := range attrs {
		h2.attrs = append(h2.attrs, groupedAttr{groups: h.groups, attr: a})
	}
	return &h2
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.groups = append(append([]string(nil), h.groups...), name)
	return &h2
}

// put stores a under the nested group path in data.
func put(data map[string]any, groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	m := data
	for _, g := range groups {
		sub, ok := m[g].(map[string]any)
		if !ok {
			sub = make(map[string]any)
			m[g] = sub
		}
		m = sub
	}

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		if len(attrs) == 0 {
			return
		}
		if a.Key == "" {
			for _, ga := range attrs {
				put(m, nil, ga)
			}
			return
		}
		for _, ga := range attrs {
			put(m, []string{a.Key}, ga)
		}
		return
	}
	m[a.Key] = value(a.Value)
}

func value(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	}

	switch x := v.Any().(type) {
	case error:
		return x.Error()
	case json.RawMessage:
		return x
	case []byte:
		return string(x)
	default:
		return x
	}
}
