package monofslog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// lineHandler renders one line per record in either the teacher's
// text form (time="..." severity=LEVEL message="prefix: msg") or its
// JSON form ({"timestamp":{"seconds":N,"nanos":N},"severity":"...",
// "message":"prefix: msg"}). It deliberately ignores slog groups and
// extra attrs: monofs log lines carry their context in the message,
// matching the *f-style call sites the teacher's logger exposes.
type lineHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  *slog.LevelVar
	format string // "text" or "json"
	prefix string
}

func newLineHandler(out io.Writer, level *slog.LevelVar, format, prefix string) *lineHandler {
	return &lineHandler{mu: &sync.Mutex{}, out: out, level: level, format: format, prefix: prefix}
}

func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *lineHandler) Handle(_ context.Context, r slog.Record) error {
	sev := severityName(r.Level)
	msg := r.Message
	if h.prefix != "" {
		msg = h.prefix + msg
	}

	var line string
	switch h.format {
	case "json":
		line = fmt.Sprintf(
			"{\"timestamp\":{\"seconds\":%d,\"nanos\":%d},\"severity\":%q,\"message\":%q}\n",
			r.Time.Unix(), r.Time.Nanosecond(), sev, msg)
	default:
		line = fmt.Sprintf("time=%q severity=%s message=%q\n", r.Time.Format("2006/01/02 15:04:05.000000"), sev, msg)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, line)
	return err
}

func (h *lineHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *lineHandler) WithGroup(_ string) slog.Handler       { return h }
