package logger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/corymhall/textlsp/lsp"
	"github.com/corymhall/textlsp/xcontext"
)

// ProgramLevel is the level shared by every handler built by this package.
// It can be changed while the server runs.
var ProgramLevel = new(slog.LevelVar)

var (
	startLogSenderOnce sync.Once
	logQueue           = make(chan func(), 100) // big enough for a large transient burst
)

// send queues msg for the client. Messages are sent in order from a single
// goroutine so that logging never blocks on the editor.
func send(ctx context.Context, client lsp.Client, msg string, mt lsp.MessageType) {
	logMsg := &lsp.LogMessageParams{
		Message: msg,
		Type:    mt,
	}

	startLogSenderOnce.Do(func() {
		go func() {
			for fn := range logQueue {
				fn()
			}
		}()
	})

	ctx2 := xcontext.Detach(ctx)
	logQueue <- func() { _ = client.LogMessage(ctx2, logMsg) }
}

func convertLevel(level slog.Level) lsp.MessageType {
	switch {
	case level >= slog.LevelError:
		return lsp.MessageTypeError
	case level >= slog.LevelWarn:
		return lsp.MessageTypeWarning
	case level >= slog.LevelInfo:
		return lsp.MessageTypeInfo
	case level >= slog.LevelDebug:
		return lsp.MessageTypeDebug
	default:
		return lsp.MessageTypeLog
	}
}

// ParseLevel maps a configuration string to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// clientHandler is a slog.Handler that forwards records to the editor.
type clientHandler struct {
	client lsp.Client
	level  slog.Leveler
	prefix string // group prefix applied to attribute keys
	attrs  string // preformatted attributes from WithAttrs
}

// NewClientHandler returns a handler that forwards records at or above level
// to client as window/logMessage notifications.
func NewClientHandler(client lsp.Client, level slog.Leveler) slog.Handler {
	if level == nil {
		level = ProgramLevel
	}
	return &clientHandler{client: client, level: level}
}

func (h *clientHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *clientHandler) Handle(ctx context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)
	b.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})
	send(ctx, h.client, b.String(), convertLevel(r.Level))
	return nil
}

func (h *clientHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, a := range attrs {
		writeAttr(&b, h.prefix, a)
	}
	h2 := *h
	h2.attrs = b.String()
	return &h2
}

func (h *clientHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + name + "."
	return &h2
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(b, prefix+a.Key+".", ga)
		}
		return
	}
	fmt.Fprintf(b, " %s%s=%v", prefix, a.Key, a.Value.Any())
}

// NewFileLogger opens (and truncates) the log file at path and returns a text
// handler writing to it. The returned file must be closed by the caller.
func NewFileLogger(path string, level slog.Leveler) (slog.Handler, *os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o666)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	if level == nil {
		level = ProgramLevel
	}
	h := slog.NewTextHandler(f, &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
	})
	return h, f, nil
}

// multiHandler fans records out to several handlers.
type multiHandler []slog.Handler

// Fanout returns a handler that sends each record to every handler that has
// it enabled.
func Fanout(handlers ...slog.Handler) slog.Handler {
	return multiHandler(handlers)
}

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithGroup(name)
	}
	return out
}
