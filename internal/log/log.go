package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
)

const (
	FormatJSON = "json"
	FormatText = "text"

	OutputStderr  = "stderr"
	OutputStdout  = "stdout"
	OutputDiscard = "discard"
)

type slogKeyT struct{}

var slogKey slogKeyT

// ContextHandler adds attributes stored by ContextAttrs to every record.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(handler slog.Handler) ContextHandler {
	return ContextHandler{
		Handler: handler,
	}
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if a, ok := ctx.Value(slogKey).([]slog.Attr); ok {
		r.AddAttrs(a...)
	}

	return h.Handler.Handle(ctx, r)
}

func (h ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h ContextHandler) WithGroup(name string) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithGroup(name)}
}

// ContextAttrs returns a context carrying attrs on top of those already stored.
func ContextAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	a, _ := ctx.Value(slogKey).([]slog.Attr)
	a = append(slices.Clip(a), attrs...)
	return context.WithValue(ctx, slogKey, a)
}

type Options struct {
	Verbose bool
	Format  string // json (default) or text
	Output  string // stderr (default), stdout, discard or a file path
}

// New builds a context aware logger. The returned closer releases the log
// file, if one was opened.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}

	var w io.Writer
	var closer io.Closer = nopCloser{}
	switch opts.Output {
	case "", OutputStderr:
		w = os.Stderr
	case OutputStdout:
		w = os.Stdout
	case OutputDiscard:
		w = io.Discard
	default:
		f, err := os.OpenFile(opts.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w, closer = f, f
	}

	hopts := &slog.HandlerOptions{
		AddSource: false,
		Level:     level,
	}
	var base slog.Handler
	switch opts.Format {
	case "", FormatJSON:
		base = slog.NewJSONHandler(w, hopts)
	case FormatText:
		base = slog.NewTextHandler(w, hopts)
	default:
		_ = closer.Close()
		return nil, nil, fmt.Errorf("unsupported log format %q", opts.Format)
	}

	return slog.New(NewContextHandler(base)), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
