package log

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"
)

const defaultMaxErrorLinks = 8

// slogLogger carries its own attrs instead of using Handler.WithAttrs so
// that With stays cheap and the caller PC is computed here, not in slog.
type slogLogger struct {
	h     slog.Handler
	attrs []slog.Attr
	links int // 0 disables error_links
}

func newSlog(opts Options) (Logger, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	stackLevel := opts.StacktraceLevel
	if stackLevel == 0 {
		stackLevel = slog.LevelError
	}

	ho := &slog.HandlerOptions{Level: opts.Level, AddSource: true}
	var out slog.Handler = slog.NewTextHandler(w, ho)
	if opts.JsonFormat {
		out = slog.NewJSONHandler(w, ho)
	}

	l := &slogLogger{
		h:     enrichHandler{next: out, stackLevel: stackLevel},
		attrs: baseAttrs(opts),
	}
	if opts.IncludeErrorLinks {
		l.links = opts.MaxErrorLinks
		if l.links <= 0 {
			l.links = defaultMaxErrorLinks
		}
	}
	return l, nil
}

func baseAttrs(opts Options) []slog.Attr {
	attrs := []slog.Attr{slog.String("app", opts.App)}
	for _, kv := range [][2]string{{"component", opts.Component}, {"version", opts.Version}} {
		if kv[1] != "" {
			attrs = append(attrs, slog.String(kv[0], kv[1]))
		}
	}
	return attrs
}

func (s *slogLogger) With(kv ...any) Logger {
	add := kvAttrs(kv)
	attrs := make([]slog.Attr, len(s.attrs), len(s.attrs)+len(add))
	copy(attrs, s.attrs)
	return &slogLogger{h: s.h, attrs: append(attrs, add...), links: s.links}
}

func (s *slogLogger) Debug(ctx context.Context, msg string, kv ...any) {
	s.emit(ctx, slog.LevelDebug, msg, kv)
}

func (s *slogLogger) Info(ctx context.Context, msg string, kv ...any) {
	s.emit(ctx, slog.LevelInfo, msg, kv)
}

func (s *slogLogger) Warn(ctx context.Context, msg string, kv ...any) {
	s.emit(ctx, slog.LevelWarn, msg, kv)
}

func (s *slogLogger) Error(ctx context.Context, err error, msg string, kv ...any) {
	if err != nil {
		kv = append(kv, errorFields(err, s.links)...)
	}
	s.emit(ctx, slog.LevelError, msg, kv)
}

func (s *slogLogger) Sync() error { return nil }

// emit must be called directly from a level method; the caller PC skips
// runtime.Callers, emit and that method.
func (s *slogLogger) emit(ctx context.Context, lvl slog.Level, msg string, kv []any) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.h.Enabled(ctx, lvl) {
		return
	}
	var pc [1]uintptr
	runtime.Callers(3, pc[:])

	r := slog.NewRecord(time.Now(), lvl, msg, pc[0])
	r.AddAttrs(s.attrs...)
	r.AddAttrs(kvAttrs(kv)...)
	_ = s.h.Handle(ctx, r)
}

// kvAttrs pairs up alternating keys and values. Pairs with a non-string
// key and a trailing odd value are dropped.
func kvAttrs(kv []any) []slog.Attr {
	out := make([]slog.Attr, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			out = append(out, slog.Any(k, kv[i+1]))
		}
	}
	return out
}
