package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"
)

// maxTextAttrRunes caps user text and event payloads echoed into log lines.
const maxTextAttrRunes = 200

// textAttrs carry caller-supplied text of unbounded length.
var textAttrs = map[string]struct{}{
	"query":            {},
	"normalized_query": {},
	"payload":          {},
}

type Options struct {
	Service string
	Level   string
	Writer  io.Writer // stdout when nil
}

// New returns a JSON logger tagged with the service and the host it runs
// on. Each API replica keeps its own ranking cache, so the host is what ties
// a cache hit to the instance that produced the ranking.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       parseLevel(opts.Level),
		ReplaceAttr: capTextAttr,
	})

	logger := slog.New(handler).With("service", opts.Service)
	if host, err := os.Hostname(); err == nil && host != "" {
		logger = logger.With("host", host)
	}
	return logger
}

func capTextAttr(_ []string, a slog.Attr) slog.Attr {
	if _, ok := textAttrs[a.Key]; !ok || a.Value.Kind() != slog.KindString {
		return a
	}
	s := a.Value.String()
	if utf8.RuneCountInString(s) <= maxTextAttrRunes {
		return a
	}
	return slog.String(a.Key, string([]rune(s)[:maxTextAttrRunes])+"...")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
