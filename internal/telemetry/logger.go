// Package telemetry provides logging, request correlation and metrics for
// the siriusu daemon.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"
)

// Levels beyond slog's four built-ins, matching the configuration vocabulary.
const (
	LevelTrace  slog.Level = -8
	LevelDebug  slog.Level = slog.LevelDebug
	LevelRecord slog.Level = -2
	LevelInfo   slog.Level = slog.LevelInfo
	LevelWarn   slog.Level = slog.LevelWarn
	LevelError  slog.Level = slog.LevelError
	LevelFatal  slog.Level = 12
	// LevelSilent is above every level a record can carry.
	LevelSilent slog.Level = math.MaxInt32
)

// LevelNames lists the accepted log level names in order of severity.
var LevelNames = []string{"fatal", "error", "warn", "info", "record", "debug", "trace", "silent"}

var levelsByName = map[string]slog.Level{
	"fatal":  LevelFatal,
	"error":  LevelError,
	"warn":   LevelWarn,
	"info":   LevelInfo,
	"record": LevelRecord,
	"debug":  LevelDebug,
	"trace":  LevelTrace,
	"silent": LevelSilent,
}

// ParseLevel returns the slog level for one of LevelNames.
func ParseLevel(name string) (slog.Level, error) {
	if level, ok := levelsByName[name]; ok {
		return level, nil
	}
	return 0, fmt.Errorf("invalid log level: %s. Expected one of: %s", name, strings.Join(LevelNames, ", "))
}

// LevelName returns the display name for level.
func LevelName(level slog.Level) string {
	switch {
	case level >= LevelSilent:
		return "SILENT"
	case level >= LevelFatal:
		return "FATAL"
	case level >= LevelError:
		return "ERROR"
	case level >= LevelWarn:
		return "WARN"
	case level >= LevelInfo:
		return "INFO"
	case level >= LevelRecord:
		return "RECORD"
	case level >= LevelDebug:
		return "DEBUG"
	default:
		return "TRACE"
	}
}

// NewLogger creates a structured logger writing text or JSON to w. The
// returned logger filters on level, which may be changed later. A nil
// level logs at info and above.
func NewLogger(w io.Writer, format string, level *slog.LevelVar) *slog.Logger {
	return slog.New(NewHandler(w, format, level))
}

// NewHandler builds the handler behind NewLogger.
func NewHandler(w io.Writer, format string, level *slog.LevelVar) slog.Handler {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(LevelName(lvl))
				}
			}
			return a
		},
	}
	if level != nil {
		opts.Level = level
	}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// WithLabel returns a child logger tagging every record with label.
func WithLabel(logger *slog.Logger, label string) *slog.Logger {
	return logger.With(slog.String("label", label))
}

// Fatal logs msg at LevelFatal. It does not exit.
func Fatal(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelFatal, msg, args...)
}
