package telemetry

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

const redacted = "***REDACTED***"

// RedactHandler wraps a slog handler to scrub secret values, such as the
// API token, from messages and string attributes.
type RedactHandler struct {
	inner   slog.Handler
	mu      *sync.RWMutex
	secrets map[string]bool
}

// NewRedactHandler creates a handler that redacts known secret values.
func NewRedactHandler(inner slog.Handler) *RedactHandler {
	return &RedactHandler{
		inner:   inner,
		mu:      &sync.RWMutex{},
		secrets: make(map[string]bool),
	}
}

// AddSecret registers a value to be redacted from log output.
func (h *RedactHandler) AddSecret(value string) {
	if value == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.secrets[value] = true
}

// Enabled delegates to the inner handler.
func (h *RedactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle redacts secret values from the record before passing it on.
func (h *RedactHandler) Handle(ctx context.Context, record slog.Record) error {
	h.mu.RLock()
	secrets := make([]string, 0, len(h.secrets))
	for s := range h.secrets {
		secrets = append(secrets, s)
	}
	h.mu.RUnlock()

	if len(secrets) == 0 {
		return h.inner.Handle(ctx, record)
	}

	clean := slog.NewRecord(record.Time, record.Level, scrub(record.Message, secrets), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(scrubAttr(a, secrets))
		return true
	})
	return h.inner.Handle(ctx, clean)
}

// WithAttrs shares the parent's secret set so AddSecret reaches children.
// Attributes bound here are scrubbed up front.
func (h *RedactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.mu.RLock()
	secrets := make([]string, 0, len(h.secrets))
	for s := range h.secrets {
		secrets = append(secrets, s)
	}
	h.mu.RUnlock()

	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = scrubAttr(a, secrets)
	}
	return &RedactHandler{
		inner:   h.inner.WithAttrs(clean),
		mu:      h.mu,
		secrets: h.secrets,
	}
}

// WithGroup shares the parent's secret set.
func (h *RedactHandler) WithGroup(name string) slog.Handler {
	return &RedactHandler{
		inner:   h.inner.WithGroup(name),
		mu:      h.mu,
		secrets: h.secrets,
	}
}

// RedactString replaces any known secret values in s with a placeholder.
func (h *RedactHandler) RedactString(s string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for secret := range h.secrets {
		s = strings.ReplaceAll(s, secret, redacted)
	}
	return s
}

func scrub(s string, secrets []string) string {
	for _, secret := range secrets {
		s = strings.ReplaceAll(s, secret, redacted)
	}
	return s
}

func scrubAttr(a slog.Attr, secrets []string) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, scrub(a.Value.String(), secrets))
	case slog.KindGroup:
		group := a.Value.Group()
		clean := make([]any, len(group))
		for i, g := range group {
			clean[i] = scrubAttr(g, secrets)
		}
		return slog.Group(a.Key, clean...)
	}
	return a
}
