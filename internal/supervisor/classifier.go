package supervisor

import (
	"log/slog"
	"strings"
)

// Severity is the level assigned to a line of server output. The zero value
// is SeverityInfo, which is also the state before any marker has been seen.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarn:
		return "warn"
	default:
		return "info"
	}
}

// Level maps s onto the slog level it is logged at.
func (s Severity) Level() slog.Level {
	switch s {
	case SeverityError:
		return slog.LevelError
	case SeverityWarn:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// markers in priority order; the first one present in a line decides it.
var markers = []struct {
	text     string
	severity Severity
}{
	{" ERROR]", SeverityError},
	{" WARN]", SeverityWarn},
	{" INFO]", SeverityInfo},
}

// Classify maps one line of server output to a severity and message given
// the severity established by the most recent marker line.
//
// A line carrying exactly one occurrence of its highest-priority marker
// yields the text after the marker (minus one separating space) and makes
// that marker's severity the new state. A line with no marker is a
// continuation: it is returned verbatim at the current severity. A line in
// which the deciding marker repeats is returned verbatim at info without
// touching the state.
//
// ok is false for blank lines, which produce no output and no state change.
func Classify(state Severity, line string) (next, severity Severity, message string, ok bool) {
	if strings.TrimSpace(line) == "" {
		return state, state, "", false
	}
	for _, m := range markers {
		switch strings.Count(line, m.text) {
		case 0:
			continue
		case 1:
			_, rest, _ := strings.Cut(line, m.text)
			return m.severity, m.severity, strings.TrimPrefix(rest, " "), true
		default:
			return state, SeverityInfo, line, true
		}
	}
	return state, state, line, true
}

// Classifier carries the current severity between calls to Classify. It is
// owned by a single output relay and is not safe for concurrent use.
type Classifier struct {
	state Severity
}

// State returns the severity established by the last marker line.
func (c *Classifier) State() Severity { return c.state }

// Classify classifies line and advances the classifier's state.
func (c *Classifier) Classify(line string) (Severity, string, bool) {
	next, severity, message, ok := Classify(c.state, line)
	c.state = next
	return severity, message, ok
}
