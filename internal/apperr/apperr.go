// Package apperr defines the tagged error kinds shared by the path guard,
// file operations, and process supervisor.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can branch without parsing messages.
type Kind int

const (
	KindUnknown Kind = iota
	PathEscapesSandbox
	InvalidPath
	SourceMissing
	UnsupportedSourceType
	IoError
	ExecutableNotFound
	ResourceNotFound
	ProcessSpawnFailed
	StreamUnavailable
	// OverlappingPaths is returned when a copy source and destination
	// contain one another.
	OverlappingPaths
	InvalidRequest
)

var kindNames = map[Kind]string{
	KindUnknown:           "Unknown",
	PathEscapesSandbox:    "PathEscapesSandbox",
	InvalidPath:           "InvalidPath",
	SourceMissing:         "SourceMissing",
	UnsupportedSourceType: "UnsupportedSourceType",
	IoError:               "IoError",
	ExecutableNotFound:    "ExecutableNotFound",
	ResourceNotFound:      "ResourceNotFound",
	ProcessSpawnFailed:    "ProcessSpawnFailed",
	StreamUnavailable:     "StreamUnavailable",
	OverlappingPaths:      "OverlappingPaths",
	InvalidRequest:        "InvalidRequest",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a failure tagged with a Kind. Op names the operation that failed
// ("resolve", "copy", "spawn"), Path the file involved, if any.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

// New returns an *Error with the given fields.
func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func (e *Error) Error() string {
	msg := e.Op
	if msg == "" {
		msg = e.Kind.String()
	} else {
		msg += ": " + e.Kind.String()
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
