package ingest

import (
	"errors"
	"fmt"
)

// MalformedInputError reports input that cannot be parsed as tabular data:
// an unreadable path or stream, a truncated stream, a CSV syntax error, an
// empty file, or rows wider than the header. A pipeline run that returns it
// produces no output.
type MalformedInputError struct {
	Op     string // "preview", "read" or "shape"
	Source string
	Err    error
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("ingest: malformed input %s (%s): %v", e.Source, e.Op, e.Err)
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err (or any error in its chain) is a
// MalformedInputError.
func IsMalformed(err error) bool {
	var me *MalformedInputError
	return errors.As(err, &me)
}
