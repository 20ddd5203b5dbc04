package exchange

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedFile is matched by every *MalformedFileError.
	ErrMalformedFile = errors.New("exchange: malformed file")
	// ErrMalformedRow is matched by every *MalformedRowError.
	ErrMalformedRow = errors.New("exchange: malformed row")
	// ErrStaleReference is matched by every *StaleReferenceError.
	ErrStaleReference = errors.New("exchange: stale reference")
)

// MalformedFileError rejects a whole import before any row is processed.
type MalformedFileError struct {
	Missing []string
	Reason  string
}

func (e *MalformedFileError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("exchange: malformed file: missing required columns %s", strings.Join(e.Missing, ", "))
	}
	return "exchange: malformed file: " + e.Reason
}

// Unwrap lets errors.Is match ErrMalformedFile.
func (e *MalformedFileError) Unwrap() error { return ErrMalformedFile }

// MalformedRowError reports a row whose identity columns are missing or not
// well-typed.
type MalformedRowError struct {
	Line   int
	Column string
	Reason string
}

func (e *MalformedRowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("exchange: line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("exchange: line %d: column %s: %s", e.Line, e.Column, e.Reason)
}

// Unwrap lets errors.Is match ErrMalformedRow.
func (e *MalformedRowError) Unwrap() error { return ErrMalformedRow }

// StaleReferenceError reports a row whose address no longer resolves against
// the current tree.
type StaleReferenceError struct {
	Line   int
	Key    string
	Reason string
}

func (e *StaleReferenceError) Error() string {
	return fmt.Sprintf("exchange: line %d: %s: %s", e.Line, e.Key, e.Reason)
}

// Unwrap lets errors.Is match ErrStaleReference.
func (e *StaleReferenceError) Unwrap() error { return ErrStaleReference }
