package overlay

import (
	"errors"
	"fmt"
)

// ErrUnknownLanguage is matched by every *UnknownLanguageError.
var ErrUnknownLanguage = errors.New("overlay: unknown language")

// UnknownLanguageError reports a language id that is not an existing, active
// overlay target.
type UnknownLanguageError struct {
	LanguageID int64
	Reason     string
}

func (e *UnknownLanguageError) Error() string {
	return fmt.Sprintf("overlay: language %d: %s", e.LanguageID, e.Reason)
}

// Unwrap lets errors.Is match ErrUnknownLanguage.
func (e *UnknownLanguageError) Unwrap() error { return ErrUnknownLanguage }

// ErrEmptyValue is returned when an upsert carries an empty value. Clearing a
// translation is not supported; absence means "use the original".
var ErrEmptyValue = errors.New("overlay: empty translation value")
