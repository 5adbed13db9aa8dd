package geospatial

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// Error classes surfaced at the API boundary. Match them with errors.Is.
var (
	// ErrInvalidInput marks malformed caller input (bbox, numbers, GeoJSON).
	ErrInvalidInput = eris.New("invalid input")
	// ErrNotFound marks an address or reference absent from the data.
	ErrNotFound = eris.New("not found")
	// ErrSchema marks a dataset whose table cannot be served as configured.
	ErrSchema = eris.New("schema mismatch")
)

// Error is a classified error whose message is safe to return to callers.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Unwrap exposes the class so errors.Is(err, ErrNotFound) works.
func (e *Error) Unwrap() error { return e.Kind }

// InvalidInputf returns an ErrInvalidInput-class error.
func InvalidInputf(format string, args ...any) error {
	return &Error{Kind: ErrInvalidInput, Msg: fmt.Sprintf(format, args...)}
}

// NotFoundf returns an ErrNotFound-class error.
func NotFoundf(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Msg: fmt.Sprintf(format, args...)}
}

// SchemaErrorf returns an ErrSchema-class error.
func SchemaErrorf(format string, args ...any) error {
	return &Error{Kind: ErrSchema, Msg: fmt.Sprintf(format, args...)}
}
