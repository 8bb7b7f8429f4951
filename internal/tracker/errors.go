package tracker

import (
	"errors"
	"fmt"
	"strings"
)

// Repository sentinels.
var (
	// ErrNoRecord is returned when a lookup or targeted write matches no row.
	ErrNoRecord = errors.New("record not found")
	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// Kind classifies an engine failure for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	case KindInternal:
		return "internal"
	}
	return "internal"
}

// FieldError names one offending input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the single typed failure surfaced by every engine operation.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

func (e *Error) Unwrap() error { return e.Err }

func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found"}
}

// Forbidden never says why access was denied.
func Forbidden() *Error {
	return &Error{Kind: KindForbidden, Message: "you do not have permission to perform this action"}
}

func Invalid(field, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{
		Kind:    KindValidation,
		Message: "validation failed",
		Fields:  []FieldError{{Field: field, Message: msg}},
	}
}

func InvalidFields(fields []FieldError) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf reports the kind of err. Anything that is not an *Error is internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// lookup converts a repository miss into NotFound and anything else into Internal.
func lookup(err error, resource string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNoRecord) {
		return NotFound(resource)
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// wrap passes engine errors through and marks the rest internal.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
