package events

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownEventKind  = errors.New("unknown event kind")
	ErrMissingField      = errors.New("missing required field")
	ErrMalformedEnvelope = errors.New("malformed event envelope")
)

// UnknownKindError is returned when the discriminant is absent or not
// recognised. Kind is "" when the field was absent.
type UnknownKindError struct {
	Kind EventKind
}

func (e *UnknownKindError) Error() string {
	if e.Kind == "" {
		return "events: envelope has no type"
	}
	return fmt.Sprintf("events: unknown event kind %q", string(e.Kind))
}

func (e *UnknownKindError) Unwrap() error { return ErrUnknownEventKind }

// MissingFieldError names the variant field that was required but absent.
type MissingFieldError struct {
	Kind  EventKind
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("events: %s: missing required field %q", e.Kind, e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }
