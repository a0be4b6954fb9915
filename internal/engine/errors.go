package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownEvent is returned for events with an unrecognised kind.
	ErrUnknownEvent = errors.New("unknown event kind")

	// ErrMissingField is returned when an event lacks a field its kind needs.
	ErrMissingField = errors.New("event missing required field")
)

// EventError is a failure while processing one event. The loop logs it and
// moves on.
type EventError struct {
	Kind      EventKind
	Stamp     int64
	SessionID string
	ConnID    string
	Err       error
}

// Error implements the error interface.
func (e *EventError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s event %d (session=%s): %v", e.Kind, e.Stamp, e.SessionID, e.Err)
	}
	if e.ConnID != "" {
		return fmt.Sprintf("%s event %d (conn=%s): %v", e.Kind, e.Stamp, e.ConnID, e.Err)
	}
	return fmt.Sprintf("%s event %d: %v", e.Kind, e.Stamp, e.Err)
}

// Unwrap returns the underlying cause.
func (e *EventError) Unwrap() error {
	return e.Err
}

func eventError(ev Event, err error) *EventError {
	return &EventError{Kind: ev.Kind, Stamp: ev.Stamp, SessionID: ev.SessionID, ConnID: ev.ConnID, Err: err}
}
