package lifecycle

import (
	"errors"
	"fmt"

	"roombooking/internal/domain"
)

// ErrorKind classifies engine rejections.
type ErrorKind string

const (
	KindInvalidTransition ErrorKind = "InvalidTransition"
	KindGuardFailed       ErrorKind = "GuardFailed"
)

// TransitionError is returned when an event cannot be applied. The snapshot
// passed to the engine is never modified in that case.
type TransitionError struct {
	Kind   ErrorKind
	From   domain.StateValue
	Event  domain.EventType
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: event %s not allowed in state %s", e.Kind, e.Event, e.From)
	}
	return fmt.Sprintf("%s: event %s in state %s: %s", e.Kind, e.Event, e.From, e.Reason)
}

func invalid(from domain.StateValue, ev domain.EventType, reason string) *TransitionError {
	return &TransitionError{Kind: KindInvalidTransition, From: from, Event: ev, Reason: reason}
}

func guardFailed(from domain.StateValue, ev domain.EventType, reason string) *TransitionError {
	return &TransitionError{Kind: KindGuardFailed, From: from, Event: ev, Reason: reason}
}

// IsKind reports whether err is a TransitionError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var te *TransitionError
	return errors.As(err, &te) && te.Kind == kind
}
