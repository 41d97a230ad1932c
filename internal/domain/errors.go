package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSubjectNotFound is returned when a flag write matches no subject.
	ErrSubjectNotFound = errors.New("subject not found")
	// ErrFlagUnchanged is returned when the stored flag already holds the
	// written value, e.g. because a concurrent run wrote it first.
	ErrFlagUnchanged = errors.New("critical flag unchanged")
)

// RuleConfigError is returned when a stored rule cannot be evaluated.
type RuleConfigError struct {
	RuleID string
	Reason string
}

func (e *RuleConfigError) Error() string {
	return fmt.Sprintf("rule %q is malformed: %s", e.RuleID, e.Reason)
}

// TransitionError is returned when a flag transition is not allowed.
type TransitionError struct {
	Event   FlagEvent
	Current FlagState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid from state %q", e.Event, e.Current)
}

// DeliveryError is returned when the messaging transport rejects a message.
type DeliveryError struct {
	Handle      string
	Description string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %q rejected: %s", e.Handle, e.Description)
}
