package domain

import "time"

// Tenant is an organization whose players are scored against its critical rules.
type Tenant struct {
	ID          string
	Name        string
	SeasonStart *time.Time
	Rules       []RuleConfig
}

// FlagState is the persisted critical flag of a subject, expressed as a state.
type FlagState string

const (
	FlagNormal   FlagState = "normal"
	FlagCritical FlagState = "critical"
)

// FlagStateOf maps the stored boolean onto a FlagState.
func FlagStateOf(critical bool) FlagState {
	if critical {
		return FlagCritical
	}
	return FlagNormal
}

// FlagEvent represents a verdict that changes a subject's flag.
type FlagEvent string

const (
	EventEscalate FlagEvent = "escalate"
	EventClear    FlagEvent = "clear"
)

// Transition defines a valid flag change: an event moves a subject from Src to Dst.
type Transition struct {
	Event FlagEvent
	Src   FlagState
	Dst   FlagState
}

// Transitions defines all valid changes of the critical flag.
// Only EventEscalate produces a notification.
var Transitions = []Transition{
	{Event: EventEscalate, Src: FlagNormal, Dst: FlagCritical},
	{Event: EventClear, Src: FlagCritical, Dst: FlagNormal},
}

// EventFor returns the event that moves a subject from its stored flag to
// the given verdict. ok is false when the verdict matches the stored flag.
func EventFor(stored, verdict bool) (event FlagEvent, ok bool) {
	switch {
	case stored == verdict:
		return "", false
	case verdict:
		return EventEscalate, true
	default:
		return EventClear, true
	}
}
