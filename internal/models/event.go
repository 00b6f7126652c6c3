package models

import "time"

type EventAction string

const (
	ActionStart     EventAction = "start"
	ActionStop      EventAction = "stop"
	ActionForceStop EventAction = "force_stop"
	ActionReconcile EventAction = "reconcile"
	ActionDiscover  EventAction = "discover"
)

type EventOutcome string

const (
	OutcomeOK       EventOutcome = "ok"
	OutcomeFailed   EventOutcome = "failed"
	OutcomeConflict EventOutcome = "conflict"
	OutcomeNoop     EventOutcome = "noop"
)

// Event is one entry of the lifecycle journal.
type Event struct {
	ID      string       `json:"id"`
	At      time.Time    `json:"at"`
	Service string       `json:"service"`
	Action  EventAction  `json:"action"`
	Outcome EventOutcome `json:"outcome"`
	Holder  string       `json:"holder,omitempty"`
	Detail  string       `json:"detail,omitempty"`
}

type EventsResponse struct {
	Events []Event `json:"events"`
}
