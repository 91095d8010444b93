package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"roombooking/internal/domain"
)

const (
	staffCheckInLead = time.Hour
	noShowDelay      = 30 * time.Minute
)

type attribution int

const (
	attributeActor attribution = iota
	attributeSystem
)

type guard func(in *Input, from domain.StateValue) *TransitionError

// rule is a single allowed edge. When resolve is set it picks the target at
// evaluation time; otherwise to is used.
type rule struct {
	from     domain.State
	event    domain.EventType
	to       domain.State
	resolve  func(in *Input) domain.State
	guards   []guard
	attrib   attribution
	calendar CalendarOp
}

var transitionsTable = []rule{
	// Approval path
	{from: domain.StateRequested, event: domain.EventApprove, resolve: firstApprovalTarget, calendar: CalendarUpdate},
	{from: domain.StatePending, event: domain.EventApprove, to: domain.StateApproved, calendar: CalendarUpdate},
	{from: domain.StateModified, event: domain.EventApprove, to: domain.StateApproved, calendar: CalendarUpdate},

	// Decline
	{from: domain.StateRequested, event: domain.EventDecline, to: domain.StateDeclined, guards: []guard{reasonRequired}, calendar: CalendarRelease},
	{from: domain.StatePending, event: domain.EventDecline, to: domain.StateDeclined, guards: []guard{reasonRequired}, calendar: CalendarRelease},

	// Cancel
	{from: domain.StateRequested, event: domain.EventCancel, to: domain.StateCanceled, calendar: CalendarRelease},
	{from: domain.StatePending, event: domain.EventCancel, to: domain.StateCanceled, calendar: CalendarRelease},
	{from: domain.StateApproved, event: domain.EventCancel, to: domain.StateCanceled, calendar: CalendarRelease},
	{from: domain.StateDeclined, event: domain.EventCancel, to: domain.StateCanceled, guards: []guard{systemOnly}, attrib: attributeSystem, calendar: CalendarRelease},

	// Edit
	{from: domain.StateApproved, event: domain.EventEdit, to: domain.StateApproved, guards: []guard{staffOnly, validChanges}, calendar: CalendarUpdate},
	{from: domain.StateRequested, event: domain.EventEdit, to: domain.StateRequested, guards: []guard{validChanges}, calendar: CalendarUpdate},
	{from: domain.StateModified, event: domain.EventEdit, to: domain.StateRequested, guards: []guard{validChanges}, calendar: CalendarUpdate},

	// Day of booking
	{from: domain.StateApproved, event: domain.EventCheckIn, to: domain.StateCheckedIn, guards: []guard{checkInWindow}, calendar: CalendarUpdate},
	{from: domain.StateCheckedIn, event: domain.EventCheckOut, to: domain.StateCheckedOut, calendar: CalendarUpdate},
	{from: domain.StateApproved, event: domain.EventNoShow, to: domain.StateNoShow, guards: []guard{noShowWindow}, calendar: CalendarUpdate},
	{from: domain.StateNoShow, event: domain.EventAutoCloseScript, to: domain.StateCanceled, attrib: attributeSystem, calendar: CalendarRelease},

	// Administrative closeout
	{from: domain.StateCheckedOut, event: domain.EventClose, to: domain.StateClosed, attrib: attributeSystem},
	{from: domain.StateNoShow, event: domain.EventClose, to: domain.StateClosed, attrib: attributeSystem},
	{from: domain.StateCanceled, event: domain.EventClose, to: domain.StateClosed, attrib: attributeSystem},
	{from: domain.StateDeclined, event: domain.EventClose, to: domain.StateClosed, attrib: attributeSystem},
}

func ruleFor(from domain.State, ev domain.EventType) (rule, bool) {
	for _, r := range transitionsTable {
		if r.from == from && r.event == ev {
			return r, true
		}
	}
	return rule{}, false
}

// targetsOf lists every state the event can lead to. A booking already in
// one of them (and with no outgoing edge for the event) is a replay.
func targetsOf(ev domain.EventType) []domain.State {
	var out []domain.State
	for _, r := range transitionsTable {
		if r.event != ev {
			continue
		}
		if r.resolve != nil {
			out = append(out, domain.StatePending, domain.StateApproved)
			continue
		}
		out = append(out, r.to)
	}
	return out
}

// Allowed reports whether the table has an edge for (from, ev). Guards are
// not evaluated.
func Allowed(from domain.State, ev domain.EventType) bool {
	_, ok := ruleFor(from, ev)
	return ok
}

func firstApprovalTarget(in *Input) domain.State {
	if in.Policy.TwoStepApproval {
		return domain.StatePending
	}
	return domain.StateApproved
}

func reasonRequired(in *Input, from domain.StateValue) *TransitionError {
	if strings.TrimSpace(in.Event.Reason) == "" {
		return guardFailed(from, in.Event.Type, "a reason is required to decline a booking")
	}
	return nil
}

func systemOnly(in *Input, from domain.StateValue) *TransitionError {
	if !in.isSystem() {
		return invalid(from, in.Event.Type, "only the system may cancel a declined booking")
	}
	return nil
}

func staffOnly(in *Input, from domain.StateValue) *TransitionError {
	if in.isRequester() {
		return guardFailed(from, in.Event.Type, "an approved booking can only be edited by staff")
	}
	return nil
}

func validChanges(in *Input, from domain.StateValue) *TransitionError {
	c := in.Event.Changes
	if c == nil {
		return nil
	}
	start, end := in.Booking.StartTime, in.Booking.EndTime
	if c.StartTime != nil {
		start = *c.StartTime
	}
	if c.EndTime != nil {
		end = *c.EndTime
	}
	if !end.After(start) {
		return guardFailed(from, in.Event.Type, "end time must be after start time")
	}
	return nil
}

// checkInWindow only restricts staff-context actors; the requester may check
// in at any time.
func checkInWindow(in *Input, from domain.StateValue) *TransitionError {
	if in.isRequester() {
		return nil
	}
	opens := in.Booking.StartTime.Add(-staffCheckInLead)
	if in.Now.Before(opens) {
		return guardFailed(from, in.Event.Type, fmt.Sprintf(
			"staff check-in opens at %s, one hour before the booking starts",
			opens.UTC().Format(time.RFC3339)))
	}
	return nil
}

func noShowWindow(in *Input, from domain.StateValue) *TransitionError {
	opens := in.Booking.StartTime.Add(noShowDelay)
	if in.Now.Before(opens) {
		return guardFailed(from, in.Event.Type, fmt.Sprintf(
			"a no-show can be recorded from %s, 30 minutes after the booking starts",
			opens.UTC().Format(time.RFC3339)))
	}
	return nil
}
