// Package lifecycle computes booking state transitions.
//
// The engine is pure with respect to its inputs: it reads the wall clock
// through the injected clock.Clock at evaluation time and never touches
// storage. Persisting the result and executing the returned Effects is the
// coordinator's job.
package lifecycle

import (
	"strings"
	"time"

	"roombooking/internal/domain"
	"roombooking/internal/pkg/clock"
)

// BookingView is the part of a booking the guards read.
type BookingView struct {
	RequesterEmail string
	StartTime      time.Time
	EndTime        time.Time
}

// Input is one transition request as seen by the engine.
type Input struct {
	Snapshot domain.Snapshot
	Event    domain.Event
	// ActorEmail is empty for the system actor.
	ActorEmail string
	Policy     domain.TenantPolicy
	Booking    BookingView
	Now        time.Time
}

func (in *Input) isSystem() bool {
	return in.ActorEmail == "" || in.ActorEmail == domain.SystemActor
}

func (in *Input) isRequester() bool {
	return !in.isSystem() && strings.EqualFold(in.ActorEmail, in.Booking.RequesterEmail)
}

// Result is the next snapshot plus the directive for side effects.
type Result struct {
	Snapshot domain.Snapshot
	Effects  Effects
}

type Engine struct {
	clock clock.Clock
}

func NewEngine(c clock.Clock) *Engine {
	if c == nil {
		c = clock.Real()
	}
	return &Engine{clock: c}
}

// ComputeNext evaluates ev against snap. On error the returned snapshot is
// the zero value and snap is untouched.
func (e *Engine) ComputeNext(snap domain.Snapshot, ev domain.Event, actorEmail string, policy domain.TenantPolicy, view BookingView) (Result, error) {
	in := &Input{
		Snapshot:   snap,
		Event:      ev,
		ActorEmail: strings.TrimSpace(actorEmail),
		Policy:     policy,
		Booking:    view,
		Now:        e.clock.Now(),
	}
	return compute(in)
}

func compute(in *Input) (Result, error) {
	cur := in.Snapshot.Value
	if cur.IsEmpty() {
		return Result{}, invalid(cur, in.Event.Type, "booking has no lifecycle state")
	}
	from := cur.Effective()

	r, ok := ruleFor(from, in.Event.Type)
	if !ok {
		if isReplay(from, in.Event.Type) {
			return Result{
				Snapshot: in.Snapshot.Clone(),
				Effects: Effects{
					NoOp:        true,
					AuditStatus: domain.LabelFor(cur),
				},
			}, nil
		}
		return Result{}, invalid(cur, in.Event.Type, "")
	}

	for _, g := range r.guards {
		if err := g(in, cur); err != nil {
			return Result{}, err
		}
	}

	to := r.to
	if r.resolve != nil {
		to = r.resolve(in)
	}
	nextValue := servicesOverlay(in, cur, to)

	next := in.Snapshot.Clone()
	next.Version = domain.SnapshotVersion
	next.History = cur
	next.Value = nextValue
	next.Context.LastEvent = in.Event.Type
	next.Context.LastActor = domain.ActorOrSystem(in.ActorEmail)

	eff := Effects{
		ChangedBy:   domain.ActorOrSystem(in.ActorEmail),
		AuditStatus: domain.LabelFor(nextValue),
		Calendar:    r.calendar,
		Stamps:      stampsFor(from, cur, nextValue),
		Notify:      templateFor(in.Event.Type, nextValue),
	}
	if r.attrib == attributeSystem {
		eff.ChangedBy = domain.SystemActor
		next.Context.LastActor = domain.SystemActor
	}

	switch in.Event.Type {
	case domain.EventDecline:
		next.Context.DeclineReason = strings.TrimSpace(in.Event.Reason)
		eff.Note = next.Context.DeclineReason
	case domain.EventCancel, domain.EventAutoCloseScript:
		next.Context.CancelReason = strings.TrimSpace(in.Event.Reason)
		eff.Note = next.Context.CancelReason
	case domain.EventEdit:
		next.Context.EditCount++
		eff.Reschedule = in.Event.Changes
		if from == domain.StateApproved {
			// Approved -> Modified -> Approved: the intermediate state is what
			// gets logged, re-approval is implicit.
			eff.AuditStatus = domain.LabelModified
			eff.Notify = domain.NotifBookingModified
		}
		eff.Note = strings.TrimSpace(in.Event.Reason)
	default:
		eff.Note = strings.TrimSpace(in.Event.Reason)
	}

	if _, ok := nextValue.Services(); ok {
		if prev, wasServices := cur.Services(); wasServices && prev == domain.ServicesPending {
			t := in.Now
			next.Context.ServicesDecidedAt = &t
		}
	}

	if nextValue.Effective().Terminal() {
		eff.ClearTerminal = true
	}

	return Result{Snapshot: next, Effects: eff}, nil
}

func isReplay(from domain.State, ev domain.EventType) bool {
	for _, s := range targetsOf(ev) {
		if s == from {
			return true
		}
	}
	return false
}

// servicesOverlay routes approvals and declines through the services
// sub-machine for tenants that enable it and bookings that requested services.
func servicesOverlay(in *Input, cur domain.StateValue, to domain.State) domain.StateValue {
	if !in.Policy.ServicesRequest || !in.Snapshot.Context.ServicesRequested {
		return domain.Simple(to)
	}
	sub, inServices := cur.Services()
	switch to {
	case domain.StateApproved:
		if !inServices {
			return domain.InServices(domain.ServicesPending)
		}
		if sub == domain.ServicesPending {
			return domain.InServices(domain.ServicesApproved)
		}
		return cur
	case domain.StateDeclined:
		if inServices && sub == domain.ServicesPending {
			return domain.InServices(domain.ServicesDeclined)
		}
	}
	return domain.Simple(to)
}

func stampsFor(from domain.State, cur, next domain.StateValue) []domain.LegacyField {
	if sub, ok := cur.Services(); ok && sub == domain.ServicesPending {
		if _, stillServices := next.Services(); stillServices && next.Effective() == domain.StateApproved {
			return nil
		}
	}

	switch next.Effective() {
	case domain.StatePending:
		if _, ok := next.Services(); ok {
			if from == domain.StateRequested {
				return []domain.LegacyField{domain.FieldFirstApproved, domain.FieldFinalApproved}
			}
			return []domain.LegacyField{domain.FieldFinalApproved}
		}
		return []domain.LegacyField{domain.FieldFirstApproved}
	case domain.StateApproved:
		switch from {
		case domain.StateRequested:
			return []domain.LegacyField{domain.FieldFirstApproved, domain.FieldFinalApproved}
		case domain.StatePending, domain.StateModified:
			return []domain.LegacyField{domain.FieldFinalApproved}
		}
		return nil
	case domain.StateDeclined:
		return []domain.LegacyField{domain.FieldDeclined}
	case domain.StateCanceled:
		return []domain.LegacyField{domain.FieldCanceled}
	case domain.StateCheckedIn:
		return []domain.LegacyField{domain.FieldCheckedIn}
	case domain.StateCheckedOut:
		return []domain.LegacyField{domain.FieldCheckedOut}
	case domain.StateNoShow:
		return []domain.LegacyField{domain.FieldNoShow}
	case domain.StateClosed:
		return []domain.LegacyField{domain.FieldClosed}
	}
	return nil
}

func templateFor(ev domain.EventType, next domain.StateValue) domain.NotificationTemplate {
	if sub, ok := next.Services(); ok && sub == domain.ServicesPending {
		return domain.NotifServicesPending
	}
	switch next.Effective() {
	case domain.StatePending:
		return domain.NotifBookingPending
	case domain.StateApproved:
		return domain.NotifBookingApproved
	case domain.StateRequested:
		if ev == domain.EventEdit {
			return domain.NotifBookingModified
		}
		return domain.NotifBookingRequested
	case domain.StateDeclined:
		return domain.NotifBookingDeclined
	case domain.StateCanceled:
		return domain.NotifBookingCanceled
	case domain.StateCheckedIn:
		return domain.NotifBookingCheckedIn
	case domain.StateCheckedOut:
		return domain.NotifBookingCheckedOut
	case domain.StateNoShow:
		return domain.NotifBookingNoShow
	}
	return ""
}
