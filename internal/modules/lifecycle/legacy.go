package lifecycle

import (
	"roombooking/internal/domain"
)

// legacyOrder maps stamps to the state they imply, strongest last. When two
// stamps carry the same time the later entry wins.
var legacyOrder = []struct {
	field domain.LegacyField
	state domain.State
}{
	{domain.FieldRequested, domain.StateRequested},
	{domain.FieldFirstApproved, domain.StatePending},
	{domain.FieldFinalApproved, domain.StateApproved},
	{domain.FieldCheckedIn, domain.StateCheckedIn},
	{domain.FieldNoShow, domain.StateNoShow},
	{domain.FieldCheckedOut, domain.StateCheckedOut},
	{domain.FieldDeclined, domain.StateDeclined},
	{domain.FieldCanceled, domain.StateCanceled},
	{domain.FieldClosed, domain.StateClosed},
}

// FromLegacy derives a state value for bookings written before snapshots
// existed. The most recent stamp decides; a booking with no stamps at all is
// Requested.
func FromLegacy(l domain.LegacyStamps) domain.StateValue {
	best := domain.StateRequested
	var bestStamp *domain.Stamp
	for _, o := range legacyOrder {
		s := l.Field(o.field)
		if s == nil || !s.IsSet() {
			continue
		}
		if bestStamp == nil || !s.At.Before(*bestStamp.At) {
			best = o.state
			bestStamp = s
		}
	}
	return domain.Simple(best)
}

// LegacyFieldFor returns the stamp that records entry into s.
func LegacyFieldFor(s domain.State) (domain.LegacyField, bool) {
	switch s {
	case domain.StateRequested:
		return domain.FieldRequested, true
	case domain.StatePending:
		return domain.FieldFirstApproved, true
	case domain.StateApproved:
		return domain.FieldFinalApproved, true
	case domain.StateDeclined:
		return domain.FieldDeclined, true
	case domain.StateCanceled:
		return domain.FieldCanceled, true
	case domain.StateCheckedIn:
		return domain.FieldCheckedIn, true
	case domain.StateCheckedOut:
		return domain.FieldCheckedOut, true
	case domain.StateNoShow:
		return domain.FieldNoShow, true
	case domain.StateClosed:
		return domain.FieldClosed, true
	}
	return "", false
}

// HydrateSnapshot returns b's snapshot, deriving one from legacy fields when
// the booking predates the state machine.
func HydrateSnapshot(b *domain.Booking) domain.Snapshot {
	if b.HasSnapshot() {
		return b.Snapshot
	}
	snap := domain.NewSnapshot(FromLegacy(b.Legacy), b.Snapshot.Context.ServicesRequested)
	snap.Context = b.Snapshot.Context
	return snap
}
