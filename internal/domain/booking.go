package domain

import "time"

// SystemActor is the attribution used for automatic transitions.
const SystemActor = "System"

// ActorOrSystem resolves an empty actor email to the system actor.
func ActorOrSystem(email string) string {
	if email == "" {
		return SystemActor
	}
	return email
}

// Stamp is one legacy timestamp field with its attribution.
type Stamp struct {
	At *time.Time `json:"at,omitempty"`
	By string     `json:"by,omitempty"`
}

func (s Stamp) IsSet() bool { return s.At != nil && !s.At.IsZero() }

// LegacyField names one of the per-status timestamp fields.
type LegacyField string

const (
	FieldRequested     LegacyField = "requested"
	FieldFirstApproved LegacyField = "first_approved"
	FieldFinalApproved LegacyField = "final_approved"
	FieldDeclined      LegacyField = "declined"
	FieldCanceled      LegacyField = "canceled"
	FieldCheckedIn     LegacyField = "checked_in"
	FieldCheckedOut    LegacyField = "checked_out"
	FieldNoShow        LegacyField = "no_show"
	FieldClosed        LegacyField = "closed"
)

// TerminalFields are the stamps of which at most one may be set.
var TerminalFields = []LegacyField{FieldDeclined, FieldCanceled, FieldClosed}

// LegacyStamps holds the backward compatible timestamp fields.
type LegacyStamps struct {
	Requested     Stamp `json:"requested"`
	FirstApproved Stamp `json:"firstApproved"`
	FinalApproved Stamp `json:"finalApproved"`
	Declined      Stamp `json:"declined"`
	Canceled      Stamp `json:"canceled"`
	CheckedIn     Stamp `json:"checkedIn"`
	CheckedOut    Stamp `json:"checkedOut"`
	NoShow        Stamp `json:"noShow"`
	Closed        Stamp `json:"closed"`
}

// Field returns a pointer to the named stamp, or nil for an unknown name.
func (l *LegacyStamps) Field(f LegacyField) *Stamp {
	switch f {
	case FieldRequested:
		return &l.Requested
	case FieldFirstApproved:
		return &l.FirstApproved
	case FieldFinalApproved:
		return &l.FinalApproved
	case FieldDeclined:
		return &l.Declined
	case FieldCanceled:
		return &l.Canceled
	case FieldCheckedIn:
		return &l.CheckedIn
	case FieldCheckedOut:
		return &l.CheckedOut
	case FieldNoShow:
		return &l.NoShow
	case FieldClosed:
		return &l.Closed
	}
	return nil
}

// ResourceEvent is the per-resource calendar event of a booking. All events
// of one booking share the booking's CalendarEventID.
type ResourceEvent struct {
	ResourceID      string `json:"resourceId"`
	Position        int    `json:"position"`
	ProviderEventID string `json:"providerEventId,omitempty"`
}

type Booking struct {
	ID              int64  `json:"id"`
	CalendarEventID string `json:"calendarEventId"`
	RequestNumber   int64  `json:"requestNumber"`
	Tenant          string `json:"tenant"`
	RequesterEmail  string `json:"requesterEmail"`
	Title           string `json:"title,omitempty"`

	StartTime time.Time       `json:"startTime"`
	EndTime   time.Time       `json:"endTime"`
	Resources []ResourceEvent `json:"resources"`

	Snapshot         Snapshot           `json:"snapshot"`
	Status           BookingStatusLabel `json:"status"`
	LastTransitionAt *time.Time         `json:"lastTransitionAt,omitempty"`
	// Revision counts persisted transitions; writes are conditional on it.
	Revision int64 `json:"revision"`

	Legacy LegacyStamps `json:"legacy"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ResourceIDs returns the booking's resources in order.
func (b *Booking) ResourceIDs() []string {
	out := make([]string, 0, len(b.Resources))
	for _, r := range b.Resources {
		out = append(out, r.ResourceID)
	}
	return out
}

// HasSnapshot reports whether the booking was written by the state machine.
func (b *Booking) HasSnapshot() bool {
	return !b.Snapshot.Value.IsEmpty()
}
