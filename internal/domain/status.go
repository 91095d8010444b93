package domain

// BookingStatusLabel is the human-facing status derived from a snapshot.
type BookingStatusLabel string

const (
	LabelRequested  BookingStatusLabel = "Requested"
	LabelPending    BookingStatusLabel = "Pending"
	LabelApproved   BookingStatusLabel = "Approved"
	LabelModified   BookingStatusLabel = "Modified"
	LabelDeclined   BookingStatusLabel = "Declined"
	LabelCanceled   BookingStatusLabel = "Canceled"
	LabelCheckedIn  BookingStatusLabel = "Checked In"
	LabelCheckedOut BookingStatusLabel = "Checked Out"
	LabelNoShow     BookingStatusLabel = "No Show"
	LabelClosed     BookingStatusLabel = "Closed"
	LabelUnknown    BookingStatusLabel = "Unknown"
)

var stateLabels = map[State]BookingStatusLabel{
	StateRequested:  LabelRequested,
	StatePending:    LabelPending,
	StateApproved:   LabelApproved,
	StateModified:   LabelModified,
	StateDeclined:   LabelDeclined,
	StateCanceled:   LabelCanceled,
	StateCheckedIn:  LabelCheckedIn,
	StateCheckedOut: LabelCheckedOut,
	StateNoShow:     LabelNoShow,
	StateClosed:     LabelClosed,
}

// LabelFor projects a state value onto exactly one status label.
func LabelFor(v StateValue) BookingStatusLabel {
	switch v.Kind() {
	case ValueSimple:
		s, _ := v.State()
		if l, ok := stateLabels[s]; ok {
			return l
		}
	case ValueServices:
		ss, _ := v.Services()
		switch ss {
		case ServicesPending:
			return LabelPending
		case ServicesApproved:
			return LabelApproved
		case ServicesDeclined:
			return LabelDeclined
		}
	}
	return LabelUnknown
}

// LabelOfState is LabelFor for a simple state.
func LabelOfState(s State) BookingStatusLabel {
	return LabelFor(Simple(s))
}

// StateForLabel is the inverse of LabelOfState.
func StateForLabel(l BookingStatusLabel) (State, bool) {
	for s, v := range stateLabels {
		if v == l {
			return s, true
		}
	}
	return "", false
}

// Terminal reports whether the label belongs to a terminal state.
func (l BookingStatusLabel) Terminal() bool {
	return l == LabelDeclined || l == LabelCanceled || l == LabelClosed
}
