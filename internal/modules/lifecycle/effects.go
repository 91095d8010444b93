package lifecycle

import "roombooking/internal/domain"

// CalendarOp is what the coordinator must do to the booking's calendar events.
type CalendarOp string

const (
	CalendarNone    CalendarOp = ""
	CalendarUpdate  CalendarOp = "update"
	CalendarRelease CalendarOp = "release"
)

// Effects is the side-effect directive returned with a computed snapshot.
// The coordinator executes it verbatim; in particular ChangedBy is the only
// attribution it writes.
type Effects struct {
	NoOp bool

	ChangedBy   string
	AuditStatus domain.BookingStatusLabel
	Note        string

	Stamps        []domain.LegacyField
	ClearTerminal bool

	Calendar   CalendarOp
	Reschedule *domain.EditChanges

	Notify domain.NotificationTemplate
}
