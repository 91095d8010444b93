package booking

import (
	"context"
	"time"

	"roombooking/internal/domain"
	"roombooking/internal/modules/availability"
	"roombooking/internal/modules/lifecycle"
	"roombooking/internal/pkg/tasks"
	"roombooking/internal/repository"
)

// BookingStore is the Record Store as the coordinator uses it.
type BookingStore interface {
	Create(ctx context.Context, b *domain.Booking) error
	GetByCalendarEventID(ctx context.Context, tenant, calendarEventID string) (*domain.Booking, error)
	ApplyTransition(ctx context.Context, bookingID int64, p repository.TransitionPatch) error
}

type AuditLog interface {
	Append(ctx context.Context, e *domain.AuditLogEntry) error
}

type Sequencer interface {
	NextSequentialID(ctx context.Context, name string) (int64, error)
}

type OverlapChecker interface {
	Conflicts(ctx context.Context, tenant string, resourceIDs []string, start, end time.Time, excludeCalendarEventID string) ([]availability.Conflict, error)
}

type CalendarSync interface {
	Insert(ctx context.Context, b domain.Booking) availability.GroupResult
	Apply(ctx context.Context, b domain.Booking, op lifecycle.CalendarOp, status domain.BookingStatusLabel) availability.GroupResult
}

type Notifier interface {
	Send(ctx context.Context, n domain.Notification) error
}

// Dispatcher runs side effects in the background.
type Dispatcher interface {
	Submit(t tasks.Task) error
}

type PolicySource interface {
	Policy(tenant string) (domain.TenantPolicy, bool)
}
