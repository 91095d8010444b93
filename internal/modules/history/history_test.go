package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"roombooking/internal/domain"
	"roombooking/internal/repository"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

func legacyBooking() domain.Booking {
	b := domain.Booking{
		CalendarEventID: "evt-1",
		RequestNumber:   12,
		Tenant:          "mc",
		RequesterEmail:  "alice@example.edu",
	}
	b.Legacy.Requested = domain.Stamp{At: ptr(t0)}
	b.Legacy.FirstApproved = domain.Stamp{At: ptr(t0.Add(time.Hour))}
	b.Legacy.FinalApproved = domain.Stamp{At: ptr(t0.Add(2 * time.Hour)), By: "dean@example.edu"}
	b.Legacy.CheckedIn = domain.Stamp{By: "desk@example.edu"}
	return b
}

func TestReconstruct_LegacyFallback(t *testing.T) {
	got := Reconstruct(legacyBooking(), nil)

	require.Len(t, got, 4)
	assert.Equal(t, domain.LabelRequested, got[0].Status)
	assert.Equal(t, "alice@example.edu", got[0].ChangedBy)
	assert.Equal(t, domain.LabelPending, got[1].Status)
	assert.Equal(t, domain.SystemActor, got[1].ChangedBy, "approval without approver was automatic")
	assert.Equal(t, domain.LabelApproved, got[2].Status)
	assert.Equal(t, "dean@example.edu", got[2].ChangedBy)

	assert.Equal(t, domain.LabelCheckedIn, got[3].Status)
	assert.True(t, got[3].MissingTimestamp)
	assert.Nil(t, got[3].ChangedAt)
	for _, e := range got {
		assert.Equal(t, SourceLegacyFields, e.Source)
	}
}

func TestReconstruct_AuditLogWinsAndNeverMixes(t *testing.T) {
	logs := []domain.AuditLogEntry{
		{Seq: 2, Status: domain.LabelApproved, ChangedBy: "dean@example.edu", ChangedAt: t0.Add(3 * time.Hour)},
		{Seq: 1, Status: domain.LabelRequested, ChangedBy: "alice@example.edu", ChangedAt: t0},
	}

	got := Reconstruct(legacyBooking(), logs)

	require.Len(t, got, 2)
	assert.Equal(t, domain.LabelRequested, got[0].Status)
	assert.Equal(t, domain.LabelApproved, got[1].Status)
	for _, e := range got {
		assert.Equal(t, SourceAuditLog, e.Source)
	}
}

func TestReconstruct_OrderingAndDedupe(t *testing.T) {
	logs := []domain.AuditLogEntry{
		{Seq: 1, Status: domain.LabelRequested, ChangedBy: "alice@example.edu", ChangedAt: t0},
		{Seq: 2, Status: domain.LabelApproved, ChangedBy: "dean@example.edu"},
		{Seq: 3, Status: domain.LabelCanceled, ChangedBy: domain.SystemActor, ChangedAt: t0.Add(time.Hour)},
		{Seq: 4, Status: domain.LabelCanceled, ChangedBy: domain.SystemActor, ChangedAt: t0.Add(time.Hour)},
		{Seq: 5, Status: domain.LabelDeclined, ChangedBy: "dean@example.edu", ChangedAt: t0.Add(30 * time.Minute)},
		{Seq: 6, Status: domain.LabelClosed, ChangedBy: domain.SystemActor, ChangedAt: t0.Add(time.Hour)},
	}

	got := Reconstruct(domain.Booking{}, logs)

	var statuses []domain.BookingStatusLabel
	for _, e := range got {
		statuses = append(statuses, e.Status)
	}
	assert.Equal(t, []domain.BookingStatusLabel{
		domain.LabelRequested,
		domain.LabelDeclined,
		domain.LabelCanceled,
		domain.LabelClosed,
		domain.LabelApproved,
	}, statuses)
	assert.True(t, got[len(got)-1].MissingTimestamp)
}

func TestReconstruct_EmptyBooking(t *testing.T) {
	assert.Empty(t, Reconstruct(domain.Booking{}, nil))
}

type mockBookings struct{ mock.Mock }

func (m *mockBookings) GetByCalendarEventID(ctx context.Context, tenant, id string) (*domain.Booking, error) {
	args := m.Called(ctx, tenant, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

type mockAudit struct{ mock.Mock }

func (m *mockAudit) ListByRequestNumber(ctx context.Context, tenant string, n int64) ([]domain.AuditLogEntry, error) {
	args := m.Called(ctx, tenant, n)
	return args.Get(0).([]domain.AuditLogEntry), args.Error(1)
}

func TestService_ForCalendarEvent(t *testing.T) {
	bookings := new(mockBookings)
	audit := new(mockAudit)
	b := legacyBooking()
	bookings.On("GetByCalendarEventID", mock.Anything, "mc", "evt-1").Return(&b, nil)
	bookings.On("GetByCalendarEventID", mock.Anything, "mc", "missing").Return(nil, repository.ErrNotFound)
	audit.On("ListByRequestNumber", mock.Anything, "mc", int64(12)).Return([]domain.AuditLogEntry{}, nil)

	svc := NewService(bookings, audit)

	got, err := svc.ForCalendarEvent(context.Background(), "mc", "evt-1")
	require.NoError(t, err)
	assert.Len(t, got, 4)

	_, err = svc.ForCalendarEvent(context.Background(), "mc", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	audit.AssertExpectations(t)
}
