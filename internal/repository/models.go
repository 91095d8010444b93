package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"roombooking/internal/domain"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	// ErrStale means the row changed since the caller loaded it.
	ErrStale = errors.New("record changed since it was read")
)

type bookingModel struct {
	ID               int64          `gorm:"column:id;primaryKey"`
	CalendarEventID  string         `gorm:"column:calendar_event_id;uniqueIndex;size:64"`
	RequestNumber    int64          `gorm:"column:request_number;uniqueIndex:idx_tenant_request_number"`
	Tenant           string         `gorm:"column:tenant;index;uniqueIndex:idx_tenant_request_number;size:64"`
	RequesterEmail   string         `gorm:"column:requester_email"`
	Title            string         `gorm:"column:title"`
	StartTime        time.Time      `gorm:"column:start_time;index"`
	EndTime          time.Time      `gorm:"column:end_time"`
	StateValue       datatypes.JSON `gorm:"column:state_value"`
	StateSnapshot    datatypes.JSON `gorm:"column:state_snapshot"`
	Status           string         `gorm:"column:status;index;size:32"`
	LastTransitionAt *time.Time     `gorm:"column:last_transition_at"`
	Revision         int64          `gorm:"column:revision;not null;default:0"`

	RequestedAt     *time.Time `gorm:"column:requested_at"`
	RequestedBy     string     `gorm:"column:requested_by"`
	FirstApprovedAt *time.Time `gorm:"column:first_approved_at"`
	FirstApprovedBy string     `gorm:"column:first_approved_by"`
	FinalApprovedAt *time.Time `gorm:"column:final_approved_at"`
	FinalApprovedBy string     `gorm:"column:final_approved_by"`
	DeclinedAt      *time.Time `gorm:"column:declined_at"`
	DeclinedBy      string     `gorm:"column:declined_by"`
	CanceledAt      *time.Time `gorm:"column:canceled_at"`
	CanceledBy      string     `gorm:"column:canceled_by"`
	CheckedInAt     *time.Time `gorm:"column:checked_in_at"`
	CheckedInBy     string     `gorm:"column:checked_in_by"`
	CheckedOutAt    *time.Time `gorm:"column:checked_out_at"`
	CheckedOutBy    string     `gorm:"column:checked_out_by"`
	NoShowAt        *time.Time `gorm:"column:no_show_at"`
	NoShowBy        string     `gorm:"column:no_show_by"`
	ClosedAt        *time.Time `gorm:"column:closed_at"`
	ClosedBy        string     `gorm:"column:closed_by"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`

	Resources []bookingResourceModel `gorm:"foreignKey:BookingID"`
}

func (bookingModel) TableName() string { return "bookings" }

type bookingResourceModel struct {
	ID              int64  `gorm:"column:id;primaryKey"`
	BookingID       int64  `gorm:"column:booking_id;index"`
	ResourceID      string `gorm:"column:resource_id;index;size:64"`
	Position        int    `gorm:"column:position"`
	ProviderEventID string `gorm:"column:provider_event_id"`
}

func (bookingResourceModel) TableName() string { return "booking_resources" }

type auditLogModel struct {
	Seq             int64     `gorm:"column:seq;primaryKey;autoIncrement"`
	ID              string    `gorm:"column:id;uniqueIndex;size:36"`
	BookingID       int64     `gorm:"column:booking_id"`
	CalendarEventID string    `gorm:"column:calendar_event_id;index;size:64"`
	Status          string    `gorm:"column:status;size:32"`
	ChangedBy       string    `gorm:"column:changed_by"`
	ChangedAt       time.Time `gorm:"column:changed_at"`
	RequestNumber   int64     `gorm:"column:request_number;index:idx_log_tenant_request"`
	Note            string    `gorm:"column:note;type:text"`
	Tenant          string    `gorm:"column:tenant;index:idx_log_tenant_request;size:64"`
}

func (auditLogModel) TableName() string { return "booking_logs" }

type counterModel struct {
	Name  string `gorm:"column:name;primaryKey;size:128"`
	Value int64  `gorm:"column:value"`
}

func (counterModel) TableName() string { return "counters" }

type calendarMismatchModel struct {
	ID              int64     `gorm:"column:id;primaryKey"`
	Tenant          string    `gorm:"column:tenant;index;size:64"`
	BookingID       int64     `gorm:"column:booking_id"`
	CalendarEventID string    `gorm:"column:calendar_event_id;size:64"`
	ResourceID      string    `gorm:"column:resource_id;size:64"`
	Op              string    `gorm:"column:op;size:16"`
	Error           string    `gorm:"column:error;type:text"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

func (calendarMismatchModel) TableName() string { return "calendar_mismatches" }

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{
		&bookingModel{},
		&bookingResourceModel{},
		&auditLogModel{},
		&counterModel{},
		&calendarMismatchModel{},
	}
}

func (m *bookingModel) stamp(f domain.LegacyField) (**time.Time, *string) {
	switch f {
	case domain.FieldRequested:
		return &m.RequestedAt, &m.RequestedBy
	case domain.FieldFirstApproved:
		return &m.FirstApprovedAt, &m.FirstApprovedBy
	case domain.FieldFinalApproved:
		return &m.FinalApprovedAt, &m.FinalApprovedBy
	case domain.FieldDeclined:
		return &m.DeclinedAt, &m.DeclinedBy
	case domain.FieldCanceled:
		return &m.CanceledAt, &m.CanceledBy
	case domain.FieldCheckedIn:
		return &m.CheckedInAt, &m.CheckedInBy
	case domain.FieldCheckedOut:
		return &m.CheckedOutAt, &m.CheckedOutBy
	case domain.FieldNoShow:
		return &m.NoShowAt, &m.NoShowBy
	case domain.FieldClosed:
		return &m.ClosedAt, &m.ClosedBy
	}
	return nil, nil
}

var legacyFields = []domain.LegacyField{
	domain.FieldRequested, domain.FieldFirstApproved, domain.FieldFinalApproved,
	domain.FieldDeclined, domain.FieldCanceled, domain.FieldCheckedIn,
	domain.FieldCheckedOut, domain.FieldNoShow, domain.FieldClosed,
}

func columnsFor(f domain.LegacyField) (at, by string) {
	return string(f) + "_at", string(f) + "_by"
}

func toDomainBooking(m bookingModel) (*domain.Booking, error) {
	b := &domain.Booking{
		ID:               m.ID,
		CalendarEventID:  m.CalendarEventID,
		RequestNumber:    m.RequestNumber,
		Tenant:           m.Tenant,
		RequesterEmail:   m.RequesterEmail,
		Title:            m.Title,
		StartTime:        m.StartTime.UTC(),
		EndTime:          m.EndTime.UTC(),
		Status:           domain.BookingStatusLabel(m.Status),
		LastTransitionAt: m.LastTransitionAt,
		Revision:         m.Revision,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}

	if len(m.StateSnapshot) > 0 {
		if err := json.Unmarshal(m.StateSnapshot, &b.Snapshot); err != nil {
			return nil, fmt.Errorf("decode snapshot of booking %d: %w", m.ID, err)
		}
	}
	if b.Snapshot.Value.IsEmpty() && len(m.StateValue) > 0 {
		if err := json.Unmarshal(m.StateValue, &b.Snapshot.Value); err != nil {
			return nil, fmt.Errorf("decode state value of booking %d: %w", m.ID, err)
		}
	}

	for _, f := range legacyFields {
		at, by := m.stamp(f)
		s := b.Legacy.Field(f)
		s.At = *at
		s.By = *by
	}

	b.Resources = make([]domain.ResourceEvent, 0, len(m.Resources))
	for _, r := range m.Resources {
		b.Resources = append(b.Resources, domain.ResourceEvent{
			ResourceID:      r.ResourceID,
			Position:        r.Position,
			ProviderEventID: r.ProviderEventID,
		})
	}
	return b, nil
}

func toBookingModel(b *domain.Booking) (bookingModel, error) {
	value, err := json.Marshal(b.Snapshot.Value)
	if err != nil {
		return bookingModel{}, err
	}
	snap, err := json.Marshal(b.Snapshot)
	if err != nil {
		return bookingModel{}, err
	}

	m := bookingModel{
		ID:               b.ID,
		CalendarEventID:  b.CalendarEventID,
		RequestNumber:    b.RequestNumber,
		Tenant:           b.Tenant,
		RequesterEmail:   b.RequesterEmail,
		Title:            b.Title,
		StartTime:        b.StartTime.UTC(),
		EndTime:          b.EndTime.UTC(),
		StateValue:       datatypes.JSON(value),
		StateSnapshot:    datatypes.JSON(snap),
		Status:           string(b.Status),
		LastTransitionAt: b.LastTransitionAt,
		Revision:         b.Revision,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
	for _, f := range legacyFields {
		at, by := m.stamp(f)
		s := b.Legacy.Field(f)
		*at = s.At
		*by = s.By
	}
	for i, r := range b.Resources {
		m.Resources = append(m.Resources, bookingResourceModel{
			ResourceID:      r.ResourceID,
			Position:        i,
			ProviderEventID: r.ProviderEventID,
		})
	}
	return m, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
