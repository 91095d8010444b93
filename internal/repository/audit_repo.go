package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"roombooking/internal/domain"
)

// AuditRepository is the append-only booking status log.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Append(ctx context.Context, e *domain.AuditLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	m := auditLogModel{
		ID:              e.ID,
		BookingID:       e.BookingID,
		CalendarEventID: e.CalendarEventID,
		Status:          string(e.Status),
		ChangedBy:       e.ChangedBy,
		ChangedAt:       e.ChangedAt.UTC(),
		RequestNumber:   e.RequestNumber,
		Note:            e.Note,
		Tenant:          e.Tenant,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	e.Seq = m.Seq
	return nil
}

// ListByRequestNumber returns entries in storage order; callers sort.
func (r *AuditRepository) ListByRequestNumber(ctx context.Context, tenant string, requestNumber int64) ([]domain.AuditLogEntry, error) {
	var rows []auditLogModel
	tx := r.db.WithContext(ctx).
		Where("tenant = ? AND request_number = ?", tenant, requestNumber).
		Find(&rows)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return toAuditEntries(rows), nil
}

func (r *AuditRepository) ListByCalendarEventID(ctx context.Context, calendarEventID string) ([]domain.AuditLogEntry, error) {
	var rows []auditLogModel
	tx := r.db.WithContext(ctx).
		Where("calendar_event_id = ?", calendarEventID).
		Find(&rows)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return toAuditEntries(rows), nil
}

func toAuditEntries(rows []auditLogModel) []domain.AuditLogEntry {
	out := make([]domain.AuditLogEntry, 0, len(rows))
	for _, m := range rows {
		out = append(out, domain.AuditLogEntry{
			ID:              m.ID,
			Seq:             m.Seq,
			BookingID:       m.BookingID,
			CalendarEventID: m.CalendarEventID,
			Status:          domain.BookingStatusLabel(m.Status),
			ChangedBy:       m.ChangedBy,
			ChangedAt:       m.ChangedAt.UTC(),
			RequestNumber:   m.RequestNumber,
			Note:            m.Note,
			Tenant:          m.Tenant,
		})
	}
	return out
}
