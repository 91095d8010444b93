package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// CalendarMismatch is a resource event whose calendar mutation failed after
// the booking itself transitioned.
type CalendarMismatch struct {
	ID              int64     `json:"id"`
	Tenant          string    `json:"tenant"`
	BookingID       int64     `json:"bookingId"`
	CalendarEventID string    `json:"calendarEventId"`
	ResourceID      string    `json:"resourceId"`
	Op              string    `json:"op"`
	Error           string    `json:"error"`
	CreatedAt       time.Time `json:"createdAt"`
}

type MismatchRepository struct {
	db *gorm.DB
}

func NewMismatchRepository(db *gorm.DB) *MismatchRepository {
	return &MismatchRepository{db: db}
}

func (r *MismatchRepository) Record(ctx context.Context, m *CalendarMismatch) error {
	row := calendarMismatchModel{
		Tenant:          m.Tenant,
		BookingID:       m.BookingID,
		CalendarEventID: m.CalendarEventID,
		ResourceID:      m.ResourceID,
		Op:              m.Op,
		Error:           m.Error,
		CreatedAt:       m.CreatedAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	m.ID = row.ID
	return nil
}

func (r *MismatchRepository) List(ctx context.Context, tenant string, limit int) ([]CalendarMismatch, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []calendarMismatchModel
	q := r.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if tenant != "" {
		q = q.Where("tenant = ?", tenant)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]CalendarMismatch, 0, len(rows))
	for _, m := range rows {
		out = append(out, CalendarMismatch{
			ID:              m.ID,
			Tenant:          m.Tenant,
			BookingID:       m.BookingID,
			CalendarEventID: m.CalendarEventID,
			ResourceID:      m.ResourceID,
			Op:              m.Op,
			Error:           m.Error,
			CreatedAt:       m.CreatedAt,
		})
	}
	return out, nil
}
