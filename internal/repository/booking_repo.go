package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"roombooking/internal/domain"
)

type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// TransitionPatch is everything a transition writes to one booking row.
type TransitionPatch struct {
	Snapshot         domain.Snapshot
	Status           domain.BookingStatusLabel
	LastTransitionAt time.Time
	Stamps           map[domain.LegacyField]domain.Stamp
	Clear            []domain.LegacyField
	StartTime        *time.Time
	EndTime          *time.Time
	// Revision is the booking revision the patch was computed from.
	Revision int64
}

func withResources(db *gorm.DB) *gorm.DB {
	return db.Preload("Resources", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	})
}

func (r *BookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	m, err := toBookingModel(b)
	if err != nil {
		return err
	}
	m.ID = 0
	tx := r.db.WithContext(ctx).Create(&m)
	if tx.Error != nil {
		if isUniqueViolation(tx.Error) {
			return ErrDuplicate
		}
		return tx.Error
	}
	out, err := toDomainBooking(m)
	if err != nil {
		return err
	}
	*b = *out
	return nil
}

func (r *BookingRepository) GetByCalendarEventID(ctx context.Context, tenant, calendarEventID string) (*domain.Booking, error) {
	var m bookingModel
	tx := withResources(r.db.WithContext(ctx)).
		Where("tenant = ? AND calendar_event_id = ?", tenant, calendarEventID).
		Take(&m)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, tx.Error
	}
	return toDomainBooking(m)
}

// ApplyTransition writes the snapshot and its derived fields with a single
// UPDATE on the booking row, provided the row is still at p.Revision. It
// returns ErrStale when another transition got there first.
func (r *BookingRepository) ApplyTransition(ctx context.Context, bookingID int64, p TransitionPatch) error {
	value, err := json.Marshal(p.Snapshot.Value)
	if err != nil {
		return err
	}
	snap, err := json.Marshal(p.Snapshot)
	if err != nil {
		return err
	}

	at := p.LastTransitionAt.UTC()
	updates := map[string]any{
		"state_value":        datatypes.JSON(value),
		"state_snapshot":     datatypes.JSON(snap),
		"status":             string(p.Status),
		"last_transition_at": at,
		"updated_at":         at,
		"revision":           gorm.Expr("revision + 1"),
	}
	for _, f := range p.Clear {
		atCol, byCol := columnsFor(f)
		updates[atCol] = nil
		updates[byCol] = ""
	}
	for f, s := range p.Stamps {
		atCol, byCol := columnsFor(f)
		if s.At != nil {
			updates[atCol] = s.At.UTC()
		} else {
			updates[atCol] = nil
		}
		updates[byCol] = s.By
	}
	if p.StartTime != nil {
		updates["start_time"] = p.StartTime.UTC()
	}
	if p.EndTime != nil {
		updates["end_time"] = p.EndTime.UTC()
	}

	tx := r.db.WithContext(ctx).Model(&bookingModel{}).
		Where("id = ? AND revision = ?", bookingID, p.Revision).
		Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected > 0 {
		return nil
	}

	var n int64
	if err := r.db.WithContext(ctx).Model(&bookingModel{}).Where("id = ?", bookingID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrStale
}

func (r *BookingRepository) ListByTenant(ctx context.Context, tenant string) ([]domain.Booking, error) {
	var rows []bookingModel
	tx := withResources(r.db.WithContext(ctx)).
		Where("tenant = ?", tenant).
		Order("start_time").
		Find(&rows)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return toDomainBookings(rows)
}

// ListDeclinedNotCanceled returns bookings whose declined stamp is set and
// canceled stamp is not. Callers must still check the live status.
func (r *BookingRepository) ListDeclinedNotCanceled(ctx context.Context, tenant string) ([]domain.Booking, error) {
	var rows []bookingModel
	tx := withResources(r.db.WithContext(ctx)).
		Where("tenant = ? AND declined_at IS NOT NULL AND canceled_at IS NULL", tenant).
		Order("declined_at").
		Find(&rows)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return toDomainBookings(rows)
}

func (r *BookingRepository) ListCheckedInNotOut(ctx context.Context, tenant string) ([]domain.Booking, error) {
	var rows []bookingModel
	tx := withResources(r.db.WithContext(ctx)).
		Where("tenant = ? AND checked_in_at IS NOT NULL AND checked_out_at IS NULL", tenant).
		Order("end_time").
		Find(&rows)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return toDomainBookings(rows)
}

// ListActiveForResource returns the tenant's bookings on resourceID whose range
// intersects [start, end) and whose status is neither Declined nor Canceled.
func (r *BookingRepository) ListActiveForResource(ctx context.Context, tenant, resourceID string, start, end time.Time) ([]domain.Booking, error) {
	var rows []bookingModel
	tx := withResources(r.db.WithContext(ctx)).
		Select("bookings.*").
		Joins("JOIN booking_resources br ON br.booking_id = bookings.id").
		Where("bookings.tenant = ? AND br.resource_id = ?", tenant, resourceID).
		Where("bookings.status NOT IN ?", []string{string(domain.LabelDeclined), string(domain.LabelCanceled)}).
		Where("bookings.start_time < ? AND bookings.end_time > ?", end.UTC(), start.UTC()).
		Order("bookings.start_time").
		Find(&rows)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return toDomainBookings(rows)
}

func (r *BookingRepository) SetProviderEventID(ctx context.Context, bookingID int64, resourceID, providerEventID string) error {
	return r.db.WithContext(ctx).
		Model(&bookingResourceModel{}).
		Where("booking_id = ? AND resource_id = ?", bookingID, resourceID).
		Update("provider_event_id", providerEventID).Error
}

func toDomainBookings(rows []bookingModel) ([]domain.Booking, error) {
	out := make([]domain.Booking, 0, len(rows))
	for _, m := range rows {
		b, err := toDomainBooking(m)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, nil
}
