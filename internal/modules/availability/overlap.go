// Package availability answers resource conflict questions and keeps the
// per-resource calendar events of a booking in step with its state.
package availability

import (
	"context"
	"time"

	"roombooking/internal/domain"
)

// BookingFinder lists a tenant's non-terminal bookings on a resource
// intersecting a range. Resource ids are only unique within a tenant.
type BookingFinder interface {
	ListActiveForResource(ctx context.Context, tenant, resourceID string, start, end time.Time) ([]domain.Booking, error)
}

// Conflict is an existing booking that blocks a requested range.
type Conflict struct {
	ResourceID      string    `json:"resourceId"`
	CalendarEventID string    `json:"calendarEventId"`
	RequestNumber   int64     `json:"requestNumber"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
}

type Checker struct {
	bookings BookingFinder
}

func NewChecker(bookings BookingFinder) *Checker {
	return &Checker{bookings: bookings}
}

// HasOverlap reports whether [start, end) on resourceID intersects a booking
// that is neither Declined nor Canceled, ignoring excludeCalendarEventID.
// Ranges that only touch at an endpoint do not overlap.
func (c *Checker) HasOverlap(ctx context.Context, tenant, resourceID string, start, end time.Time, excludeCalendarEventID string) (bool, error) {
	conflicts, err := c.conflictsOn(ctx, tenant, resourceID, start, end, excludeCalendarEventID)
	if err != nil {
		return false, err
	}
	return len(conflicts) > 0, nil
}

// Conflicts checks every resource and returns all blocking bookings.
func (c *Checker) Conflicts(ctx context.Context, tenant string, resourceIDs []string, start, end time.Time, excludeCalendarEventID string) ([]Conflict, error) {
	var out []Conflict
	for _, id := range resourceIDs {
		found, err := c.conflictsOn(ctx, tenant, id, start, end, excludeCalendarEventID)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

func (c *Checker) conflictsOn(ctx context.Context, tenant, resourceID string, start, end time.Time, exclude string) ([]Conflict, error) {
	rows, err := c.bookings.ListActiveForResource(ctx, tenant, resourceID, start, end)
	if err != nil {
		return nil, err
	}
	var out []Conflict
	for _, b := range rows {
		if exclude != "" && b.CalendarEventID == exclude {
			continue
		}
		if b.Status == domain.LabelDeclined || b.Status == domain.LabelCanceled {
			continue
		}
		if !Overlaps(b.StartTime, b.EndTime, start, end) {
			continue
		}
		out = append(out, Conflict{
			ResourceID:      resourceID,
			CalendarEventID: b.CalendarEventID,
			RequestNumber:   b.RequestNumber,
			StartTime:       b.StartTime,
			EndTime:         b.EndTime,
		})
	}
	return out, nil
}

// Overlaps is the half-open interval test.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
