package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"roombooking/internal/domain"
	"roombooking/internal/modules/lifecycle"
	"roombooking/internal/pkg/calendar"
	"roombooking/internal/pkg/clock"
	"roombooking/internal/repository"
)

const (
	OpInsert  = "insert"
	OpUpdate  = "update"
	OpRelease = "release"
)

type MismatchRecorder interface {
	Record(ctx context.Context, m *repository.CalendarMismatch) error
}

// ResourceStore reads the committed booking and stores provider event ids.
// Calendar tasks run after the transition that queued them may have been
// superseded, so they act on what is stored, not on what was queued.
type ResourceStore interface {
	GetByCalendarEventID(ctx context.Context, tenant, calendarEventID string) (*domain.Booking, error)
	SetProviderEventID(ctx context.Context, bookingID int64, resourceID, providerEventID string) error
}

// GroupResult lists the resource events that were and were not mutated.
type GroupResult struct {
	Applied []string
	Failed  map[string]error
}

func (r GroupResult) OK() bool { return len(r.Failed) == 0 }

// Syncer mutates every resource event of a booking. A failure on one
// resource does not stop the others; it is written to the mismatch ledger.
type Syncer struct {
	cal        calendar.Service
	mismatches MismatchRecorder
	store      ResourceStore
	clock      clock.Clock
}

func NewSyncer(cal calendar.Service, mismatches MismatchRecorder, store ResourceStore, c clock.Clock) *Syncer {
	if c == nil {
		c = clock.Real()
	}
	return &Syncer{cal: cal, mismatches: mismatches, store: store, clock: c}
}

// Insert creates one provider event per resource and stores its id. A
// booking that was declined or canceled before the insert finished gets its
// fresh events released again.
func (s *Syncer) Insert(ctx context.Context, b domain.Booking) GroupResult {
	res := GroupResult{Failed: map[string]error{}}
	b = s.current(ctx, b)
	if released(b.Status) {
		return res
	}
	inserted := 0
	for _, r := range b.Resources {
		if r.ProviderEventID != "" {
			res.Applied = append(res.Applied, r.ResourceID)
			continue
		}
		id, err := s.cal.InsertEvent(ctx, r.ResourceID, eventTitle(b, b.Status), b.StartTime, b.EndTime)
		if err == nil {
			inserted++
			err = s.store.SetProviderEventID(ctx, b.ID, r.ResourceID, id)
		}
		s.collect(ctx, &res, b, r.ResourceID, OpInsert, err)
	}
	if inserted == 0 {
		return res
	}
	if now := s.current(ctx, b); released(now.Status) {
		slog.Info("calendar_insert_superseded", "tenant", b.Tenant, "calendar_event_id", b.CalendarEventID, "status", now.Status)
		s.Apply(ctx, now, lifecycle.CalendarRelease, now.Status)
	}
	return res
}

// Apply performs op on every resource event of b. status is the label the
// booking moved to.
func (s *Syncer) Apply(ctx context.Context, b domain.Booking, op lifecycle.CalendarOp, status domain.BookingStatusLabel) GroupResult {
	res := GroupResult{Failed: map[string]error{}}
	b.Resources = s.current(ctx, b).Resources
	for _, r := range b.Resources {
		var (
			err  error
			name string
		)
		switch op {
		case lifecycle.CalendarRelease:
			name = OpRelease
			if r.ProviderEventID == "" {
				res.Applied = append(res.Applied, r.ResourceID)
				continue
			}
			err = s.cal.DeleteEvent(ctx, r.ResourceID, r.ProviderEventID)
			if errors.Is(err, calendar.ErrEventNotFound) {
				err = nil
			}
		case lifecycle.CalendarUpdate:
			name = OpUpdate
			if r.ProviderEventID == "" {
				err = errors.New("resource event has no provider id")
				break
			}
			title := eventTitle(b, status)
			start, end := b.StartTime, b.EndTime
			err = s.cal.UpdateEvent(ctx, r.ResourceID, r.ProviderEventID, calendar.EventFields{
				Title:  &title,
				Start:  &start,
				End:    &end,
				Status: string(status),
			})
		default:
			return res
		}
		s.collect(ctx, &res, b, r.ResourceID, name, err)
	}
	return res
}

// current reloads b, falling back to the queued copy when the store is
// unavailable.
func (s *Syncer) current(ctx context.Context, b domain.Booking) domain.Booking {
	fresh, err := s.store.GetByCalendarEventID(ctx, b.Tenant, b.CalendarEventID)
	if err != nil {
		slog.Warn("calendar_reload_failed", "tenant", b.Tenant, "calendar_event_id", b.CalendarEventID, "error", err)
		return b
	}
	return *fresh
}

func released(l domain.BookingStatusLabel) bool {
	return l == domain.LabelDeclined || l == domain.LabelCanceled
}

func (s *Syncer) collect(ctx context.Context, res *GroupResult, b domain.Booking, resourceID, op string, err error) {
	if err == nil {
		res.Applied = append(res.Applied, resourceID)
		return
	}
	res.Failed[resourceID] = err
	slog.Error("side_effect_failed",
		"kind", "calendar",
		"op", op,
		"tenant", b.Tenant,
		"calendar_event_id", b.CalendarEventID,
		"resource_id", resourceID,
		"error", err,
	)
	if s.mismatches == nil {
		return
	}
	recErr := s.mismatches.Record(ctx, &repository.CalendarMismatch{
		Tenant:          b.Tenant,
		BookingID:       b.ID,
		CalendarEventID: b.CalendarEventID,
		ResourceID:      resourceID,
		Op:              op,
		Error:           err.Error(),
		CreatedAt:       s.clock.Now(),
	})
	if recErr != nil {
		slog.Error("calendar_mismatch_record_failed", "calendar_event_id", b.CalendarEventID, "resource_id", resourceID, "error", recErr)
	}
}

func eventTitle(b domain.Booking, status domain.BookingStatusLabel) string {
	title := b.Title
	if title == "" {
		title = fmt.Sprintf("Request #%d", b.RequestNumber)
	}
	return fmt.Sprintf("[%s] %s", status, title)
}
