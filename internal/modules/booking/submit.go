package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"roombooking/internal/domain"
	"roombooking/internal/pkg/tasks"
	"roombooking/internal/repository"
)

const maxRequestNumberAttempts = 3

type SubmitRequest struct {
	Tenant            string
	RequesterEmail    string
	Role              domain.Role
	ResourceIDs       []string
	StartTime         time.Time
	EndTime           time.Time
	Title             string
	ServicesRequested bool
}

// RequestNumberCounter names the per-tenant counter behind request numbers.
func RequestNumberCounter(tenant string) string {
	return "request-number:" + tenant
}

// Submit creates a Requested booking with one calendar event per resource.
func (c *Coordinator) Submit(ctx context.Context, req SubmitRequest) (*domain.Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.submit")
	defer span.End()

	policy, ok := c.policies.Policy(req.Tenant)
	if !ok {
		return nil, ErrUnknownTenant
	}

	now := c.clock.Now()
	start, end := req.StartTime.UTC(), req.EndTime.UTC()
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end time must be after start time", ErrValidation)
	}
	if start.Before(now) {
		return nil, fmt.Errorf("%w: start time is in the past", ErrValidation)
	}
	if limit, ok := policy.MaxDuration(req.Role); ok && end.Sub(start) > limit {
		return nil, fmt.Errorf("%w: %s bookings are limited to %s", ErrValidation, req.Role, limit)
	}

	resources, err := resolveResources(policy, req.ResourceIDs)
	if err != nil {
		return nil, err
	}
	if err := c.ensureFree(ctx, req.Tenant, resources, start, end, ""); err != nil {
		return nil, err
	}

	requester := strings.ToLower(strings.TrimSpace(req.RequesterEmail))
	b := &domain.Booking{
		CalendarEventID: uuid.NewString(),
		Tenant:          req.Tenant,
		RequesterEmail:  requester,
		Title:           strings.TrimSpace(req.Title),
		StartTime:       start,
		EndTime:         end,
		Snapshot:        domain.NewSnapshot(domain.Simple(domain.StateRequested), req.ServicesRequested && policy.ServicesRequest),
		Status:          domain.LabelRequested,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	b.Legacy.Requested = domain.Stamp{At: &now, By: requester}
	b.LastTransitionAt = &now
	for _, id := range resources {
		b.Resources = append(b.Resources, domain.ResourceEvent{ResourceID: id})
	}

	if err := c.createWithNumber(ctx, b); err != nil {
		return nil, err
	}

	c.appendAudit(ctx, &domain.AuditLogEntry{
		BookingID:       b.ID,
		CalendarEventID: b.CalendarEventID,
		Status:          domain.LabelRequested,
		ChangedBy:       requester,
		ChangedAt:       now,
		RequestNumber:   b.RequestNumber,
		Tenant:          b.Tenant,
	})

	if c.calendar != nil {
		created := *b
		c.submit(tasks.Task{
			Kind:  "calendar",
			Attrs: map[string]string{"calendar_event_id": b.CalendarEventID, "op": "insert"},
			Fn: func(ctx context.Context) error {
				c.calendar.Insert(ctx, created)
				return nil
			},
		})
	}
	c.dispatchNotifications(*b, policy, domain.NotifBookingRequested, "")

	slog.Info("booking_submitted", "tenant", b.Tenant, "calendar_event_id", b.CalendarEventID, "request_number", b.RequestNumber)
	return b, nil
}

// createWithNumber assigns a request number and inserts the booking. A
// number collision (counter reset, manual import) draws a fresh number.
func (c *Coordinator) createWithNumber(ctx context.Context, b *domain.Booking) error {
	for attempt := 1; ; attempt++ {
		n, err := c.counters.NextSequentialID(ctx, RequestNumberCounter(b.Tenant))
		if err != nil {
			return fmt.Errorf("%w: next request number: %v", ErrInfrastructure, err)
		}
		b.RequestNumber = n

		err = c.store.Create(ctx, b)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicate) || attempt == maxRequestNumberAttempts {
			return fmt.Errorf("%w: create booking: %v", ErrInfrastructure, err)
		}
		slog.Warn("request_number_collision", "tenant", b.Tenant, "request_number", n, "attempt", attempt)
	}
}

func resolveResources(policy domain.TenantPolicy, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one resource is required", ErrValidation)
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" || seen[id] {
			continue
		}
		if _, ok := policy.Resource(id); !ok {
			return nil, fmt.Errorf("%w: unknown resource %q", ErrValidation, id)
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: at least one resource is required", ErrValidation)
	}
	return out, nil
}
