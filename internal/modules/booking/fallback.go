package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"roombooking/internal/domain"
	"roombooking/internal/modules/lifecycle"
	"roombooking/internal/repository"
)

const fallbackNote = "direct status update"

// ApplyLegacyStatus sets status by writing its legacy stamp and the matching
// snapshot value without consulting the transition table. It exists for
// callers whose event was rejected and who still need the old field-update
// behaviour. Calling it again once the booking already shows status is a
// no-op.
func (c *Coordinator) ApplyLegacyStatus(ctx context.Context, tenant, calendarEventID string, status domain.BookingStatusLabel, actorEmail string) (*TransitionResult, error) {
	ctx, span := tracer.Start(ctx, "booking.legacy_status")
	defer span.End()

	target, ok := domain.StateForLabel(status)
	if !ok {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	field, ok := lifecycle.LegacyFieldFor(target)
	if !ok {
		return nil, fmt.Errorf("%w: status %q has no legacy field", ErrValidation, status)
	}
	if _, ok := c.policies.Policy(tenant); !ok {
		return nil, ErrUnknownTenant
	}
	return retryStale(ctx, calendarEventID, func() (*TransitionResult, error) {
		return c.legacyStatus(ctx, tenant, calendarEventID, target, field, status, actorEmail)
	})
}

func (c *Coordinator) legacyStatus(ctx context.Context, tenant, calendarEventID string, target domain.State, field domain.LegacyField, status domain.BookingStatusLabel, actorEmail string) (*TransitionResult, error) {
	b, err := c.load(ctx, tenant, calendarEventID)
	if err != nil {
		return nil, err
	}

	snap := lifecycle.HydrateSnapshot(b)
	if snap.Value.Effective() == target && b.Legacy.Field(field).IsSet() {
		return &TransitionResult{
			NewState: domain.LabelFor(snap.Value),
			Value:    snap.Value,
			Success:  true,
			NoOp:     true,
			Booking:  b,
		}, nil
	}

	actor := domain.ActorOrSystem(actorEmail)
	now := c.clock.Now()

	next := snap.Clone()
	next.Version = domain.SnapshotVersion
	next.History = snap.Value
	next.Value = domain.Simple(target)
	next.Context.LastActor = actor

	patch := repository.TransitionPatch{
		Snapshot:         next,
		Status:           status,
		LastTransitionAt: now,
		Stamps:           map[domain.LegacyField]domain.Stamp{field: {At: &now, By: actor}},
		Revision:         b.Revision,
	}
	if target.Terminal() {
		patch.Clear = otherTerminalFields(patch.Stamps)
	}

	if err := c.store.ApplyTransition(ctx, b.ID, patch); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, repository.ErrStale):
			return nil, err
		}
		return nil, fmt.Errorf("%w: persist status: %v", ErrInfrastructure, err)
	}
	applyPatch(b, patch)

	c.appendAudit(ctx, &domain.AuditLogEntry{
		BookingID:       b.ID,
		CalendarEventID: b.CalendarEventID,
		Status:          status,
		ChangedBy:       actor,
		ChangedAt:       now,
		RequestNumber:   b.RequestNumber,
		Note:            fallbackNote,
		Tenant:          b.Tenant,
	})

	op := lifecycle.CalendarUpdate
	if target == domain.StateDeclined || target == domain.StateCanceled {
		op = lifecycle.CalendarRelease
	}
	c.dispatchCalendar(*b, op, status)

	slog.Warn("booking_legacy_status", "tenant", tenant, "calendar_event_id", calendarEventID, "status", status, "changed_by", actor)
	return &TransitionResult{
		NewState: status,
		Value:    next.Value,
		Success:  true,
		Booking:  b,
	}, nil
}
