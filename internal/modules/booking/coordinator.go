package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"roombooking/internal/domain"
	"roombooking/internal/modules/availability"
	"roombooking/internal/modules/lifecycle"
	"roombooking/internal/pkg/clock"
	"roombooking/internal/pkg/tasks"
	"roombooking/internal/repository"
)

var tracer = otel.Tracer("roombooking/booking")

const maxStaleAttempts = 3

// TransitionCommand is one request to move a booking through its lifecycle.
// Bookings are addressed by CalendarEventID only.
type TransitionCommand struct {
	Tenant          string
	CalendarEventID string
	Event           domain.Event
	// ActorEmail is empty for system-triggered transitions.
	ActorEmail string
}

type TransitionResult struct {
	NewState domain.BookingStatusLabel `json:"newState"`
	Value    domain.StateValue         `json:"stateValue"`
	Success  bool                      `json:"success"`
	NoOp     bool                      `json:"noOp,omitempty"`
	Booking  *domain.Booking           `json:"-"`
}

type Deps struct {
	Store      BookingStore
	Audit      AuditLog
	Counters   Sequencer
	Overlap    OverlapChecker
	Calendar   CalendarSync
	Notifier   Notifier
	Dispatcher Dispatcher
	Policies   PolicySource
	Clock      clock.Clock
}

// Coordinator loads bookings, runs the lifecycle engine, persists the result
// and hands side effects to the dispatcher.
type Coordinator struct {
	store      BookingStore
	audit      AuditLog
	counters   Sequencer
	overlap    OverlapChecker
	calendar   CalendarSync
	notifier   Notifier
	dispatcher Dispatcher
	policies   PolicySource
	clock      clock.Clock
	engine     *lifecycle.Engine
}

func NewCoordinator(d Deps) *Coordinator {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	return &Coordinator{
		store:      d.Store,
		audit:      d.Audit,
		counters:   d.Counters,
		overlap:    d.Overlap,
		calendar:   d.Calendar,
		notifier:   d.Notifier,
		dispatcher: d.Dispatcher,
		policies:   d.Policies,
		clock:      d.Clock,
		engine:     lifecycle.NewEngine(d.Clock),
	}
}

// Engine exposes the lifecycle engine for read-only projections.
func (c *Coordinator) Engine() *lifecycle.Engine { return c.engine }

// Apply runs one transition. Engine rejections come back as
// *lifecycle.TransitionError and leave the stored booking untouched. Applying
// an event to a booking already in the event's target state succeeds without
// writing anything.
func (c *Coordinator) Apply(ctx context.Context, cmd TransitionCommand) (res *TransitionResult, err error) {
	ctx, span := tracer.Start(ctx, "booking.transition", trace.WithAttributes(
		attribute.String("tenant", cmd.Tenant),
		attribute.String("calendar_event_id", cmd.CalendarEventID),
		attribute.String("event", string(cmd.Event.Type)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	policy, ok := c.policies.Policy(cmd.Tenant)
	if !ok {
		return nil, ErrUnknownTenant
	}
	return retryStale(ctx, cmd.CalendarEventID, func() (*TransitionResult, error) {
		return c.transition(ctx, cmd, policy)
	})
}

// retryStale reruns fn while a concurrent transition keeps winning the
// revision check. Each rerun reloads the booking, so guards and replay
// detection see the committed state.
func retryStale(ctx context.Context, calendarEventID string, fn func() (*TransitionResult, error)) (*TransitionResult, error) {
	for attempt := 1; ; attempt++ {
		res, err := fn()
		if !errors.Is(err, repository.ErrStale) {
			return res, err
		}
		if attempt == maxStaleAttempts {
			return nil, fmt.Errorf("%w: booking %s kept changing, gave up after %d attempts", ErrInfrastructure, calendarEventID, attempt)
		}
		slog.Debug("transition_stale_retry", "calendar_event_id", calendarEventID, "attempt", attempt)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInfrastructure, err)
		}
	}
}

func (c *Coordinator) transition(ctx context.Context, cmd TransitionCommand, policy domain.TenantPolicy) (*TransitionResult, error) {
	span := trace.SpanFromContext(ctx)
	b, err := c.load(ctx, cmd.Tenant, cmd.CalendarEventID)
	if err != nil {
		return nil, err
	}

	snap := lifecycle.HydrateSnapshot(b)
	out, err := c.engine.ComputeNext(snap, cmd.Event, cmd.ActorEmail, policy, lifecycle.BookingView{
		RequesterEmail: b.RequesterEmail,
		StartTime:      b.StartTime,
		EndTime:        b.EndTime,
	})
	if err != nil {
		return nil, err
	}

	if out.Effects.NoOp {
		span.SetAttributes(attribute.Bool("noop", true))
		return &TransitionResult{
			NewState: domain.LabelFor(out.Snapshot.Value),
			Value:    out.Snapshot.Value,
			Success:  true,
			NoOp:     true,
			Booking:  b,
		}, nil
	}

	patch := repository.TransitionPatch{
		Snapshot:         out.Snapshot,
		Status:           domain.LabelFor(out.Snapshot.Value),
		LastTransitionAt: c.clock.Now(),
		Stamps:           map[domain.LegacyField]domain.Stamp{},
		Revision:         b.Revision,
	}

	if r := out.Effects.Reschedule; r != nil {
		start, end := b.StartTime, b.EndTime
		if r.StartTime != nil {
			start = r.StartTime.UTC()
		}
		if r.EndTime != nil {
			end = r.EndTime.UTC()
		}
		if err := c.ensureFree(ctx, b.Tenant, b.ResourceIDs(), start, end, b.CalendarEventID); err != nil {
			return nil, err
		}
		patch.StartTime, patch.EndTime = &start, &end
	}

	now := patch.LastTransitionAt
	for _, f := range out.Effects.Stamps {
		patch.Stamps[f] = domain.Stamp{At: &now, By: out.Effects.ChangedBy}
	}
	if out.Effects.ClearTerminal {
		patch.Clear = otherTerminalFields(patch.Stamps)
	}

	if err := c.store.ApplyTransition(ctx, b.ID, patch); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, repository.ErrStale):
			return nil, err
		}
		return nil, fmt.Errorf("%w: persist transition: %v", ErrInfrastructure, err)
	}

	applyPatch(b, patch)

	c.appendAudit(ctx, &domain.AuditLogEntry{
		BookingID:       b.ID,
		CalendarEventID: b.CalendarEventID,
		Status:          out.Effects.AuditStatus,
		ChangedBy:       out.Effects.ChangedBy,
		ChangedAt:       now,
		RequestNumber:   b.RequestNumber,
		Note:            out.Effects.Note,
		Tenant:          b.Tenant,
	})

	c.dispatchCalendar(*b, out.Effects.Calendar, patch.Status)
	c.dispatchNotifications(*b, policy, out.Effects.Notify, out.Effects.Note)

	slog.Info("booking_transition",
		"tenant", b.Tenant,
		"calendar_event_id", b.CalendarEventID,
		"event", cmd.Event.Type,
		"from", snap.Value.String(),
		"to", out.Snapshot.Value.String(),
		"changed_by", out.Effects.ChangedBy,
	)

	return &TransitionResult{
		NewState: patch.Status,
		Value:    out.Snapshot.Value,
		Success:  true,
		Booking:  b,
	}, nil
}

func (c *Coordinator) load(ctx context.Context, tenant, calendarEventID string) (*domain.Booking, error) {
	b, err := c.store.GetByCalendarEventID(ctx, tenant, calendarEventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: load booking: %v", ErrInfrastructure, err)
	}
	if b.Snapshot.Version > domain.SnapshotVersion {
		return nil, fmt.Errorf("%w: booking %s has snapshot version %d, newest supported is %d",
			ErrInfrastructure, calendarEventID, b.Snapshot.Version, domain.SnapshotVersion)
	}
	return b, nil
}

func (c *Coordinator) ensureFree(ctx context.Context, tenant string, resourceIDs []string, start, end time.Time, exclude string) error {
	conflicts, err := c.overlap.Conflicts(ctx, tenant, resourceIDs, start, end, exclude)
	if err != nil {
		return fmt.Errorf("%w: overlap check: %v", ErrInfrastructure, err)
	}
	if len(conflicts) > 0 {
		return &ConflictError{Conflicts: conflicts}
	}
	return nil
}

// appendAudit writes the entry inline. A failed write is retried in the
// background under the same id so the log never gets two rows for it.
func (c *Coordinator) appendAudit(ctx context.Context, e *domain.AuditLogEntry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	err := c.audit.Append(ctx, e)
	if err == nil || errors.Is(err, repository.ErrDuplicate) {
		return
	}
	slog.Error("side_effect_failed", "kind", "audit", "calendar_event_id", e.CalendarEventID, "status", e.Status, "error", err)

	entry := *e
	c.submit(tasks.Task{
		Kind:  "audit",
		Attrs: map[string]string{"calendar_event_id": e.CalendarEventID, "status": string(e.Status)},
		Fn: func(ctx context.Context) error {
			err := c.audit.Append(ctx, &entry)
			if errors.Is(err, repository.ErrDuplicate) {
				return nil
			}
			return err
		},
	})
}

func (c *Coordinator) dispatchCalendar(b domain.Booking, op lifecycle.CalendarOp, status domain.BookingStatusLabel) {
	if op == lifecycle.CalendarNone || c.calendar == nil || len(b.Resources) == 0 {
		return
	}
	c.submit(tasks.Task{
		Kind:  "calendar",
		Attrs: map[string]string{"calendar_event_id": b.CalendarEventID, "op": string(op)},
		Fn: func(ctx context.Context) error {
			// per-resource failures land in the mismatch ledger, not in a retry
			c.calendar.Apply(ctx, b, op, status)
			return nil
		},
	})
}

func (c *Coordinator) dispatchNotifications(b domain.Booking, policy domain.TenantPolicy, tmpl domain.NotificationTemplate, note string) {
	if tmpl == "" || c.notifier == nil {
		return
	}
	ctxData := map[string]any{
		"calendarEventId": b.CalendarEventID,
		"requestNumber":   b.RequestNumber,
		"status":          string(b.Status),
		"startTime":       b.StartTime.Format(time.RFC3339),
		"endTime":         b.EndTime.Format(time.RFC3339),
		"resources":       b.ResourceIDs(),
	}
	if note != "" {
		ctxData["reason"] = note
	}

	var recipients []string
	if policy.NotifyRequester && b.RequesterEmail != "" {
		recipients = append(recipients, b.RequesterEmail)
	}
	if policy.StaffNotification != "" && staffTemplate(tmpl) {
		recipients = append(recipients, policy.StaffNotification)
	}
	for _, to := range recipients {
		n := domain.Notification{To: to, Template: tmpl, Context: ctxData}
		c.submit(tasks.Task{
			Kind:  "notify",
			Attrs: map[string]string{"calendar_event_id": b.CalendarEventID, "template": string(tmpl), "to": to},
			Fn: func(ctx context.Context) error {
				return c.notifier.Send(ctx, n)
			},
		})
	}
}

func (c *Coordinator) submit(t tasks.Task) {
	if c.dispatcher == nil {
		return
	}
	if err := c.dispatcher.Submit(t); err != nil {
		slog.Error("side_effect_failed", "kind", t.Kind, "reason", "not_queued", "error", err, "attrs", t.Attrs)
	}
}

// staffTemplate lists the messages that need someone to act.
func staffTemplate(t domain.NotificationTemplate) bool {
	switch t {
	case domain.NotifBookingRequested, domain.NotifBookingPending, domain.NotifServicesPending, domain.NotifBookingModified:
		return true
	}
	return false
}

func otherTerminalFields(stamped map[domain.LegacyField]domain.Stamp) []domain.LegacyField {
	var out []domain.LegacyField
	for _, f := range domain.TerminalFields {
		if _, ok := stamped[f]; !ok {
			out = append(out, f)
		}
	}
	return out
}

// applyPatch mirrors a persisted patch onto the in-memory booking.
func applyPatch(b *domain.Booking, p repository.TransitionPatch) {
	b.Snapshot = p.Snapshot
	b.Status = p.Status
	b.Revision = p.Revision + 1
	at := p.LastTransitionAt
	b.LastTransitionAt = &at
	for _, f := range p.Clear {
		*b.Legacy.Field(f) = domain.Stamp{}
	}
	for f, s := range p.Stamps {
		*b.Legacy.Field(f) = s
	}
	if p.StartTime != nil {
		b.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		b.EndTime = *p.EndTime
	}
}

// ConflictError carries the bookings that block a requested range.
type ConflictError struct {
	Conflicts []availability.Conflict
}

func (e *ConflictError) Error() string {
	ids := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		ids = append(ids, c.ResourceID+"@"+strconv.FormatInt(c.RequestNumber, 10))
	}
	return fmt.Sprintf("%s: %v", ErrBookingConflict, ids)
}

func (e *ConflictError) Unwrap() error { return ErrBookingConflict }
