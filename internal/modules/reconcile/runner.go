// Package reconcile holds the scheduled jobs that move stale bookings along:
// declined bookings are canceled once the decline grace passes, and checked
// in bookings are checked out after their end time.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"roombooking/internal/domain"
	"roombooking/internal/modules/booking"
	"roombooking/internal/modules/lifecycle"
	"roombooking/internal/pkg/clock"
)

const (
	JobAutoCancelDeclined = "auto-cancel-declined"
	JobAutoCheckout       = "auto-checkout"

	AutoCancelReason   = "Automatically canceled: declined more than 24 hours ago"
	AutoCheckoutReason = "Automatically checked out after the booking ended"

	DefaultDeclineGrace  = 24 * time.Hour
	DefaultCheckoutGrace = 15 * time.Minute

	maxParallelPartitions = 4
)

var (
	ErrUnknownJob    = errors.New("unknown reconcile job")
	ErrUnknownTenant = errors.New("unknown tenant")
)

type Store interface {
	ListDeclinedNotCanceled(ctx context.Context, tenant string) ([]domain.Booking, error)
	ListCheckedInNotOut(ctx context.Context, tenant string) ([]domain.Booking, error)
}

type Transitioner interface {
	Apply(ctx context.Context, cmd booking.TransitionCommand) (*booking.TransitionResult, error)
}

type Tenants interface {
	Names() []string
	Policy(tenant string) (domain.TenantPolicy, bool)
}

type Options struct {
	DryRun bool
	// Tenant limits the run to one partition when set.
	Tenant string
}

// Candidate is one eligible booking and what the job did or would do to it.
type Candidate struct {
	Tenant          string                    `json:"tenant"`
	CalendarEventID string                    `json:"calendarEventId"`
	RequestNumber   int64                     `json:"requestNumber"`
	From            domain.BookingStatusLabel `json:"from"`
	To              domain.BookingStatusLabel `json:"to,omitempty"`
	Event           domain.EventType          `json:"event"`
	Error           string                    `json:"error,omitempty"`
}

type PartitionError struct {
	Tenant string `json:"tenant"`
	Error  string `json:"error"`
}

type Summary struct {
	Job             string           `json:"job"`
	DryRun          bool             `json:"dryRun"`
	Processed       int              `json:"processed"`
	Succeeded       int              `json:"succeeded"`
	Skipped         int              `json:"skipped"`
	FailedIDs       []string         `json:"failedIds"`
	Candidates      []Candidate      `json:"candidates"`
	PartitionErrors []PartitionError `json:"partitionErrors,omitempty"`
}

func (s *Summary) merge(o *Summary) {
	s.Processed += o.Processed
	s.Succeeded += o.Succeeded
	s.Skipped += o.Skipped
	s.FailedIDs = append(s.FailedIDs, o.FailedIDs...)
	s.Candidates = append(s.Candidates, o.Candidates...)
	s.PartitionErrors = append(s.PartitionErrors, o.PartitionErrors...)
}

type Config struct {
	DeclineGrace  time.Duration
	CheckoutGrace time.Duration
}

type Runner struct {
	store   Store
	apply   Transitioner
	engine  *lifecycle.Engine
	tenants Tenants
	clock   clock.Clock
	cfg     Config
}

func NewRunner(store Store, apply Transitioner, tenants Tenants, c clock.Clock, cfg Config) *Runner {
	if c == nil {
		c = clock.Real()
	}
	if cfg.DeclineGrace <= 0 {
		cfg.DeclineGrace = DefaultDeclineGrace
	}
	if cfg.CheckoutGrace <= 0 {
		cfg.CheckoutGrace = DefaultCheckoutGrace
	}
	return &Runner{
		store:   store,
		apply:   apply,
		engine:  lifecycle.NewEngine(c),
		tenants: tenants,
		clock:   c,
		cfg:     cfg,
	}
}

// job describes one reconciliation: what to scan, who qualifies and which
// event to apply.
type job struct {
	name     string
	scan     func(ctx context.Context, tenant string) ([]domain.Booking, error)
	eligible func(b *domain.Booking, current domain.BookingStatusLabel, policy domain.TenantPolicy, now time.Time) bool
	event    domain.Event
}

func (r *Runner) AutoCancelDeclined(ctx context.Context, opts Options) (*Summary, error) {
	return r.Run(ctx, JobAutoCancelDeclined, opts)
}

func (r *Runner) AutoCheckout(ctx context.Context, opts Options) (*Summary, error) {
	return r.Run(ctx, JobAutoCheckout, opts)
}

// Run executes a job over every tenant partition. Per-record failures only
// show up in the summary; an error is returned when no partition could be
// scanned at all.
func (r *Runner) Run(ctx context.Context, name string, opts Options) (*Summary, error) {
	j, err := r.job(name)
	if err != nil {
		return nil, err
	}

	tenants := r.tenants.Names()
	if opts.Tenant != "" {
		if _, ok := r.tenants.Policy(opts.Tenant); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, opts.Tenant)
		}
		tenants = []string{opts.Tenant}
	}

	parts := make([]*Summary, len(tenants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelPartitions)
	for i, tenant := range tenants {
		g.Go(func() error {
			parts[i] = r.partition(gctx, j, tenant, opts.DryRun)
			return nil
		})
	}
	_ = g.Wait()

	sum := &Summary{Job: name, DryRun: opts.DryRun, FailedIDs: []string{}, Candidates: []Candidate{}}
	for _, p := range parts {
		sum.merge(p)
	}

	slog.Info("reconcile_done",
		"job", name,
		"dry_run", opts.DryRun,
		"processed", sum.Processed,
		"succeeded", sum.Succeeded,
		"skipped", sum.Skipped,
		"failed", len(sum.FailedIDs),
		"partition_errors", len(sum.PartitionErrors),
	)

	if len(tenants) > 0 && len(sum.PartitionErrors) == len(tenants) {
		return sum, fmt.Errorf("%s: every partition failed: %s", name, sum.PartitionErrors[0].Error)
	}
	return sum, nil
}

func (r *Runner) partition(ctx context.Context, j job, tenant string, dryRun bool) *Summary {
	sum := &Summary{}
	policy, ok := r.tenants.Policy(tenant)
	if !ok {
		sum.PartitionErrors = append(sum.PartitionErrors, PartitionError{Tenant: tenant, Error: ErrUnknownTenant.Error()})
		return sum
	}

	rows, err := j.scan(ctx, tenant)
	if err != nil {
		slog.Error("reconcile_partition_failed", "job", j.name, "tenant", tenant, "error", err)
		sum.PartitionErrors = append(sum.PartitionErrors, PartitionError{Tenant: tenant, Error: err.Error()})
		return sum
	}

	for i := range rows {
		b := &rows[i]
		snap := lifecycle.HydrateSnapshot(b)
		current := domain.LabelFor(snap.Value)
		now := r.clock.Now()
		if !j.eligible(b, current, policy, now) {
			sum.Skipped++
			continue
		}

		c := Candidate{
			Tenant:          tenant,
			CalendarEventID: b.CalendarEventID,
			RequestNumber:   b.RequestNumber,
			From:            current,
			Event:           j.event.Type,
		}

		if dryRun {
			out, err := r.engine.ComputeNext(snap, j.event, "", policy, lifecycle.BookingView{
				RequesterEmail: b.RequesterEmail,
				StartTime:      b.StartTime,
				EndTime:        b.EndTime,
			})
			sum.Processed++
			if err != nil {
				c.Error = err.Error()
				sum.FailedIDs = append(sum.FailedIDs, b.CalendarEventID)
			} else {
				c.To = domain.LabelFor(out.Snapshot.Value)
				sum.Succeeded++
			}
			sum.Candidates = append(sum.Candidates, c)
			continue
		}

		res, err := r.apply.Apply(ctx, booking.TransitionCommand{
			Tenant:          tenant,
			CalendarEventID: b.CalendarEventID,
			Event:           j.event,
		})
		switch {
		case errors.Is(err, booking.ErrNotFound):
			slog.Warn("reconcile_skip", "job", j.name, "tenant", tenant, "calendar_event_id", b.CalendarEventID, "reason", "not_found")
			sum.Skipped++
			continue
		case err != nil:
			slog.Error("reconcile_record_failed", "job", j.name, "tenant", tenant, "calendar_event_id", b.CalendarEventID, "error", err)
			c.Error = err.Error()
			sum.Processed++
			sum.FailedIDs = append(sum.FailedIDs, b.CalendarEventID)
		case res.NoOp:
			sum.Skipped++
			continue
		default:
			c.To = res.NewState
			sum.Processed++
			sum.Succeeded++
		}
		sum.Candidates = append(sum.Candidates, c)
	}
	return sum
}

func (r *Runner) job(name string) (job, error) {
	switch name {
	case JobAutoCancelDeclined:
		return job{
			name:     name,
			scan:     r.store.ListDeclinedNotCanceled,
			eligible: r.declinedLongEnough,
			event:    domain.Event{Type: domain.EventCancel, Reason: AutoCancelReason},
		}, nil
	case JobAutoCheckout:
		return job{
			name:     name,
			scan:     r.store.ListCheckedInNotOut,
			eligible: r.endedLongEnough,
			event:    domain.Event{Type: domain.EventCheckOut, Reason: AutoCheckoutReason},
		}, nil
	}
	return job{}, fmt.Errorf("%w: %q", ErrUnknownJob, name)
}

// declinedLongEnough trusts the live status over the declined stamp: a
// booking that was declined and later re-approved keeps its stamp.
func (r *Runner) declinedLongEnough(b *domain.Booking, current domain.BookingStatusLabel, policy domain.TenantPolicy, now time.Time) bool {
	if !b.Legacy.Declined.IsSet() || b.Legacy.Canceled.IsSet() {
		return false
	}
	if current != domain.LabelDeclined {
		return false
	}
	grace := policy.DeclineGrace
	if grace <= 0 {
		grace = r.cfg.DeclineGrace
	}
	return now.Sub(*b.Legacy.Declined.At) > grace
}

func (r *Runner) endedLongEnough(b *domain.Booking, current domain.BookingStatusLabel, policy domain.TenantPolicy, now time.Time) bool {
	if !b.Legacy.CheckedIn.IsSet() || b.Legacy.CheckedOut.IsSet() {
		return false
	}
	if current != domain.LabelCheckedIn {
		return false
	}
	grace := policy.CheckoutGrace
	if grace <= 0 {
		grace = r.cfg.CheckoutGrace
	}
	return now.After(b.EndTime.Add(grace))
}

// Jobs lists the job names Run accepts.
func Jobs() []string {
	return []string{JobAutoCancelDeclined, JobAutoCheckout}
}
