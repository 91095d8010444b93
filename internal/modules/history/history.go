// Package history rebuilds a booking's status timeline.
//
// A booking's timeline comes from exactly one source: the audit log when it
// holds any entry for the booking's request number, otherwise the legacy
// per-status timestamp fields. The two are never combined.
package history

import (
	"context"
	"errors"
	"sort"
	"time"

	"roombooking/internal/domain"
	"roombooking/internal/repository"
)

var ErrNotFound = errors.New("booking not found")

type Source string

const (
	SourceAuditLog     Source = "audit_log"
	SourceLegacyFields Source = "legacy_fields"
)

type Entry struct {
	Status    domain.BookingStatusLabel `json:"status"`
	ChangedBy string                    `json:"changedBy"`
	ChangedAt *time.Time                `json:"changedAt"`
	Note      string                    `json:"note,omitempty"`
	// MissingTimestamp marks entries that had no time and were sorted last.
	MissingTimestamp bool   `json:"missingTimestamp,omitempty"`
	Source           Source `json:"source"`

	seq int64
}

type BookingGetter interface {
	GetByCalendarEventID(ctx context.Context, tenant, calendarEventID string) (*domain.Booking, error)
}

type AuditLister interface {
	ListByRequestNumber(ctx context.Context, tenant string, requestNumber int64) ([]domain.AuditLogEntry, error)
}

type Service struct {
	bookings BookingGetter
	audit    AuditLister
}

func NewService(bookings BookingGetter, audit AuditLister) *Service {
	return &Service{bookings: bookings, audit: audit}
}

func (s *Service) ForCalendarEvent(ctx context.Context, tenant, calendarEventID string) ([]Entry, error) {
	b, err := s.bookings.GetByCalendarEventID(ctx, tenant, calendarEventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	logs, err := s.audit.ListByRequestNumber(ctx, b.Tenant, b.RequestNumber)
	if err != nil {
		return nil, err
	}
	return Reconstruct(*b, logs), nil
}

// Reconstruct orders a booking's status changes by time. Entries without a
// timestamp keep their relative order and go last.
func Reconstruct(b domain.Booking, logs []domain.AuditLogEntry) []Entry {
	var out []Entry
	if len(logs) > 0 {
		out = fromAuditLog(logs)
	} else {
		out = fromLegacy(b)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, c := out[i], out[j]
		if a.MissingTimestamp != c.MissingTimestamp {
			return !a.MissingTimestamp
		}
		if !a.MissingTimestamp && !a.ChangedAt.Equal(*c.ChangedAt) {
			return a.ChangedAt.Before(*c.ChangedAt)
		}
		return a.seq < c.seq
	})
	return dedupe(out)
}

func fromAuditLog(logs []domain.AuditLogEntry) []Entry {
	out := make([]Entry, 0, len(logs))
	for _, l := range logs {
		e := Entry{
			Status:    l.Status,
			ChangedBy: l.ChangedBy,
			Note:      l.Note,
			Source:    SourceAuditLog,
			seq:       l.Seq,
		}
		if l.ChangedAt.IsZero() {
			e.MissingTimestamp = true
		} else {
			t := l.ChangedAt
			e.ChangedAt = &t
		}
		out = append(out, e)
	}
	return out
}

var legacyTimeline = []struct {
	field  domain.LegacyField
	status domain.BookingStatusLabel
}{
	{domain.FieldRequested, domain.LabelRequested},
	{domain.FieldFirstApproved, domain.LabelPending},
	{domain.FieldFinalApproved, domain.LabelApproved},
	{domain.FieldCheckedIn, domain.LabelCheckedIn},
	{domain.FieldNoShow, domain.LabelNoShow},
	{domain.FieldCheckedOut, domain.LabelCheckedOut},
	{domain.FieldDeclined, domain.LabelDeclined},
	{domain.FieldCanceled, domain.LabelCanceled},
	{domain.FieldClosed, domain.LabelClosed},
}

func fromLegacy(b domain.Booking) []Entry {
	var out []Entry
	for i, lt := range legacyTimeline {
		s := b.Legacy.Field(lt.field)
		if s == nil || (!s.IsSet() && s.By == "") {
			continue
		}
		e := Entry{
			Status:    lt.status,
			ChangedBy: legacyActor(b, lt.field, s.By),
			Source:    SourceLegacyFields,
			seq:       int64(i),
		}
		if s.IsSet() {
			t := s.At.UTC()
			e.ChangedAt = &t
		} else {
			e.MissingTimestamp = true
		}
		out = append(out, e)
	}
	return out
}

// legacyActor fills in attribution the old fields did not record. Approvals
// without an approver were automatic.
func legacyActor(b domain.Booking, f domain.LegacyField, by string) string {
	if by != "" {
		return by
	}
	if f == domain.FieldRequested && b.RequesterEmail != "" {
		return b.RequesterEmail
	}
	return domain.SystemActor
}

func dedupe(in []Entry) []Entry {
	out := in[:0]
	for i, e := range in {
		if i > 0 && sameEntry(out[len(out)-1], e) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func sameEntry(a, b Entry) bool {
	if a.Status != b.Status || a.ChangedBy != b.ChangedBy || a.MissingTimestamp != b.MissingTimestamp {
		return false
	}
	if a.ChangedAt == nil || b.ChangedAt == nil {
		return a.ChangedAt == nil && b.ChangedAt == nil
	}
	return a.ChangedAt.Equal(*b.ChangedAt)
}
