package domain

import "time"

// AuditLogEntry is one immutable status change record.
type AuditLogEntry struct {
	ID              string             `json:"id"`
	Seq             int64              `json:"-"`
	BookingID       int64              `json:"bookingId"`
	CalendarEventID string             `json:"calendarEventId"`
	Status          BookingStatusLabel `json:"status"`
	ChangedBy       string             `json:"changedBy"`
	ChangedAt       time.Time          `json:"changedAt"`
	RequestNumber   int64              `json:"requestNumber"`
	Note            string             `json:"note,omitempty"`
	Tenant          string             `json:"tenant"`
}
