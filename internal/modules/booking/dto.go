package booking

import (
	"time"

	"roombooking/internal/domain"
)

type TransitionRequest struct {
	CalendarEventID string                    `json:"calendarEventId" binding:"required"`
	EventType       string                    `json:"eventType" binding:"required"`
	ActorEmail      string                    `json:"actorEmail"`
	Reason          string                    `json:"reason"`
	Changes         *domain.EditChanges       `json:"changes"`
	Fallback        bool                      `json:"fallback"`
	Status          domain.BookingStatusLabel `json:"status"`
}

type CreateBookingRequest struct {
	RequesterEmail    string      `json:"requesterEmail" binding:"required,email"`
	Role              domain.Role `json:"role"`
	ResourceIDs       []string    `json:"resourceIds" binding:"required,min=1"`
	StartTime         time.Time   `json:"startTime" binding:"required"`
	EndTime           time.Time   `json:"endTime" binding:"required"`
	Title             string      `json:"title"`
	ServicesRequested bool        `json:"servicesRequested"`
}
