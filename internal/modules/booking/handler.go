package booking

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"roombooking/internal/domain"
	"roombooking/internal/middleware"
	"roombooking/internal/modules/history"
	"roombooking/internal/modules/lifecycle"
	"roombooking/internal/pkg/response"
	"roombooking/internal/pkg/validator"
)

type BookingLister interface {
	Get(ctx context.Context, tenant string) ([]domain.Booking, error)
}

type HistoryReader interface {
	ForCalendarEvent(ctx context.Context, tenant, calendarEventID string) ([]history.Entry, error)
}

type Handler struct {
	coordinator *Coordinator
	list        BookingLister
	history     HistoryReader
}

func NewHandler(coordinator *Coordinator, list BookingLister, hist HistoryReader) *Handler {
	return &Handler{coordinator: coordinator, list: list, history: hist}
}

// RegisterRoutes expects rg to run middleware.Tenant.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/transition", h.Transition)
	rg.POST("/bookings", h.CreateBooking)
	rg.GET("/bookings", h.ListBookings)
	rg.GET("/bookings/:calendarEventId/history", h.History)
}

func (h *Handler) Transition(c *gin.Context) {
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", validator.Fields(err))
		return
	}

	ev, err := domain.ParseEventType(req.EventType)
	if err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "INVALID_EVENT", "Unknown event type", gin.H{
			"eventType": req.EventType,
			"allowed":   domain.AllEventTypes(),
		})
		return
	}

	tenant := middleware.TenantFrom(c)
	actor := actorEmail(c, req.ActorEmail)
	res, err := h.coordinator.Apply(c.Request.Context(), TransitionCommand{
		Tenant:          tenant,
		CalendarEventID: req.CalendarEventID,
		Event:           domain.Event{Type: ev, Reason: req.Reason, Changes: req.Changes},
		ActorEmail:      actor,
	})
	if err != nil && req.Fallback && req.Status != "" && lifecycle.IsKind(err, lifecycle.KindInvalidTransition) {
		slog.Warn("transition_fallback", "tenant", tenant, "calendar_event_id", req.CalendarEventID, "event", ev, "status", req.Status, "cause", err)
		res, err = h.coordinator.ApplyLegacyStatus(c.Request.Context(), tenant, req.CalendarEventID, req.Status, actor)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	response.Transition(c, string(res.NewState), res.NoOp)
}

func (h *Handler) CreateBooking(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", validator.Fields(err))
		return
	}

	b, err := h.coordinator.Submit(c.Request.Context(), SubmitRequest{
		Tenant:            middleware.TenantFrom(c),
		RequesterEmail:    req.RequesterEmail,
		Role:              requesterRole(c, req.Role),
		ResourceIDs:       req.ResourceIDs,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		Title:             req.Title,
		ServicesRequested: req.ServicesRequested,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"booking": gin.H{
			"calendarEventId": b.CalendarEventID,
			"requestNumber":   b.RequestNumber,
			"status":          b.Status,
		},
	})
}

func (h *Handler) ListBookings(c *gin.Context) {
	rows, err := h.list.Get(c.Request.Context(), middleware.TenantFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"bookings": rows})
}

func (h *Handler) History(c *gin.Context) {
	entries, err := h.history.ForCalendarEvent(c.Request.Context(), middleware.TenantFrom(c), c.Param("calendarEventId"))
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			response.Error(c, http.StatusNotFound, "NOT_FOUND", "Booking not found")
			return
		}
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"history": entries})
}

// actorEmail prefers the authenticated identity over the request body.
func actorEmail(c *gin.Context, fromBody string) string {
	if email := c.GetString(middleware.CtxEmail); email != "" {
		return email
	}
	return fromBody
}

// requesterRole takes the role from a verified token. Anonymous callers
// default to student, the most limited role.
func requesterRole(c *gin.Context, fromBody domain.Role) domain.Role {
	if role := c.GetString(middleware.CtxRole); role != "" {
		return domain.Role(role)
	}
	if fromBody == "" {
		return domain.RoleStudent
	}
	return fromBody
}

func writeError(c *gin.Context, err error) {
	var te *lifecycle.TransitionError
	var conflict *ConflictError
	switch {
	case errors.As(err, &te):
		response.ErrorWithDetails(c, http.StatusBadRequest, string(te.Kind), te.Error(), gin.H{
			"currentState": te.From,
			"event":        te.Event,
			"reason":       te.Reason,
		})
	case errors.As(err, &conflict):
		response.ErrorWithDetails(c, http.StatusConflict, "BOOKING_CONFLICT", "Resource is not available for the selected time", conflict.Conflicts)
	case errors.Is(err, ErrNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "Booking not found")
	case errors.Is(err, ErrValidation):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, ErrUnknownTenant):
		response.Error(c, http.StatusBadRequest, "UNKNOWN_TENANT", "Unknown tenant")
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process booking request")
	}
}
