package reconcile

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"roombooking/internal/pkg/response"
	"roombooking/internal/repository"
)

type MismatchLister interface {
	List(ctx context.Context, tenant string, limit int) ([]repository.CalendarMismatch, error)
}

type Handler struct {
	runner     *Runner
	mismatches MismatchLister
}

func NewHandler(runner *Runner, mismatches MismatchLister) *Handler {
	return &Handler{runner: runner, mismatches: mismatches}
}

// RegisterRoutes expects rg to be protected by middleware.CronAuth.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/auto-cancel-declined", h.run(JobAutoCancelDeclined))
	rg.GET("/auto-checkout", h.run(JobAutoCheckout))
	rg.GET("/calendar-mismatches", h.ListMismatches)
}

func (h *Handler) run(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		dryRun := false
		if raw := c.Query("dryRun"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "dryRun must be a boolean")
				return
			}
			dryRun = v
		}

		sum, err := h.runner.Run(c.Request.Context(), name, Options{DryRun: dryRun, Tenant: c.Query("tenant")})
		if err != nil {
			if errors.Is(err, ErrUnknownTenant) {
				response.Error(c, http.StatusBadRequest, "UNKNOWN_TENANT", err.Error())
				return
			}
			_ = c.Error(err)
			response.ErrorWithDetails(c, http.StatusInternalServerError, "INFRASTRUCTURE_ERROR", "Reconciliation could not run", sum)
			return
		}
		c.JSON(http.StatusOK, sum)
	}
}

func (h *Handler) ListMismatches(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.mismatches.List(c.Request.Context(), c.Query("tenant"), limit)
	if err != nil {
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list calendar mismatches")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"mismatches": rows})
}
