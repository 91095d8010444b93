package booking

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roombooking/internal/domain"
	"roombooking/internal/middleware"
	"roombooking/internal/modules/bookingcache"
	"roombooking/internal/modules/history"
	"roombooking/internal/modules/lifecycle"
)

type envelope struct {
	Success  bool            `json:"success"`
	NewState string          `json:"newState"`
	NoOp     bool            `json:"noOp"`
	Data     json.RawMessage `json:"data"`
	Error    struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func newTestRouter(env *testEnv) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(
		env.coord,
		bookingcache.New(env.bookings, bookingcache.DefaultTTL, env.clock),
		history.NewService(env.bookings, env.audit),
	)
	router := gin.New()
	api := router.Group("/api", middleware.Tenant(env.tenants))
	h.RegisterRoutes(api)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.TenantHeader, "mc")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var out envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w, out
}

func TestHandler_CreateAndTransition(t *testing.T) {
	env := newTestEnv(t, nil)
	router := newTestRouter(env)

	w, out := doJSON(t, router, http.MethodPost, "/api/bookings", gin.H{
		"requesterEmail": alice,
		"role":           "faculty",
		"resourceIds":    []string{"room-101"},
		"startTime":      tomorrow(10, 0).Format(time.RFC3339),
		"endTime":        tomorrow(11, 0).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Booking struct {
			CalendarEventID string `json:"calendarEventId"`
			RequestNumber   int64  `json:"requestNumber"`
		} `json:"booking"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &created))
	id := created.Booking.CalendarEventID
	require.NotEmpty(t, id)

	w, out = doJSON(t, router, http.MethodPost, "/api/transition", gin.H{
		"calendarEventId": id,
		"eventType":       "approve",
		"actorEmail":      staff,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, out.Success)
	assert.Equal(t, string(domain.LabelApproved), out.NewState)
	assert.False(t, out.NoOp)

	w, out = doJSON(t, router, http.MethodPost, "/api/transition", gin.H{
		"calendarEventId": id,
		"eventType":       "Decline",
		"reason":          "late",
		"actorEmail":      staff,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(lifecycle.KindInvalidTransition), out.Error.Code)
	assert.Equal(t, "Approved", out.Error.Details["currentState"])

	w, out = doJSON(t, router, http.MethodGet, "/api/bookings/"+id+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hist struct {
		History []history.Entry `json:"history"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &hist))
	require.Len(t, hist.History, 2)
	assert.Equal(t, domain.LabelApproved, hist.History[1].Status)
	assert.Equal(t, staff, hist.History[1].ChangedBy)

	w, out = doJSON(t, router, http.MethodGet, "/api/bookings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(out.Data), id)
}

func TestHandler_TransitionErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	router := newTestRouter(env)
	b := env.submit(t, "mc", tomorrow(10, 0), tomorrow(11, 0), "room-101")
	env.submit(t, "mc", tomorrow(12, 0), tomorrow(13, 0), "room-101")

	w, out := doJSON(t, router, http.MethodPost, "/api/transition", gin.H{"calendarEventId": b.CalendarEventID, "eventType": "Teleport"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_EVENT", out.Error.Code)

	w, out = doJSON(t, router, http.MethodPost, "/api/transition", gin.H{"eventType": "Approve"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", out.Error.Code)
	assert.Equal(t, "required", out.Error.Details["calendarEventId"])

	w, out = doJSON(t, router, http.MethodPost, "/api/transition", gin.H{"calendarEventId": "nope", "eventType": "Approve"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", out.Error.Code)

	w, out = doJSON(t, router, http.MethodPost, "/api/transition", gin.H{
		"calendarEventId": b.CalendarEventID,
		"eventType":       "Edit",
		"actorEmail":      staff,
		"changes":         gin.H{"endTime": tomorrow(12, 30).Format(time.RFC3339)},
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "BOOKING_CONFLICT", out.Error.Code)

	w, out = doJSON(t, router, http.MethodPost, "/api/transition", gin.H{"calendarEventId": b.CalendarEventID, "eventType": "Decline", "actorEmail": staff})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(lifecycle.KindGuardFailed), out.Error.Code)
}

func TestHandler_FallbackOnInvalidTransition(t *testing.T) {
	env := newTestEnv(t, nil)
	router := newTestRouter(env)
	b := env.submit(t, "mc", tomorrow(10, 0), tomorrow(11, 0), "room-101")

	// CheckOut is not allowed from Requested; the caller asks for the old
	// field update instead.
	body := gin.H{
		"calendarEventId": b.CalendarEventID,
		"eventType":       "CheckOut",
		"actorEmail":      staff,
		"fallback":        true,
		"status":          "Checked Out",
	}
	w, out := doJSON(t, router, http.MethodPost, "/api/transition", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, string(domain.LabelCheckedOut), out.NewState)

	got := env.stored(t, "mc", b.CalendarEventID)
	assert.Equal(t, staff, got.Legacy.CheckedOut.By)

	w, out = doJSON(t, router, http.MethodPost, "/api/transition", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, out.NoOp, "already checked out")
}

func TestHandler_MissingTenant(t *testing.T) {
	env := newTestEnv(t, nil)
	router := newTestRouter(env)

	req := httptest.NewRequest(http.MethodGet, "/api/bookings", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "TENANT_MISSING")
}

func TestHandler_HourLimitUsesTokenRole(t *testing.T) {
	env := newTestEnv(t, nil)
	h := NewHandler(env.coord, bookingcache.New(env.bookings, bookingcache.DefaultTTL, env.clock), history.NewService(env.bookings, env.audit))
	router := gin.New()
	api := router.Group("/api", func(c *gin.Context) {
		// what OptionalJWTAuth sets for a student token
		c.Set(middleware.CtxEmail, alice)
		c.Set(middleware.CtxRole, string(domain.RoleStudent))
		c.Next()
	}, middleware.Tenant(env.tenants))
	h.RegisterRoutes(api)

	long := gin.H{
		"requesterEmail": alice,
		"role":           "admin",
		"resourceIds":    []string{"room-101"},
		"startTime":      tomorrow(9, 0).Format(time.RFC3339),
		"endTime":        tomorrow(15, 0).Format(time.RFC3339),
	}
	w, out := doJSON(t, router, http.MethodPost, "/api/bookings", long)
	assert.Equal(t, http.StatusBadRequest, w.Code, "a body role cannot lift the token's limit")
	assert.Equal(t, "VALIDATION_ERROR", out.Error.Code)

	// anonymous callers without a role get the student limit too
	delete(long, "role")
	w, out = doJSON(t, newTestRouter(env), http.MethodPost, "/api/bookings", long)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", out.Error.Code)

	long["role"] = "faculty"
	w, _ = doJSON(t, newTestRouter(env), http.MethodPost, "/api/bookings", long)
	assert.Equal(t, http.StatusCreated, w.Code, "anonymous callers keep the body role")
}
