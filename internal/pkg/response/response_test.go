package response

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func record(fn func(c *gin.Context)) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	fn(c)
	return w
}

func TestError_OmitsEmptyDetails(t *testing.T) {
	w := record(func(c *gin.Context) { Error(c, http.StatusNotFound, "NOT_FOUND", "Booking not found") })
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"success":false,"error":{"code":"NOT_FOUND","message":"Booking not found"}}`, w.Body.String())
}

func TestErrorWithDetails(t *testing.T) {
	w := record(func(c *gin.Context) {
		ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", map[string]string{"startTime": "required"})
	})
	assert.JSONEq(t, `{"success":false,"error":{"code":"VALIDATION_ERROR","message":"Invalid request body","details":{"startTime":"required"}}}`, w.Body.String())
}

func TestTransition_IsFlat(t *testing.T) {
	w := record(func(c *gin.Context) { Transition(c, "Approved", false) })
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"newState":"Approved","noOp":false}`, w.Body.String())
}
