// Package response writes the JSON envelope every endpoint answers with:
// {"success":true,"data":...} or {"success":false,"error":{code,message,details}}.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// TransitionBody is flat so schedulers and scripts can read newState
// without unwrapping data.
type TransitionBody struct {
	Success  bool   `json:"success"`
	NewState string `json:"newState"`
	NoOp     bool   `json:"noOp"`
}

func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, Envelope{Success: true, Data: data})
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	ErrorWithDetails(c, statusCode, code, message, nil)
}

func ErrorWithDetails(c *gin.Context, statusCode int, code string, message string, details any) {
	c.JSON(statusCode, Envelope{Error: &ErrorBody{Code: code, Message: message, Details: details}})
}

func Transition(c *gin.Context, newState string, noOp bool) {
	c.JSON(http.StatusOK, TransitionBody{Success: true, NewState: newState, NoOp: noOp})
}
