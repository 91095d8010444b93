package validator

import (
	"errors"
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
)

type sample struct {
	Email string   `json:"requesterEmail" binding:"required,email"`
	IDs   []string `json:"resourceIds" binding:"required,min=1"`
	Note  string   `json:"note,omitempty" binding:"max=5"`
}

func TestFields(t *testing.T) {
	err := binding.Validator.ValidateStruct(&sample{Email: "nope", IDs: []string{}, Note: "too long"})

	got := Fields(err)
	assert.Equal(t, map[string]string{
		"requesterEmail": "email",
		"resourceIds":    "min=1",
		"note":           "max=5",
	}, got)
}

func TestFields_NotValidation(t *testing.T) {
	assert.Nil(t, Fields(nil))
	assert.Equal(t, map[string]string{"body": "unexpected EOF"}, Fields(errors.New("unexpected EOF")))
}
