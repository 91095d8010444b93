package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"roombooking/internal/domain"
)

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "booking.approved", RoutingKey(domain.NotifBookingApproved))
	assert.Equal(t, "booking.checked_in", RoutingKey(domain.NotifBookingCheckedIn))
	assert.Equal(t, "booking.services_pending", RoutingKey(domain.NotifServicesPending))
}

func TestConsole_Send(t *testing.T) {
	err := NewConsole().Send(context.Background(), domain.Notification{To: "alice@example.edu", Template: domain.NotifBookingDeclined})
	assert.NoError(t, err)
}
