package domain

// NotificationTemplate selects the message a Notifier renders.
type NotificationTemplate string

const (
	NotifBookingRequested  NotificationTemplate = "booking_requested"
	NotifBookingPending    NotificationTemplate = "booking_first_approved"
	NotifBookingApproved   NotificationTemplate = "booking_approved"
	NotifBookingModified   NotificationTemplate = "booking_modified"
	NotifBookingDeclined   NotificationTemplate = "booking_declined"
	NotifBookingCanceled   NotificationTemplate = "booking_canceled"
	NotifBookingCheckedIn  NotificationTemplate = "booking_checked_in"
	NotifBookingCheckedOut NotificationTemplate = "booking_checked_out"
	NotifBookingNoShow     NotificationTemplate = "booking_no_show"
	NotifServicesPending   NotificationTemplate = "booking_services_pending"
)

// Notification is one message handed to the Notifier.
type Notification struct {
	To       string               `json:"to"`
	Template NotificationTemplate `json:"template"`
	Context  map[string]any       `json:"context,omitempty"`
}
