package domain

import (
	"fmt"
	"strings"
	"time"
)

// EventType is the tag of a lifecycle event.
type EventType string

const (
	EventApprove         EventType = "Approve"
	EventDecline         EventType = "Decline"
	EventCancel          EventType = "Cancel"
	EventEdit            EventType = "Edit"
	EventCheckIn         EventType = "CheckIn"
	EventCheckOut        EventType = "CheckOut"
	EventNoShow          EventType = "NoShow"
	EventClose           EventType = "Close"
	EventAutoCloseScript EventType = "AutoCloseScript"
)

var eventTypes = []EventType{
	EventApprove, EventDecline, EventCancel, EventEdit, EventCheckIn,
	EventCheckOut, EventNoShow, EventClose, EventAutoCloseScript,
}

func AllEventTypes() []EventType {
	out := make([]EventType, len(eventTypes))
	copy(out, eventTypes)
	return out
}

// ParseEventType accepts the canonical name case-insensitively.
func ParseEventType(s string) (EventType, error) {
	s = strings.TrimSpace(s)
	for _, e := range eventTypes {
		if strings.EqualFold(string(e), s) {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown event type %q", s)
}

// EditChanges is the optional payload of an Edit event.
type EditChanges struct {
	StartTime *time.Time `json:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty"`
}

// Event is one lifecycle event with its payload.
type Event struct {
	Type    EventType
	Reason  string
	Changes *EditChanges
}
