// Package calendar is the resource calendar collaborator.
package calendar

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrEventNotFound = errors.New("calendar event not found")

// EventFields is a partial update; nil fields are left unchanged.
type EventFields struct {
	Title  *string
	Start  *time.Time
	End    *time.Time
	Status string
}

// Service is the provider API the booking core drives. Each resource has its
// own calendar and its own event ids.
type Service interface {
	InsertEvent(ctx context.Context, resourceID, title string, start, end time.Time) (string, error)
	UpdateEvent(ctx context.Context, resourceID, eventID string, fields EventFields) error
	DeleteEvent(ctx context.Context, resourceID, eventID string) error
}

// Event is an entry held by Memory.
type Event struct {
	ID     string
	Title  string
	Start  time.Time
	End    time.Time
	Status string
}

// Memory is an in-process calendar used for local runs and tests.
type Memory struct {
	mu        sync.Mutex
	resources map[string]map[string]Event

	// FailFor makes every call for the listed resource ids fail.
	FailFor map[string]error
}

func NewMemory() *Memory {
	return &Memory{resources: map[string]map[string]Event{}}
}

func (m *Memory) InsertEvent(ctx context.Context, resourceID, title string, start, end time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(resourceID); err != nil {
		return "", err
	}
	events, ok := m.resources[resourceID]
	if !ok {
		events = map[string]Event{}
		m.resources[resourceID] = events
	}
	id := uuid.NewString()
	events[id] = Event{ID: id, Title: title, Start: start, End: end}
	slog.Debug("calendar_insert", "resource_id", resourceID, "event_id", id)
	return id, nil
}

func (m *Memory) UpdateEvent(ctx context.Context, resourceID, eventID string, fields EventFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(resourceID); err != nil {
		return err
	}
	ev, ok := m.resources[resourceID][eventID]
	if !ok {
		return ErrEventNotFound
	}
	if fields.Title != nil {
		ev.Title = *fields.Title
	}
	if fields.Start != nil {
		ev.Start = *fields.Start
	}
	if fields.End != nil {
		ev.End = *fields.End
	}
	if fields.Status != "" {
		ev.Status = fields.Status
	}
	m.resources[resourceID][eventID] = ev
	return nil
}

func (m *Memory) DeleteEvent(ctx context.Context, resourceID, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(resourceID); err != nil {
		return err
	}
	if _, ok := m.resources[resourceID][eventID]; !ok {
		return ErrEventNotFound
	}
	delete(m.resources[resourceID], eventID)
	return nil
}

// Events returns a copy of the events on one resource.
func (m *Memory) Events(resourceID string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, 0, len(m.resources[resourceID]))
	for _, ev := range m.resources[resourceID] {
		out = append(out, ev)
	}
	return out
}

func (m *Memory) failure(resourceID string) error {
	if m.FailFor == nil {
		return nil
	}
	return m.FailFor[resourceID]
}
