package domain

import (
	"encoding/json"
	"time"
)

// SnapshotVersion is the schema version written with every snapshot.
const SnapshotVersion = 1

// Snapshot is the persisted machine state of one booking.
type Snapshot struct {
	Version int               `json:"version"`
	Value   StateValue        `json:"value"`
	History StateValue        `json:"history,omitempty"`
	Actors  map[string]string `json:"actors,omitempty"`
	Context SnapshotContext   `json:"context"`
}

// SnapshotContext is the typed context bag carried by the machine.
// Extra holds keys written by newer code that this build does not know about;
// they are preserved on round trip.
type SnapshotContext struct {
	ServicesRequested bool                       `json:"servicesRequested,omitempty"`
	DeclineReason     string                     `json:"declineReason,omitempty"`
	CancelReason      string                     `json:"cancelReason,omitempty"`
	LastEvent         EventType                  `json:"lastEvent,omitempty"`
	LastActor         string                     `json:"lastActor,omitempty"`
	EditCount         int                        `json:"editCount,omitempty"`
	ServicesDecidedAt *time.Time                 `json:"servicesDecidedAt,omitempty"`
	Extra             map[string]json.RawMessage `json:"extra,omitempty"`
}

func NewSnapshot(v StateValue, servicesRequested bool) Snapshot {
	return Snapshot{
		Version: SnapshotVersion,
		Value:   v,
		Context: SnapshotContext{ServicesRequested: servicesRequested},
	}
}

// Clone returns a deep copy so the engine never mutates its input.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Actors != nil {
		out.Actors = make(map[string]string, len(s.Actors))
		for k, v := range s.Actors {
			out.Actors[k] = v
		}
	}
	if s.Context.Extra != nil {
		out.Context.Extra = make(map[string]json.RawMessage, len(s.Context.Extra))
		for k, v := range s.Context.Extra {
			out.Context.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	if s.Context.ServicesDecidedAt != nil {
		t := *s.Context.ServicesDecidedAt
		out.Context.ServicesDecidedAt = &t
	}
	return out
}
