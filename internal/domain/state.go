package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// State is a top-level lifecycle state of a booking.
type State string

const (
	StateRequested  State = "Requested"
	StatePending    State = "Pending"
	StateApproved   State = "Approved"
	StateModified   State = "Modified"
	StateDeclined   State = "Declined"
	StateCanceled   State = "Canceled"
	StateCheckedIn  State = "CheckedIn"
	StateCheckedOut State = "CheckedOut"
	StateNoShow     State = "NoShow"
	StateClosed     State = "Closed"
)

var allStates = []State{
	StateRequested, StatePending, StateApproved, StateModified, StateDeclined,
	StateCanceled, StateCheckedIn, StateCheckedOut, StateNoShow, StateClosed,
}

// AllStates returns every top-level state in declaration order.
func AllStates() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

func (s State) Valid() bool {
	for _, v := range allStates {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether only administrative Close may leave s.
func (s State) Terminal() bool {
	return s == StateDeclined || s == StateCanceled || s == StateClosed
}

// ServicesRegion names the nested services sub-machine.
const ServicesRegion = "ServicesRequest"

// ServicesState is the value of the ServicesRequest sub-machine.
type ServicesState string

const (
	ServicesPending  ServicesState = "pending"
	ServicesApproved ServicesState = "approved"
	ServicesDeclined ServicesState = "declined"
)

func (s ServicesState) Valid() bool {
	return s == ServicesPending || s == ServicesApproved || s == ServicesDeclined
}

// ValueKind tags which variant a StateValue holds.
type ValueKind int

const (
	ValueEmpty ValueKind = iota
	ValueSimple
	ValueServices
)

// StateValue is either a simple state ("Approved") or a state inside the
// services sub-machine ({"ServicesRequest":"pending"}).
type StateValue struct {
	kind     ValueKind
	state    State
	services ServicesState
}

func Simple(s State) StateValue {
	return StateValue{kind: ValueSimple, state: s}
}

func InServices(s ServicesState) StateValue {
	return StateValue{kind: ValueServices, services: s}
}

func (v StateValue) Kind() ValueKind { return v.kind }

func (v StateValue) IsEmpty() bool { return v.kind == ValueEmpty }

// State returns the simple state; ok is false for other variants.
func (v StateValue) State() (State, bool) {
	return v.state, v.kind == ValueSimple
}

// Services returns the services sub-state; ok is false for other variants.
func (v StateValue) Services() (ServicesState, bool) {
	return v.services, v.kind == ValueServices
}

// Effective collapses the value onto the top-level state table used by the
// engine. The services sub-machine only runs after the booking itself was
// approved, so its values map onto Pending/Approved/Declined.
func (v StateValue) Effective() State {
	switch v.kind {
	case ValueSimple:
		return v.state
	case ValueServices:
		switch v.services {
		case ServicesPending:
			return StatePending
		case ServicesApproved:
			return StateApproved
		case ServicesDeclined:
			return StateDeclined
		}
	}
	return ""
}

func (v StateValue) Equal(o StateValue) bool {
	return v.kind == o.kind && v.state == o.state && v.services == o.services
}

func (v StateValue) String() string {
	switch v.kind {
	case ValueSimple:
		return string(v.state)
	case ValueServices:
		return fmt.Sprintf("%s.%s", ServicesRegion, v.services)
	default:
		return ""
	}
}

func (v StateValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueSimple:
		return json.Marshal(string(v.state))
	case ValueServices:
		return json.Marshal(map[string]string{ServicesRegion: string(v.services)})
	default:
		return []byte("null"), nil
	}
}

func (v *StateValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = StateValue{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*v = StateValue{}
			return nil
		}
		st := State(s)
		if !st.Valid() {
			return fmt.Errorf("unknown state %q", s)
		}
		*v = Simple(st)
		return nil
	}

	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("state value must be a string or object: %w", err)
	}
	if len(m) != 1 {
		return fmt.Errorf("compound state value must have exactly one region, got %d", len(m))
	}
	sub, ok := m[ServicesRegion]
	if !ok {
		return fmt.Errorf("unknown state region in %s", string(data))
	}
	ss := ServicesState(sub)
	if !ss.Valid() {
		return fmt.Errorf("unknown %s value %q", ServicesRegion, sub)
	}
	*v = InServices(ss)
	return nil
}
