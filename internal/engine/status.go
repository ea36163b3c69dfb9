// Package engine implements GovernorEngine: the state-machine driver, its
// transition executor, and its event-driven fault-handling supervisor
// (spec.md §4.3).
package engine

import "encoding/json"

// Status is the governor's lifecycle state (spec.md §3/§4.3).
type Status int

const (
	Idle Status = iota
	Busy
	Disabled
	Fault
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Busy:
		return "Busy"
	case Disabled:
		return "Disabled"
	case Fault:
		return "Fault"
	default:
		return "Unknown"
	}
}

// MarshalJSON renders Status as its name rather than its ordinal, so the
// /status HTTP surface and bus snapshots stay human-readable.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
