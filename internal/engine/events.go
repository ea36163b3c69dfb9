package engine

import (
	"time"

	"github.com/ocs-lab/governor/internal/device"
	"github.com/ocs-lab/governor/internal/primitives"
)

// EventKind names the events the supervisor consumes: the four device
// faults plus the operator-issued ABORT (spec.md §4.3/§7).
type EventKind string

const (
	EventDisconnect     EventKind = "DISCONNECT"
	EventAlarm          EventKind = "ALARM"
	EventLimitsViolated EventKind = "LIMITS_VIOLATED"
	EventTimeout        EventKind = "TIMEOUT"
	EventAbort          EventKind = "ABORT"
)

var faultKindToEventKind = map[device.FaultKind]EventKind{
	device.FaultDisconnect:     EventDisconnect,
	device.FaultAlarm:          EventAlarm,
	device.FaultLimitsViolated: EventLimitsViolated,
	device.FaultTimeout:        EventTimeout,
}

// Event is one item on the supervisor's queue.
type Event struct {
	Kind   EventKind
	Device string
	At     time.Time
}

// StateSnapshot is one state's observer-facing data: whether it is the
// current state, whether it can be transitioned to right now, and the
// per-device limits declared for it (spec.md §6's per-state channels).
type StateSnapshot struct {
	Active    bool
	Reachable bool
	Limits    map[string]primitives.Limits
}

// TransitionSnapshot is one declared (origin, destination) pair's
// observer-facing data (spec.md §6's per-transition channels).
type TransitionSnapshot struct {
	Origin      string
	Destination string
	Active      bool
	Reachable   bool
}

// DeviceSnapshot is one device's declared position catalog: the ordered
// list of position names (Sts:Tgts-I) and the current setpoint value for
// each (Pos:<name>-Pos), sourced from the declarative config rather than
// the device's live reading (spec.md §6: "Pos:<name>-Pos ... per declared
// position").
type DeviceSnapshot struct {
	TargetNames []string
	Positions   map[string]float64
}

// Snapshot is the observer payload: a full copy of the engine's
// externally-visible state, passed by value so the adapter never holds a
// live reference back into the engine (spec.md §9).
type Snapshot struct {
	Name            string
	CurrentState    string
	NextState       string
	Status          Status
	StatusMessage   string
	ReachableStates []string
	StateNames      []string
	DeviceNames     []string
	States          map[string]StateSnapshot
	Transitions     []TransitionSnapshot
	Devices         map[string]DeviceSnapshot
}

// Observer receives a full snapshot after every engine state change. It
// is a one-way callback: implementations must not call back into the
// engine from inside Update.
type Observer interface {
	Update(snapshot Snapshot)
}

// NopObserver discards every snapshot; useful as the default so Engine
// never has to nil-check its observer.
type NopObserver struct{}

func (NopObserver) Update(Snapshot) {}
