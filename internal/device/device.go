// Package device implements the actuator abstraction the engine drives:
// a uniform move/wait/stop/assign-target contract plus health predicates,
// with three concrete behaviors (Dummy, AnalogPositioner,
// TwoPositionActuator) specified in spec.md §4.2.
package device

import (
	"context"
	"fmt"
	"time"

	"github.com/ocs-lab/governor/internal/primitives"
)

// FaultKind names the upward-emitted fault events spec.md §4.2/§7 define.
type FaultKind string

const (
	FaultDisconnect     FaultKind = "DISCONNECT"
	FaultAlarm          FaultKind = "ALARM"
	FaultLimitsViolated FaultKind = "LIMITS_VIOLATED"
	FaultTimeout        FaultKind = "TIMEOUT"
)

// FaultEvent is emitted by a device onto its shared fault channel; the
// engine's supervisor is the single consumer (spec.md §5's "producers are
// device-I/O callbacks, consumer is a single supervisor worker").
type FaultEvent struct {
	Device string
	Kind   FaultKind
	At     time.Time
}

// Device is the uniform contract every device variant implements.
type Device interface {
	Name() string

	// Move latches CurrentTarget to none, dispatches the hardware command
	// for target, and returns once the command has been issued (it does
	// not wait for completion — callers call Wait separately, per
	// spec.md §5's move/wait split).
	Move(ctx context.Context, target primitives.Target) error

	// Wait blocks until Done(), or until Timeout elapses with no change
	// in live value, in which case it emits FaultTimeout and returns an
	// error.
	Wait(ctx context.Context) error

	// Stop issues a best-effort halt command.
	Stop() error

	// AssignTarget installs a new target (or nil to disable band
	// monitoring) and immediately re-checks the live value against the
	// new band.
	AssignTarget(target *primitives.Target)

	Connected() bool
	Alarmed() bool
	Homed() bool
	Done() bool

	// LiveValue returns the device's current measured value.
	LiveValue() float64

	// CurrentTarget returns the currently assigned target, or nil if
	// band monitoring is disabled.
	CurrentTarget() *primitives.Target
}

// Constructor builds a Device from its declarative configuration. The
// faults channel is shared by every device belonging to one engine; the
// engine's supervisor is the sole reader (spec.md §5).
type Constructor func(cfg primitives.DeviceConfig, faults chan<- FaultEvent) (Device, error)

// registry maps a DeviceType tag to the closure that constructs it — an
// explicit sum-of-constructors in place of a metaclass/reflection-driven
// type registry (spec.md §9's redesign note).
var registry = map[primitives.DeviceType]Constructor{
	primitives.DeviceDummy:            newDummyFromConfig,
	primitives.DeviceAnalogPositioner: newAnalogPositionerFromConfig,
	primitives.DeviceTwoPositionActor: newTwoPositionActuatorFromConfig,
}

// New constructs the Device variant named by cfg.Type.
func New(cfg primitives.DeviceConfig, faults chan<- FaultEvent) (Device, error) {
	ctor, ok := registry[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("device %q: unknown device type %q", cfg.Name, cfg.Type)
	}
	return ctor(cfg, faults)
}

// BuildAll constructs every device declared by cfgs, all sharing the one
// faults channel the engine's supervisor reads from (spec.md §5: one
// channel per governor, one consumer).
func BuildAll(cfgs map[string]primitives.DeviceConfig, faults chan<- FaultEvent) (map[string]Device, error) {
	out := make(map[string]Device, len(cfgs))
	for name, cfg := range cfgs {
		d, err := New(cfg, faults)
		if err != nil {
			return nil, err
		}
		out[name] = d
	}
	return out, nil
}

// withinBand reports whether value falls inside [setpoint+lower,
// setpoint+upper], optionally widened by tolerance on both sides.
func withinBand(value, setpoint float64, limits primitives.Limits, tolerance float64) bool {
	low := setpoint + limits.Low - tolerance
	high := setpoint + limits.High + tolerance
	return value >= low && value <= high
}

func emit(faults chan<- FaultEvent, device string, kind FaultKind) {
	if faults == nil {
		return
	}
	select {
	case faults <- FaultEvent{Device: device, Kind: kind, At: time.Now()}:
	default:
		// Supervisor is a single slow consumer by design (spec.md §5); a
		// full channel means a scan is already pending, so the event can
		// be dropped without losing the fault condition itself.
	}
}
