package primitives

import (
	"errors"
	"fmt"
)

// ValidationErrors aggregates every failure found while validating a
// GovernorConfig. Validate runs every check regardless of earlier
// failures so a caller (the CLI's check-config path, in particular) can
// report the full set at once, per spec.md's validation-order contract.
type ValidationErrors struct {
	Errs []error
}

func (v *ValidationErrors) add(format string, args ...any) {
	v.Errs = append(v.Errs, fmt.Errorf(format, args...))
}

func (v *ValidationErrors) Error() string {
	if len(v.Errs) == 0 {
		return "no errors"
	}
	msg := fmt.Sprintf("%d config error(s):", len(v.Errs))
	for _, e := range v.Errs {
		msg += "\n  - " + e.Error()
	}
	return msg
}

// Unwrap lets errors.Is/errors.As reach into the aggregated errors.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errs
}

func (v *ValidationErrors) ok() error {
	if len(v.Errs) == 0 {
		return nil
	}
	return v
}

var knownDeviceTypes = map[DeviceType]bool{
	DeviceDummy:            true,
	DeviceAnalogPositioner: true,
	DeviceTwoPositionActor: true,
}

// Validate runs the five-step validation order from spec.md §4.1: root
// keys, init_state membership, per-device shape, per-state target
// cross-references, and per-transition cross-references. requireTransitions
// controls whether an empty (or missing) Transitions map is itself an
// error — a config loaded only for editing need not be executable, but a
// config handed to a GovernorEngine must be.
func (g *GovernorConfig) Validate(requireTransitions bool) error {
	errs := &ValidationErrors{}

	if g.InitState == "" {
		errs.add("init_state is required")
	}
	if len(g.Devices) == 0 {
		errs.add("devices is required and must be non-empty")
	}
	if len(g.States) == 0 {
		errs.add("states is required and must be non-empty")
	}
	if requireTransitions && len(g.Transitions) == 0 {
		errs.add("transitions is required for an executable configuration")
	}

	if g.InitState != "" {
		if _, ok := g.States[g.InitState]; !ok {
			errs.add("init_state %q is not a declared state", g.InitState)
		}
	}

	g.validateDevices(errs)
	g.validateStates(errs)
	g.validateTransitions(errs)

	return errs.ok()
}

func (g *GovernorConfig) validateDevices(errs *ValidationErrors) {
	for name, dev := range g.Devices {
		if dev.Name == "" {
			errs.add("device %q: name is required", name)
		}
		if dev.Type == "" {
			errs.add("device %q: type is required", name)
		} else if !knownDeviceTypes[dev.Type] {
			errs.add("device %q: unknown type %q", name, dev.Type)
		}
		if dev.Timeout <= 0 {
			errs.add("device %q: timeout is required and must be positive", name)
		}
		switch dev.Type {
		case DeviceAnalogPositioner:
			if dev.PV == "" {
				errs.add("device %q: pv is required for analog_positioner", name)
			}
			if dev.Tolerance < 0 {
				errs.add("device %q: tolerance must be non-negative", name)
			}
			if len(dev.Positions) == 0 {
				errs.add("device %q: positions is required for analog_positioner", name)
			}
		case DeviceTwoPositionActor:
			if dev.PV == "" {
				errs.add("device %q: pv is required for two_position_actuator", name)
			}
		}
	}
}

func (g *GovernorConfig) validateStates(errs *ValidationErrors) {
	for sname, state := range g.States {
		for dname, target := range state.Targets {
			dev, ok := g.Devices[dname]
			if !ok {
				errs.add("state %q: target device %q is not declared", sname, dname)
				continue
			}
			if target.PositionName == "" {
				errs.add("state %q: target for device %q is missing target position", sname, dname)
			} else if dev.HasPositions() {
				if _, ok := dev.Positions[target.PositionName]; !ok {
					errs.add("state %q: device %q has no declared position %q", sname, dname, target.PositionName)
				}
			}
			if !target.Limits.Valid() {
				errs.add("state %q: device %q limits invalid (low %v > high %v)", sname, dname, target.Limits.Low, target.Limits.High)
			}
		}
	}
}

func (g *GovernorConfig) validateTransitions(errs *ValidationErrors) {
	for origin, dests := range g.Transitions {
		if _, ok := g.States[origin]; !ok {
			errs.add("transition origin %q is not a declared state", origin)
		}
		for dest, seq := range dests {
			if origin == dest {
				errs.add("transition %s -> %s: origin and destination must differ", origin, dest)
			}
			destState, ok := g.States[dest]
			if !ok {
				errs.add("transition %s -> %s: destination is not a declared state", origin, dest)
				continue
			}
			for _, step := range seq {
				for _, dname := range step.Devices {
					if _, ok := g.Devices[dname]; !ok {
						errs.add("transition %s -> %s: device %q is not declared", origin, dest, dname)
						continue
					}
					if _, ok := destState.Targets[dname]; !ok {
						errs.add("transition %s -> %s: device %q does not appear in destination %q targets", origin, dest, dname, dest)
					}
				}
			}
		}
	}
}

// ReachableStates returns origin plus every state directly reachable from
// it via a declared transition, including the implicit reset edge to
// InitState that the engine synthesizes for every non-initial origin.
func (g *GovernorConfig) ReachableStates(origin string) []string {
	seen := map[string]bool{origin: true}
	out := []string{origin}
	for _, dest := range sortedKeys(g.Transitions[origin]) {
		if !seen[dest] {
			seen[dest] = true
			out = append(out, dest)
		}
	}
	if origin != g.InitState && !seen[g.InitState] {
		out = append(out, g.InitState)
	}
	return out
}

// Sequence returns the declared move sequence for origin -> dest, or the
// implicit empty "reset" sequence when dest is InitState and no explicit
// transition was declared (spec.md §3's universal reset edge).
func (g *GovernorConfig) Sequence(origin, dest string) ([]SequenceStep, error) {
	if dests, ok := g.Transitions[origin]; ok {
		if seq, ok := dests[dest]; ok {
			return seq, nil
		}
	}
	if dest == g.InitState && origin != g.InitState {
		return nil, nil
	}
	return nil, fmt.Errorf("no transition declared from %q to %q: %w", origin, dest, ErrNotFound)
}

// ErrNotFound is returned by lookups against a GovernorConfig for names
// that are not declared.
var ErrNotFound = errors.New("not found")
