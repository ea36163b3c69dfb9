package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ocs-lab/governor/internal/primitives"
)

// twoPositionSetpoints are the fixed symbolic positions spec.md §4.2
// assigns TwoPositionActuator: Open=1, Closed=0.
var twoPositionSetpoints = map[string]float64{"Open": 1, "Closed": 0}

// TwoPositionActuator models a valve: open-command/close-command/
// position-status channels, fixed Open/Closed positions, no mid-travel
// stop.
type TwoPositionActuator struct {
	name    string
	timeout time.Duration
	faults  chan<- FaultEvent

	TransitTime time.Duration

	mu             sync.Mutex
	commanded      float64 // last commanded setpoint
	reported       float64 // last reported position
	connected      bool
	alarmed        bool
	target         *primitives.Target
	moveGen        int
}

func newTwoPositionActuatorFromConfig(cfg primitives.DeviceConfig, faults chan<- FaultEvent) (Device, error) {
	return &TwoPositionActuator{
		name:        cfg.Name,
		timeout:     cfg.Timeout.AsDuration(),
		faults:      faults,
		TransitTime: 10 * time.Millisecond,
		connected:   true,
		commanded:   twoPositionSetpoints["Closed"],
		reported:    twoPositionSetpoints["Closed"],
	}, nil
}

func (t *TwoPositionActuator) Name() string { return t.name }

func (t *TwoPositionActuator) Move(ctx context.Context, target primitives.Target) error {
	sp, ok := twoPositionSetpoints[target.PositionName]
	if !ok {
		return fmt.Errorf("two-position actuator %q: invalid position %q (must be Open or Closed)", t.name, target.PositionName)
	}

	t.mu.Lock()
	t.target = nil
	t.commanded = sp
	t.moveGen++
	gen := t.moveGen
	transit := t.TransitTime
	t.mu.Unlock()

	go func() {
		timer := time.NewTimer(transit)
		defer timer.Stop()
		<-timer.C
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.moveGen != gen {
			return
		}
		t.reported = sp
	}()

	return nil
}

func (t *TwoPositionActuator) Wait(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	lastValue := t.reportedPosition()
	lastChange := time.Now()

	for {
		if t.Done() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			v := t.reportedPosition()
			if v != lastValue {
				lastValue = v
				lastChange = time.Now()
			}
			if time.Since(lastChange) >= t.timeout {
				emit(t.faults, t.name, FaultTimeout)
				return fmt.Errorf("two-position actuator %q: wait timed out after %s with no motion", t.name, t.timeout)
			}
		}
	}
}

// Stop is a no-op: the hardware has no mid-travel stop (spec.md §4.2).
func (t *TwoPositionActuator) Stop() error { return nil }

func (t *TwoPositionActuator) AssignTarget(target *primitives.Target) {
	t.mu.Lock()
	t.target = target
	t.mu.Unlock()
	t.checkBand()
}

func (t *TwoPositionActuator) checkBand() {
	t.mu.Lock()
	target := t.target
	connected := t.connected
	if target == nil || !connected {
		t.mu.Unlock()
		return
	}
	sp, ok := twoPositionSetpoints[target.PositionName]
	value := t.reported
	limits := target.Limits
	t.mu.Unlock()
	if !ok {
		return
	}
	if !withinBand(value, sp, limits, 0) {
		emit(t.faults, t.name, FaultLimitsViolated)
	}
}

func (t *TwoPositionActuator) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *TwoPositionActuator) Alarmed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.alarmed
}

// Homed is always true: a two-position actuator has no homing concept.
func (t *TwoPositionActuator) Homed() bool { return true }

func (t *TwoPositionActuator) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.commanded == t.reported
}

func (t *TwoPositionActuator) LiveValue() float64 { return t.reportedPosition() }

func (t *TwoPositionActuator) reportedPosition() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reported
}

func (t *TwoPositionActuator) CurrentTarget() *primitives.Target {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.target
}

// --- test seams ---

func (t *TwoPositionActuator) SetConnected(connected bool) {
	t.mu.Lock()
	was := t.connected
	t.connected = connected
	t.mu.Unlock()
	if was && !connected {
		emit(t.faults, t.name, FaultDisconnect)
	}
}

func (t *TwoPositionActuator) SetAlarmed(alarmed bool) {
	t.mu.Lock()
	was := t.alarmed
	t.alarmed = alarmed
	t.mu.Unlock()
	if !was && alarmed {
		emit(t.faults, t.name, FaultAlarm)
	}
}

func (t *TwoPositionActuator) SetReportedPosition(v float64) {
	t.mu.Lock()
	t.reported = v
	t.mu.Unlock()
	t.checkBand()
}
