package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ocs-lab/governor/internal/primitives"
)

// homedBit is the status-word bit spec.md §4.2 assigns to "homed".
const homedBit = 0x4000

// AnalogPositioner models a continuous-position actuator (a motor) driven
// by setpoint-write/readback/done-flag/status-word/stop-command channels.
// Those channels are collapsed here into plain fields because the
// control-system I/O layer that would back them is an external
// collaborator (spec.md §1) — AnalogPositioner owns only the behavior a
// real I/O binding would drive through the same Device contract.
type AnalogPositioner struct {
	name      string
	timeout   time.Duration
	tolerance float64
	positions map[string]float64
	faults    chan<- FaultEvent

	// TransitTime is the simulated travel duration for a move; exposed
	// so tests can drive the state machine without waiting on real
	// motion.
	TransitTime time.Duration

	mu         sync.Mutex
	setpoint   float64
	liveValue  float64
	doneFlag   bool
	statusWord uint32
	connected  bool
	alarmed    bool
	stopped    bool
	target     *primitives.Target
	moveGen    int // invalidates in-flight motion goroutines on a new Move/Stop
}

func newAnalogPositionerFromConfig(cfg primitives.DeviceConfig, faults chan<- FaultEvent) (Device, error) {
	return &AnalogPositioner{
		name:        cfg.Name,
		timeout:     cfg.Timeout.AsDuration(),
		tolerance:   cfg.Tolerance,
		positions:   cfg.Positions,
		faults:      faults,
		TransitTime: 10 * time.Millisecond,
		connected:   true,
		statusWord:  homedBit,
		doneFlag:    true,
	}, nil
}

func (a *AnalogPositioner) Name() string { return a.name }

func (a *AnalogPositioner) Move(ctx context.Context, target primitives.Target) error {
	sp, ok := a.positions[target.PositionName]
	if !ok {
		return fmt.Errorf("analog positioner %q: unknown position %q", a.name, target.PositionName)
	}

	a.mu.Lock()
	a.target = nil // band monitoring disabled until AssignTarget re-arms it
	a.setpoint = sp
	a.doneFlag = false
	a.stopped = false
	a.moveGen++
	gen := a.moveGen
	transit := a.TransitTime
	a.mu.Unlock()

	go func() {
		timer := time.NewTimer(transit)
		defer timer.Stop()
		<-timer.C
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.moveGen != gen || a.stopped {
			return // superseded by a later Move or a Stop
		}
		a.liveValue = a.setpoint
		a.doneFlag = true
	}()

	return nil
}

func (a *AnalogPositioner) Wait(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	lastValue := a.LiveValue()
	lastChange := time.Now()

	for {
		if a.Done() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			v := a.LiveValue()
			if v != lastValue {
				lastValue = v
				lastChange = time.Now()
			}
			if time.Since(lastChange) >= a.timeout {
				emit(a.faults, a.name, FaultTimeout)
				return fmt.Errorf("analog positioner %q: wait timed out after %s with no motion", a.name, a.timeout)
			}
		}
	}
}

func (a *AnalogPositioner) Stop() error {
	a.mu.Lock()
	a.stopped = true
	a.moveGen++
	a.mu.Unlock()
	return nil
}

func (a *AnalogPositioner) AssignTarget(target *primitives.Target) {
	a.mu.Lock()
	a.target = target
	a.mu.Unlock()
	a.checkBand()
}

func (a *AnalogPositioner) checkBand() {
	a.mu.Lock()
	target := a.target
	connected := a.connected
	if target == nil || !connected {
		a.mu.Unlock()
		return
	}
	sp, ok := a.positions[target.PositionName]
	value := a.liveValue
	limits := target.Limits
	tol := a.tolerance
	a.mu.Unlock()
	if !ok {
		return
	}
	if !withinBand(value, sp, limits, tol) {
		emit(a.faults, a.name, FaultLimitsViolated)
	}
}

func (a *AnalogPositioner) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

func (a *AnalogPositioner) Alarmed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.alarmed
}

func (a *AnalogPositioner) Homed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statusWord&homedBit != 0
}

func (a *AnalogPositioner) Done() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.doneFlag
}

func (a *AnalogPositioner) LiveValue() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.liveValue
}

func (a *AnalogPositioner) CurrentTarget() *primitives.Target {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.target
}

// --- test seams: simulate hardware-reported state changes ---

// SetLiveValue simulates a readback update, e.g. live drift, and re-checks
// the assigned band (this is how a LIMITS_VIOLATED fault is triggered in
// tests and, in a real binding, by the readback channel callback).
func (a *AnalogPositioner) SetLiveValue(v float64) {
	a.mu.Lock()
	a.liveValue = v
	a.mu.Unlock()
	a.checkBand()
}

// SetConnected simulates the connection-status callback; going false
// emits DISCONNECT.
func (a *AnalogPositioner) SetConnected(connected bool) {
	a.mu.Lock()
	was := a.connected
	a.connected = connected
	a.mu.Unlock()
	if was && !connected {
		emit(a.faults, a.name, FaultDisconnect)
	}
}

// SetAlarmed simulates the alarm-status callback; going true emits ALARM.
func (a *AnalogPositioner) SetAlarmed(alarmed bool) {
	a.mu.Lock()
	was := a.alarmed
	a.alarmed = alarmed
	a.mu.Unlock()
	if !was && alarmed {
		emit(a.faults, a.name, FaultAlarm)
	}
}

// SetStatusWord simulates a status-word update (e.g. clearing the homed
// bit).
func (a *AnalogPositioner) SetStatusWord(word uint32) {
	a.mu.Lock()
	a.statusWord = word
	a.mu.Unlock()
}
