package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ocs-lab/governor/internal/device"
	"github.com/ocs-lab/governor/internal/primitives"
)

// RequestTransition enqueues a transition to dest and returns
// immediately; done is invoked (from the transition worker goroutine)
// once the attempt completes, successfully or not. This is the engine's
// half of spec.md §4.4/§5's "transition worker": the adapter's own
// worker calls this so a bus callback never blocks on device I/O.
func (e *Engine) RequestTransition(dest string, done func(error)) {
	if done == nil {
		done = func(error) {}
	}
	select {
	case e.queue <- transitionRequest{dest: dest, done: done}:
	default:
		done(fmt.Errorf("governor %s: transition queue full", e.Name))
	}
}

func (e *Engine) transitionWorker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case req := <-e.queue:
			err := e.doTransition(ctx, req.dest)
			req.done(err)
		}
	}
}

// Abort enqueues an ABORT event for the supervisor, per spec.md §4.3.
func (e *Engine) Abort() {
	e.enqueueEvent(Event{Kind: EventAbort, At: time.Now()})
}

func (e *Engine) enqueueEvent(ev Event) {
	select {
	case e.events <- ev:
	default:
		e.logger.Warn("event queue full, dropping event", "kind", ev.Kind, "device", ev.Device)
	}
}

// SetEnabled implements spec.md §4.3's enable/disable lifecycle. It is
// rejected while Busy.
func (e *Engine) SetEnabled(enabled bool) error {
	e.stateMu.Lock()
	if e.status == Busy {
		e.stateMu.Unlock()
		return fmt.Errorf("governor %s: cannot change enabled state while Busy", e.Name)
	}
	e.enabled = enabled
	e.stateMu.Unlock()

	e.setState(e.cfg.InitState)
	if enabled {
		e.setStatus(Idle)
	} else {
		e.setStatus(Disabled)
	}
	e.notifyObserver()
	return nil
}

// SetStateDeviceLimit rebuilds limits for (state, device) and commits
// through the config store (spec.md §4.3).
func (e *Engine) SetStateDeviceLimit(state, device string, low, high float64) error {
	if low > high {
		return fmt.Errorf("rejected: low (%v) > high (%v)", low, high)
	}
	st, ok := e.cfg.States[state]
	if !ok {
		return fmt.Errorf("state %q not declared", state)
	}
	target, ok := st.Targets[device]
	if !ok {
		return fmt.Errorf("device %q has no target in state %q", device, state)
	}
	w, ok := e.writer.(interface {
		SetStateDeviceLimit(state, device string, low, high float64) error
	})
	if !ok {
		return fmt.Errorf("governor %s: config writer cannot commit limit edits", e.Name)
	}
	if err := w.SetStateDeviceLimit(state, device, low, high); err != nil {
		return err
	}
	target.Limits = primitives.Limits{Low: low, High: high}
	st.Targets[device] = target
	e.cfg.States[state] = st
	return nil
}

// SetDevicePosition writes through to the config store. A missing value
// is rejected (spec.md §9's Open Question, resolved as failure).
func (e *Engine) SetDevicePosition(deviceName, position string, value float64, hasValue bool) error {
	if e.writer == nil {
		return fmt.Errorf("governor %s: no config writer configured", e.Name)
	}
	if err := e.writer.SetDevicePosition(deviceName, position, value, hasValue); err != nil {
		return err
	}
	if dev, ok := e.cfg.Devices[deviceName]; ok && dev.Positions != nil {
		dev.Positions[position] = value
		e.cfg.Devices[deviceName] = dev
	}
	return nil
}

// doTransition runs the algorithm in spec.md §4.3 step by step.
func (e *Engine) doTransition(ctx context.Context, dest string) error {
	e.transitionMu.Lock()
	defer e.transitionMu.Unlock()

	if !e.isEnabled() {
		e.logger.Info("transition rejected: governor disabled", "dest", dest)
		return fmt.Errorf("governor %s: disabled", e.Name)
	}

	e.abortFlag.Store(false)
	e.setStatus(Busy)
	e.notifyObserver()

	origin := e.CurrentState()
	if !contains(e.cfg.ReachableStates(origin), dest) {
		e.logger.Warn("transition rejected: unreachable destination", "origin", origin, "dest", dest)
		e.finishBusy()
		return fmt.Errorf("governor %s: %q is not reachable from %q", e.Name, dest, origin)
	}

	e.stateMu.Lock()
	e.next = dest
	e.stateMu.Unlock()

	if dest == origin {
		e.notifyObserver()
		e.finishBusy()
		return nil
	}

	e.metrics.TransitionStarted(e.Name)
	start := time.Now()
	err := e.runTransitionBody(ctx, origin, dest)
	e.metrics.TransitionCompleted(e.Name, dest, time.Since(start), err == nil)

	e.finishBusy()
	return err
}

// runTransitionBody covers steps 5-9 of spec.md §4.3: write-back,
// sequenced moves, commit, and unmonitoring devices outside the
// sequence. Errors are caught, logged, and terminate the attempt.
func (e *Engine) runTransitionBody(ctx context.Context, origin, dest string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic during transition", "origin", origin, "dest", dest, "recover", r)
			err = fmt.Errorf("governor %s: transition %s -> %s panicked: %v", e.Name, origin, dest, r)
		}
	}()

	if writeBackErr := e.writeBack(origin); writeBackErr != nil {
		e.logger.Error("write-back failed", "origin", origin, "error", writeBackErr)
		return writeBackErr
	}
	e.notifyObserver()

	seq, seqErr := e.cfg.Sequence(origin, dest)
	if seqErr != nil {
		return seqErr
	}

	destState := e.cfg.States[dest]
	moved := map[string]bool{}

	for _, step := range seq {
		if e.abortFlag.Load() || e.Status() == Fault {
			break
		}
		if stepErr := e.runStep(ctx, step, destState); stepErr != nil {
			e.logger.Error("step failed", "origin", origin, "dest", dest, "error", stepErr)
			return stepErr
		}
		for _, name := range step.Devices {
			moved[name] = true
		}
	}

	if !e.abortFlag.Load() && e.Status() != Fault {
		e.stateMu.Lock()
		e.current = dest
		e.stateMu.Unlock()
	}

	for name, d := range e.devices {
		if !moved[name] {
			d.AssignTarget(nil)
		}
	}

	e.notifyObserver()
	return nil
}

func (e *Engine) writeBack(state string) error {
	st, ok := e.cfg.States[state]
	if !ok {
		return nil
	}
	for name, target := range st.Targets {
		if !target.UpdateAfter {
			continue
		}
		dev, ok := e.devices[name]
		if !ok {
			continue
		}
		if err := e.SetDevicePosition(name, target.PositionName, dev.LiveValue(), true); err != nil {
			return fmt.Errorf("write-back %s/%s: %w", name, target.PositionName, err)
		}
	}
	return nil
}

func (e *Engine) runStep(ctx context.Context, step primitives.SequenceStep, destState primitives.StateConfig) error {
	if e.abortFlag.Load() || e.Status() == Fault {
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(step.Devices))
	for i, name := range step.Devices {
		dev, ok := e.devices[name]
		if !ok {
			return fmt.Errorf("device %q not found", name)
		}
		target, ok := destState.Targets[name]
		if !ok {
			return fmt.Errorf("device %q has no target in destination state", name)
		}
		wg.Add(1)
		go func(i int, d device.Device, target primitives.Target) {
			defer wg.Done()
			errs[i] = d.Move(ctx, target)
		}(i, dev, target)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	if e.abortFlag.Load() || e.Status() == Fault {
		return nil
	}

	for _, name := range step.Devices {
		dev := e.devices[name]
		if err := dev.Wait(ctx); err != nil {
			return err
		}
	}

	if e.abortFlag.Load() || e.Status() == Fault {
		return nil
	}

	for _, name := range step.Devices {
		dev := e.devices[name]
		target := destState.Targets[name]
		dev.AssignTarget(&target)
	}
	return nil
}

func (e *Engine) finishBusy() {
	e.stateMu.Lock()
	wasBusy := e.status == Busy
	e.stateMu.Unlock()
	if wasBusy {
		e.setStatus(Idle)
	}
	e.notifyObserver()
}

func (e *Engine) isEnabled() bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.enabled
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func joinSorted(set map[string]bool) string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	// small sets; simple insertion sort keeps this dependency-free
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ","
		}
		out += k
	}
	return out
}
