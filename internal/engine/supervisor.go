package engine

import (
	"context"
	"time"
)

// healthScanInterval is the periodic health-scan deadline spec.md §4.3/§5
// describes ("blocks on the engine's event queue with a 0.5s timeout").
const healthScanInterval = 500 * time.Millisecond

// supervisor is the fault-handling event loop (spec.md §4.3). It owns the
// three fault sets and the abort flag; the transition worker only reads
// e.abortFlag between steps, never the event queue itself.
func (e *Engine) supervisor(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(healthScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case ev := <-e.events:
			e.handleEvent(ev)
		case <-ticker.C:
			e.healthScan()
		}
	}
}

// faultForwarder is the single reader of the devices' shared fault
// channel; it translates each device.FaultEvent into the supervisor's
// own Event vocabulary and enqueues it (spec.md §5).
func (e *Engine) faultForwarder(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case fe := <-e.faults:
			kind, ok := faultKindToEventKind[fe.Kind]
			if !ok {
				continue
			}
			e.enqueueEvent(Event{Kind: kind, Device: fe.Device, At: fe.At})
		}
	}
}

func (e *Engine) handleEvent(ev Event) {
	e.logger.Warn("supervisor event", "kind", ev.Kind, "device", ev.Device)
	e.metrics.FaultObserved(e.Name, ev.Kind)

	e.abortFlag.Store(true)
	e.setState(e.cfg.InitState)

	if ev.Kind == EventAbort {
		for _, d := range e.devices {
			_ = d.Stop()
		}
	}

	e.healthScan()
}

// healthScan recomputes the three fault sets from device predicates and
// updates Status accordingly (spec.md §4.3's health-scan rule). Only
// effective while the governor is enabled — a Disabled governor never
// enters Fault.
func (e *Engine) healthScan() {
	disconnected := map[string]bool{}
	alarmed := map[string]bool{}
	notHomed := map[string]bool{}

	for name, d := range e.devices {
		if !d.Connected() {
			disconnected[name] = true
		}
		if d.Alarmed() {
			alarmed[name] = true
		}
		if !d.Homed() {
			notHomed[name] = true
		}
	}

	unhealthy := len(disconnected) > 0 || len(alarmed) > 0 || len(notHomed) > 0

	e.stateMu.Lock()
	e.disconnected = disconnected
	e.alarmed = alarmed
	e.notHomed = notHomed
	wasFault := e.status == Fault
	enabled := e.enabled
	e.stateMu.Unlock()

	switch {
	case unhealthy && enabled:
		e.setState(e.cfg.InitState)
		e.setStatus(Fault)
	case !unhealthy && wasFault:
		e.setStatus(Idle)
	}

	e.notifyObserver()
}
