package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ocs-lab/governor/internal/device"
	"github.com/ocs-lab/governor/internal/primitives"
)

// Metrics is the pluggable instrumentation seam Engine reports through;
// the production implementation lives in package metrics (Prometheus).
// Modeled on the teacher's ActionRunner/GuardEvaluator pluggable-interface
// shape: nil-safe via a no-op default, never imported directly by Engine.
type Metrics interface {
	TransitionStarted(governor string)
	TransitionCompleted(governor string, dest string, d time.Duration, ok bool)
	FaultObserved(governor string, kind EventKind)
	StatusChanged(governor string, status Status)
}

type nopMetrics struct{}

func (nopMetrics) TransitionStarted(string)                                {}
func (nopMetrics) TransitionCompleted(string, string, time.Duration, bool) {}
func (nopMetrics) FaultObserved(string, EventKind)                         {}
func (nopMetrics) StatusChanged(string, Status)                           {}

// ConfigWriter is the slice of config.Store the engine needs: committing
// write-back edits for update_after targets and position edits. Limit
// edits are committed only when the writer also has config.Store's
// SetStateDeviceLimit method (see Engine.SetStateDeviceLimit).
// Declared here (rather than importing package config) so engine stays
// the inner, config-agnostic tier — mirrors the teacher's core package
// depending only on primitives, never on production.
type ConfigWriter interface {
	SetDevicePosition(device, position string, value float64, hasValue bool) error
}

// Engine is the state-machine driver for one governor: it owns its
// devices, its state/transition catalog, the current/next-state pair,
// status, fault-tracking sets, and the event queue (spec.md §3/§4.3).
type Engine struct {
	Name string

	cfg     *primitives.GovernorConfig
	devices map[string]device.Device
	writer  ConfigWriter

	logger  *slog.Logger
	metrics Metrics

	observer   Observer
	observerMu sync.Mutex

	// transitionMu serializes do_transition calls: "at most one
	// transition per engine runs at any time" (spec.md §5).
	transitionMu sync.Mutex

	// stateMu guards current/next/status/enabled/fault sets, read by the
	// observer snapshot and written by both the transition worker and
	// the supervisor.
	stateMu      sync.Mutex
	current      string
	next         string
	status       Status
	enabled      bool
	disconnected map[string]bool
	alarmed      map[string]bool
	notHomed     map[string]bool

	abortFlag atomic.Bool

	faults chan device.FaultEvent
	events chan Event
	queue  chan transitionRequest

	stopCh chan struct{}
	wg     sync.WaitGroup
}

type transitionRequest struct {
	dest string
	done func(error)
}

// New constructs an Engine. devices must already be built via
// device.BuildAll using the same faults channel passed here, so the
// engine is the faults channel's sole reader (spec.md §5).
func New(cfg *primitives.GovernorConfig, devices map[string]device.Device, faults chan device.FaultEvent, writer ConfigWriter, logger *slog.Logger, metrics Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if faults == nil {
		faults = make(chan device.FaultEvent, 64)
	}
	return &Engine{
		Name:         cfg.Name,
		cfg:          cfg,
		devices:      devices,
		writer:       writer,
		logger:       logger.With("governor", cfg.Name),
		metrics:      metrics,
		observer:     NopObserver{},
		current:      cfg.InitState,
		next:         cfg.InitState,
		status:       Idle,
		enabled:      true,
		disconnected: map[string]bool{},
		alarmed:      map[string]bool{},
		notHomed:     map[string]bool{},
		faults:       faults,
		events:       make(chan Event, 64),
		queue:        make(chan transitionRequest, 16),
		stopCh:       make(chan struct{}),
	}
}

// SetObserver installs the snapshot observer (typically the BusAdapter).
func (e *Engine) SetObserver(o Observer) {
	e.observerMu.Lock()
	defer e.observerMu.Unlock()
	if o == nil {
		o = NopObserver{}
	}
	e.observer = o
}

// Start launches the transition worker, the fault supervisor, and the
// fault forwarder, then publishes an initial snapshot. Safe to
// call once; callers should Stop before discarding an Engine.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(3)
	go e.transitionWorker(ctx)
	go e.supervisor(ctx)
	go e.faultForwarder(ctx)
	e.notifyObserver()
}

// Stop signals all three long-lived goroutines to exit and waits for them.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}

// --- snapshot / status ---

func (e *Engine) notifyObserver() {
	e.observerMu.Lock()
	obs := e.observer
	e.observerMu.Unlock()
	obs.Update(e.Snapshot())
}

// Snapshot returns a copy-by-value of the engine's externally visible
// state (spec.md §5/§9: "the snapshot passed to update() must be a
// copy").
func (e *Engine) Snapshot() Snapshot {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	current, next, status, enabled := e.current, e.next, e.status, e.enabled
	reachable := e.cfg.ReachableStates(current)
	reachableSet := make(map[string]bool, len(reachable))
	for _, name := range reachable {
		reachableSet[name] = true
	}
	canMove := enabled && status == Idle

	stateNames := make([]string, 0, len(e.cfg.States))
	states := make(map[string]StateSnapshot, len(e.cfg.States))
	for name, st := range e.cfg.States {
		stateNames = append(stateNames, name)
		limits := make(map[string]primitives.Limits, len(st.Targets))
		for device, target := range st.Targets {
			limits[device] = target.Limits
		}
		states[name] = StateSnapshot{
			Active:    name == current,
			Reachable: canMove && reachableSet[name],
			Limits:    limits,
		}
	}
	sort.Strings(stateNames)

	flat := e.cfg.FlatTransitions()
	transitions := make([]TransitionSnapshot, 0, len(flat))
	for _, tr := range flat {
		transitions = append(transitions, TransitionSnapshot{
			Origin:      tr.Origin,
			Destination: tr.Destination,
			Active:      tr.Origin == current && tr.Destination == next,
			Reachable:   tr.Origin == current && canMove && reachableSet[tr.Destination],
		})
	}

	deviceNames := make([]string, 0, len(e.cfg.Devices))
	devices := make(map[string]DeviceSnapshot, len(e.cfg.Devices))
	for name, dc := range e.cfg.Devices {
		deviceNames = append(deviceNames, name)
		targetNames := make([]string, 0, len(dc.Positions))
		positions := make(map[string]float64, len(dc.Positions))
		for posName, value := range dc.Positions {
			targetNames = append(targetNames, posName)
			positions[posName] = value
		}
		sort.Strings(targetNames)
		devices[name] = DeviceSnapshot{TargetNames: targetNames, Positions: positions}
	}
	sort.Strings(deviceNames)

	return Snapshot{
		Name:            e.Name,
		CurrentState:    current,
		NextState:       next,
		Status:          status,
		StatusMessage:   e.statusMessageLocked(),
		ReachableStates: reachable,
		StateNames:      stateNames,
		DeviceNames:     deviceNames,
		States:          states,
		Transitions:     transitions,
		Devices:         devices,
	}
}

// statusMessageLocked implements spec.md §4.3's status_message builder.
// Caller must hold stateMu.
func (e *Engine) statusMessageLocked() string {
	if e.status == Disabled {
		return "disabled"
	}
	if e.status == Fault {
		msg := ""
		if len(e.disconnected) > 0 {
			msg += fmt.Sprintf("disconn(%s) ", joinSorted(e.disconnected))
		}
		if len(e.alarmed) > 0 {
			msg += fmt.Sprintf("alarm(%s) ", joinSorted(e.alarmed))
		}
		if len(e.notHomed) > 0 {
			msg += fmt.Sprintf("!homed(%s) ", joinSorted(e.notHomed))
		}
		if msg == "" {
			return "fault"
		}
		return msg
	}
	if e.current == e.next {
		return fmt.Sprintf("state %s", e.current)
	}
	return fmt.Sprintf("transition %s to %s", e.current, e.next)
}

func (e *Engine) setStatus(s Status) {
	e.stateMu.Lock()
	changed := e.status != s
	e.status = s
	e.stateMu.Unlock()
	if changed {
		e.metrics.StatusChanged(e.Name, s)
	}
}

// setState forces current=next=state and clears every device's assigned
// target (spec.md's Fault/Disabled/activation transitions all funnel
// through this).
func (e *Engine) setState(state string) {
	e.stateMu.Lock()
	e.current = state
	e.next = state
	e.stateMu.Unlock()
	for _, d := range e.devices {
		d.AssignTarget(nil)
	}
}

// Status returns the current lifecycle status.
func (e *Engine) Status() Status {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.status
}

// Config returns the governor's declarative configuration. Callers must
// treat it as read-only; edits go through SetStateDeviceLimit/
// SetDevicePosition so they're validated and committed.
func (e *Engine) Config() *primitives.GovernorConfig {
	return e.cfg
}

// CurrentState returns the current state name.
func (e *Engine) CurrentState() string {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.current
}

// ReachableStates returns origin (default: current state) plus every
// state directly reachable from it, including the implicit reset edge.
func (e *Engine) ReachableStates(origin string) []string {
	if origin == "" {
		origin = e.CurrentState()
	}
	return e.cfg.ReachableStates(origin)
}
