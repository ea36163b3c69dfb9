package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ocs-lab/governor/internal/bus"
	"github.com/ocs-lab/governor/internal/engine"
)

// syncKey identifies one (device, position) pair that must stay
// numerically equal across every engine (spec.md §4.4).
type syncKey struct {
	device   string
	position string
}

// goRequest is one item on the adapter's own transition-request queue —
// spec.md §4.4/§5: "a separate worker thread in the adapter runs
// transitions so bus callbacks are non-blocking."
type goRequest struct {
	governor string
	dest     string
}

// BusAdapter routes bus commands to the active/named engine and
// republishes every engine snapshot to the bus. It implements
// engine.Observer; install it on every engine via Engine.SetObserver.
type BusAdapter struct {
	registry *GovernorRegistry
	bus      bus.Bus
	prefix   string
	logger   *slog.Logger

	syncMu sync.RWMutex
	sync   map[syncKey]bool // (device, position) pairs kept in lockstep

	killFunc func()

	queue  chan goRequest
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewAdapter builds a BusAdapter. sync maps device name to the list of
// position names that must be kept equal across every engine (the
// optional sync file, spec.md §6).
func NewAdapter(reg *GovernorRegistry, b bus.Bus, prefix string, sync map[string][]string, logger *slog.Logger) *BusAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &BusAdapter{
		registry: reg,
		bus:      b,
		prefix:   prefix,
		logger:   logger.With("component", "bus_adapter"),
		sync:     buildSyncSet(sync),
		killFunc: defaultKillFunc,
		queue:    make(chan goRequest, 64),
		stopCh:   make(chan struct{}),
	}
}

func buildSyncSet(sync map[string][]string) map[syncKey]bool {
	syncSet := make(map[syncKey]bool)
	for device, positions := range sync {
		for _, position := range positions {
			syncSet[syncKey{device: device, position: position}] = true
		}
	}
	return syncSet
}

// ReplaceSync swaps in a freshly loaded sync mapping, used by the
// fsnotify-driven sync-file watcher to live-reload without a restart
// (spec.md §6's optional sync file, expansion's config-watching ambient
// concern).
func (a *BusAdapter) ReplaceSync(sync map[string][]string) {
	syncSet := buildSyncSet(sync)
	a.syncMu.Lock()
	a.sync = syncSet
	a.syncMu.Unlock()
}

// SetKillFunc overrides the action taken on a Global Kill-Cmd pulse.
// cmd/governor sets this to os.Exit(0); tests may leave the default no-op.
func (a *BusAdapter) SetKillFunc(f func()) {
	a.killFunc = f
}

// Start launches the adapter's own transition worker and subscribes to
// every inbound command channel for the governors already registered.
func (a *BusAdapter) Start(ctx context.Context) {
	a.wg.Add(1)
	go a.worker(ctx)
	a.subscribeCommands(ctx)
}

// Stop signals the worker to exit and waits for it.
func (a *BusAdapter) Stop() {
	close(a.stopCh)
	a.wg.Wait()
}

func (a *BusAdapter) worker(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-a.stopCh:
			return
		case <-ctx.Done():
			return
		case req := <-a.queue:
			a.dispatch(req)
		}
	}
}

func (a *BusAdapter) dispatch(req goRequest) {
	e, ok := a.registry.Engine(req.governor)
	if !ok {
		a.logger.Warn("go command for unknown governor", "governor", req.governor)
		return
	}
	done := make(chan struct{})
	e.RequestTransition(req.dest, func(err error) {
		if err != nil {
			a.logger.Warn("transition failed", "governor", req.governor, "dest", req.dest, "error", err)
		}
		close(done)
	})
	<-done
}

// Go enqueues a Go-Cmd for the named governor; the bus callback that
// calls this must never block, which is why it only enqueues.
func (a *BusAdapter) Go(governor, dest string) {
	select {
	case a.queue <- goRequest{governor: governor, dest: dest}:
	default:
		a.logger.Warn("adapter transition queue full, dropping go command", "governor", governor, "dest", dest)
	}
}

// Abort aborts one engine; AbortAll aborts every registered engine
// (the global Abort-Cmd channel in spec.md §6).
func (a *BusAdapter) Abort(governor string) error {
	e, ok := a.registry.Engine(governor)
	if !ok {
		return fmt.Errorf("adapter: unknown governor %q", governor)
	}
	e.Abort()
	return nil
}

func (a *BusAdapter) AbortAll() {
	for _, name := range a.registry.Names() {
		if e, ok := a.registry.Engine(name); ok {
			e.Abort()
		}
	}
}

// SelectActive forwards to the registry and republishes Active-Sel.
func (a *BusAdapter) SelectActive(governor string) error {
	if err := a.registry.SetActive(governor); err != nil {
		return err
	}
	a.bus.Publish(bus.GlobalActiveSel(a.prefix), governor)
	return nil
}

// SetStateDeviceLimit forwards to the named engine only: limits are
// per-state, per-engine, never synchronized (spec.md §4.4 only
// synchronizes device positions).
func (a *BusAdapter) SetStateDeviceLimit(governor, state, device string, low, high float64) error {
	e, ok := a.registry.Engine(governor)
	if !ok {
		return fmt.Errorf("adapter: unknown governor %q", governor)
	}
	return e.SetStateDeviceLimit(state, device, low, high)
}

// SetDevicePosition applies a position edit to the named engine, and —
// if (device, position) is a synchronized pair — to every other engine
// too, updating both their in-memory config and on-disk file (spec.md
// §8 scenario 6).
func (a *BusAdapter) SetDevicePosition(governor, device, position string, value float64) error {
	e, ok := a.registry.Engine(governor)
	if !ok {
		return fmt.Errorf("adapter: unknown governor %q", governor)
	}
	if err := e.SetDevicePosition(device, position, value, true); err != nil {
		return err
	}

	a.syncMu.RLock()
	synced := a.sync[syncKey{device: device, position: position}]
	a.syncMu.RUnlock()
	if !synced {
		return nil
	}

	for _, name := range a.registry.Names() {
		if name == governor {
			continue
		}
		other, ok := a.registry.Engine(name)
		if !ok {
			continue
		}
		if err := other.SetDevicePosition(device, position, value, true); err != nil {
			a.logger.Warn("synchronized position edit failed on peer governor",
				"governor", name, "device", device, "position", position, "error", err)
		}
	}
	return nil
}

// Update implements engine.Observer: it republishes the snapshot's
// fields onto the channel names spec.md §6 templates — the engine-level
// channels plus the full per-state, per-transition, and per-device
// surface. Install via Engine.SetObserver(adapter) for every registered
// engine.
func (a *BusAdapter) Update(s engine.Snapshot) {
	a.bus.Publish(bus.EngineStatusSts(a.prefix, s.Name), s.Status.String())
	a.bus.Publish(bus.EngineMsgSts(a.prefix, s.Name), s.StatusMessage)
	a.bus.Publish(bus.EngineStatesI(a.prefix, s.Name), s.StateNames)
	a.bus.Publish(bus.EngineDevsI(a.prefix, s.Name), s.DeviceNames)
	a.bus.Publish(bus.EngineStateI(a.prefix, s.Name), s.CurrentState)
	a.bus.Publish(bus.EngineReachI(a.prefix, s.Name), s.ReachableStates)
	a.bus.Publish(bus.EngineBusySts(a.prefix, s.Name), s.Status == engine.Busy)

	for state, snap := range s.States {
		a.bus.Publish(bus.StateActiveSts(a.prefix, s.Name, state), snap.Active)
		a.bus.Publish(bus.StateReachSts(a.prefix, s.Name, state), snap.Reachable)
		for device, limits := range snap.Limits {
			a.bus.Publish(bus.StateDeviceLowLimit(a.prefix, s.Name, state, device), limits.Low)
			a.bus.Publish(bus.StateDeviceHighLimit(a.prefix, s.Name, state, device), limits.High)
		}
	}

	for _, tr := range s.Transitions {
		a.bus.Publish(bus.TransitionActiveSts(a.prefix, s.Name, tr.Origin, tr.Destination), tr.Active)
		a.bus.Publish(bus.TransitionReachSts(a.prefix, s.Name, tr.Origin, tr.Destination), tr.Reachable)
	}

	for device, snap := range s.Devices {
		a.bus.Publish(bus.DeviceTargetsI(a.prefix, s.Name, device), snap.TargetNames)
		for position, value := range snap.Positions {
			a.bus.Publish(bus.DevicePositionPos(a.prefix, s.Name, device, position), value)
		}
	}
}
