// Package registry implements GovernorRegistry and BusAdapter (spec.md
// §4.4): the multi-engine holder that marks exactly one engine active,
// and the translation layer between external bus commands and engine
// operations.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ocs-lab/governor/internal/engine"
	"github.com/ocs-lab/governor/internal/primitives"
)

// GovernorRegistry holds an insertion-ordered set of engines, exactly
// one of which is active. The registry exclusively owns the engines
// (spec.md §3's ownership rule); it never mutates an engine's devices or
// catalog, only its enabled flag via SetEnabled.
type GovernorRegistry struct {
	mu      sync.Mutex
	order   []string
	engines map[string]*engine.Engine
	active  string
}

// New constructs an empty registry.
func New() *GovernorRegistry {
	return &GovernorRegistry{engines: make(map[string]*engine.Engine)}
}

// Register adds e under name, preserving insertion order. The first
// registered engine starts active; every subsequent one starts disabled.
func (r *GovernorRegistry) Register(name string, e *engine.Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.engines[name]; exists {
		return fmt.Errorf("registry: governor %q already registered", name)
	}
	r.engines[name] = e
	r.order = append(r.order, name)
	if r.active == "" {
		r.active = name
	} else {
		e.SetEnabled(false)
	}
	return nil
}

// Names returns every registered governor name in insertion order.
func (r *GovernorRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Engine looks up a governor by name.
func (r *GovernorRegistry) Engine(name string) (*engine.Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[name]
	return e, ok
}

// ActiveName returns the name of the currently active governor.
func (r *GovernorRegistry) ActiveName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Active returns the currently active engine.
func (r *GovernorRegistry) Active() (*engine.Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[r.active]
	return e, ok
}

// SetActive switches the active governor to name, rejecting the switch
// if the current active engine is Busy (spec.md §4.4).
func (r *GovernorRegistry) SetActive(name string) error {
	r.mu.Lock()
	current, hasCurrent := r.engines[r.active]
	next, ok := r.engines[name]
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("registry: unknown governor %q", name)
	}
	if hasCurrent && current.Status() == engine.Busy {
		return fmt.Errorf("registry: cannot switch active governor while %q is Busy", r.active)
	}
	if hasCurrent {
		if err := current.SetEnabled(false); err != nil {
			return err
		}
	}
	if err := next.SetEnabled(true); err != nil {
		return err
	}

	r.mu.Lock()
	r.active = name
	r.mu.Unlock()
	return nil
}

// StatusSummary implements bus.StatusProvider: a JSON-friendly snapshot
// of every registered governor.
func (r *GovernorRegistry) StatusSummary() map[string]interface{} {
	r.mu.Lock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	active := r.active
	r.mu.Unlock()

	governors := make(map[string]interface{}, len(names))
	for _, name := range names {
		e, ok := r.Engine(name)
		if !ok {
			continue
		}
		cfg := e.Config()
		governors[name] = map[string]interface{}{
			"snapshot":   e.Snapshot(),
			"init_state": cfg.InitState,
			"states":     stateNames(cfg.States),
			"devices":    deviceNames(cfg.Devices),
		}
	}
	return map[string]interface{}{
		"active":    active,
		"governors": governors,
	}
}

func stateNames(states map[string]primitives.StateConfig) []string {
	out := make([]string, 0, len(states))
	for name := range states {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func deviceNames(devices map[string]primitives.DeviceConfig) []string {
	out := make([]string, 0, len(devices))
	for name := range devices {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
