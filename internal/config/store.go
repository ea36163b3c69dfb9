// Package config implements ConfigStore: loading, validating, and
// committing the declarative governor configuration described in
// spec.md §4.1 and §6.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ocs-lab/governor/internal/primitives"
)

// shapeValidator runs struct-tag-level checks (required fields,
// non-empty names) that are orthogonal to the semantic cross-reference
// checks in primitives.GovernorConfig.Validate — it cannot express
// "device referenced by a state must exist", but it is cheap ground
// truth for "this field was left empty", matching how
// ipiton-alert-history-service layers go-playground/validator beneath
// its own business-rule checks.
var shapeValidator = validator.New()

// shapeConfig is the struct-tag-annotated shadow of primitives.GovernorConfig
// used only to run field-presence checks before the semantic pass.
type shapeConfig struct {
	Name      string `validate:"required"`
	InitState string `validate:"required"`
}

// Store owns exactly one on-disk governor configuration: it loads,
// validates, and commits edits back to the same file it was loaded
// from (spec.md §4.1).
type Store struct {
	path string
	cfg  *primitives.GovernorConfig
}

// Load reads and validates the configuration at path. requireTransitions
// mirrors primitives.GovernorConfig.Validate's flag: an engine needs an
// executable config; `--check-config` against a fragment does not.
func Load(path string, requireTransitions bool) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg primitives.GovernorConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := shapeValidator.Struct(shapeConfig{Name: cfg.Name, InitState: cfg.InitState}); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	if err := cfg.Validate(requireTransitions); err != nil {
		return nil, fmt.Errorf("config %s invalid: %w", path, err)
	}

	return &Store{path: path, cfg: &cfg}, nil
}

// Config returns a read-only view of the loaded configuration. Callers
// must not mutate the returned value's maps in place; use the Set*
// methods to make edits that go through validation and commit.
func (s *Store) Config() *primitives.GovernorConfig {
	return s.cfg
}

// SetStateDeviceLimit rebuilds the limits for (state, device), rejecting
// the edit if the resulting low > high, and commits the change to disk.
func (s *Store) SetStateDeviceLimit(state, device string, low, high float64) error {
	st, ok := s.cfg.States[state]
	if !ok {
		return fmt.Errorf("state %q not declared", state)
	}
	target, ok := st.Targets[device]
	if !ok {
		return fmt.Errorf("device %q has no target in state %q", device, state)
	}
	if low > high {
		return fmt.Errorf("rejected: low (%v) > high (%v)", low, high)
	}
	target.Limits = primitives.Limits{Low: low, High: high}
	st.Targets[device] = target
	s.cfg.States[state] = st
	return s.commit()
}

// SetDevicePosition rewrites the setpoint for a named position on a
// device and commits it. A missing value is rejected (spec.md §9's Open
// Question is resolved here as "return failure").
func (s *Store) SetDevicePosition(device, position string, value float64, hasValue bool) error {
	if !hasValue {
		return fmt.Errorf("rejected: no value supplied for %s/%s", device, position)
	}
	dev, ok := s.cfg.Devices[device]
	if !ok {
		return fmt.Errorf("device %q not declared", device)
	}
	if dev.Positions == nil {
		dev.Positions = map[string]float64{}
	}
	dev.Positions[position] = value
	s.cfg.Devices[device] = dev
	return s.commit()
}

// commit atomically rewrites the backing file. On failure the in-memory
// state is left untouched (spec.md §4.1/§7's "in-memory state is kept").
func (s *Store) commit() error {
	data, err := yaml.Marshal(s.cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".governor-config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace config %s: %w", s.path, err)
	}
	return nil
}

// LoadSyncFile reads the optional sync file described in spec.md §6: a
// mapping of device name to the list of position names that must stay
// numerically equal across every governor.
func LoadSyncFile(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sync file %s: %w", path, err)
	}
	var sync map[string][]string
	if err := yaml.Unmarshal(data, &sync); err != nil {
		return nil, fmt.Errorf("parse sync file %s: %w", path, err)
	}
	return sync, nil
}
