package device

import (
	"context"

	"github.com/ocs-lab/governor/internal/primitives"
)

// Dummy is the no-I/O device variant: every operation succeeds
// immediately and every predicate reports healthy (spec.md §4.2).
type Dummy struct {
	name   string
	target *primitives.Target
}

func newDummyFromConfig(cfg primitives.DeviceConfig, _ chan<- FaultEvent) (Device, error) {
	return &Dummy{name: cfg.Name}, nil
}

func (d *Dummy) Name() string { return d.name }

func (d *Dummy) Move(ctx context.Context, target primitives.Target) error {
	d.target = nil
	return nil
}

func (d *Dummy) Wait(ctx context.Context) error { return nil }

func (d *Dummy) Stop() error { return nil }

func (d *Dummy) AssignTarget(target *primitives.Target) { d.target = target }

func (d *Dummy) Connected() bool { return true }
func (d *Dummy) Alarmed() bool   { return false }
func (d *Dummy) Homed() bool     { return true }
func (d *Dummy) Done() bool      { return true }

func (d *Dummy) LiveValue() float64 { return 0 }

func (d *Dummy) CurrentTarget() *primitives.Target { return d.target }
