package registry

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ocs-lab/governor/internal/device"
	"github.com/ocs-lab/governor/internal/engine"
	"github.com/ocs-lab/governor/internal/primitives"
)

func sampleConfig(name string) *primitives.GovernorConfig {
	return &primitives.GovernorConfig{
		Name:      name,
		InitState: "Off",
		Devices: map[string]primitives.DeviceConfig{
			"motorA": {Name: "motorA", Type: primitives.DeviceDummy},
		},
		States: map[string]primitives.StateConfig{
			"Off": {Name: "Off", Targets: map[string]primitives.Target{
				"motorA": {PositionName: "In", Limits: primitives.Limits{Low: -1, High: 1}},
			}},
			"On": {Name: "On", Targets: map[string]primitives.Target{
				"motorA": {PositionName: "Out", Limits: primitives.Limits{Low: -1, High: 1}},
			}},
		},
		Transitions: map[string]map[string][]primitives.SequenceStep{
			"Off": {"On": {primitives.Single("motorA")}},
		},
	}
}

func newEngine(t *testing.T, name string) *engine.Engine {
	t.Helper()
	faults := make(chan device.FaultEvent, 8)
	devices, err := device.BuildAll(sampleConfig(name).Devices, faults)
	require.NoError(t, err)
	return engine.New(sampleConfig(name), devices, faults, nil, slog.Default(), nil)
}

func TestRegistry_FirstRegisteredIsActive(t *testing.T) {
	reg := New()
	g1 := newEngine(t, "G1")
	g2 := newEngine(t, "G2")

	require.NoError(t, reg.Register("G1", g1))
	require.NoError(t, reg.Register("G2", g2))

	require.Equal(t, "G1", reg.ActiveName())
	active, ok := reg.Active()
	require.True(t, ok)
	require.Equal(t, g1, active)
}

func TestRegistry_SetActiveSucceedsAfterTransitionCompletes(t *testing.T) {
	reg := New()
	g1 := newEngine(t, "G1")
	g2 := newEngine(t, "G2")
	require.NoError(t, reg.Register("G1", g1))
	require.NoError(t, reg.Register("G2", g2))

	g1.Start(context.Background())
	defer g1.Stop()

	done := make(chan struct{})
	g1.RequestTransition("On", func(error) { close(done) })
	// Waiting on done means G1 has left Busy before SetActive runs, so
	// this exercises the non-busy switch path.
	<-done

	require.NoError(t, reg.SetActive("G2"))
	require.Equal(t, "G2", reg.ActiveName())
}

func TestRegistry_DuplicateRegistrationRejected(t *testing.T) {
	reg := New()
	g1 := newEngine(t, "G1")
	require.NoError(t, reg.Register("G1", g1))
	require.Error(t, reg.Register("G1", g1))
}
