package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
name: plant
init_state: Off
devices:
  valve:
    name: valve
    type: two_position_actuator
    timeout: 5s
    pv: VALVE:POS
  motorA:
    name: motorA
    type: analog_positioner
    timeout: 30s
    pv: MOTORA
    tolerance: 0.1
    positions:
      In: 0
      Out: 10
states:
  Off:
    name: Off
    targets:
      valve:
        target: Closed
        limits: {low: 0, high: 0}
      motorA:
        target: In
        limits: {low: -0.5, high: 0.5}
  On:
    name: On
    targets:
      valve:
        target: Open
        limits: {low: 0, high: 0}
      motorA:
        target: Out
        limits: {low: -0.5, high: 0.5}
transitions:
  Off:
    On:
      - valve
      - [motorA]
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "governor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	store, err := Load(path, true)
	require.NoError(t, err)
	require.Equal(t, "Off", store.Config().InitState)
	require.Len(t, store.Config().Devices, 2)
}

func TestLoad_InvalidConfigReportsAllErrors(t *testing.T) {
	path := writeTemp(t, "name: plant\ninit_state: Off\n")
	_, err := Load(path, true)
	require.Error(t, err)
	require.Contains(t, err.Error(), "devices is required")
	require.Contains(t, err.Error(), "states is required")
}

func TestSetStateDeviceLimit_RoundTrips(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	store, err := Load(path, true)
	require.NoError(t, err)

	require.NoError(t, store.SetStateDeviceLimit("Off", "motorA", -1, 1))

	reloaded, err := Load(path, true)
	require.NoError(t, err)
	target := reloaded.Config().States["Off"].Targets["motorA"]
	require.Equal(t, -1.0, target.Limits.Low)
	require.Equal(t, 1.0, target.Limits.High)
}

func TestSetStateDeviceLimit_RejectsLowAboveHigh(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	store, err := Load(path, true)
	require.NoError(t, err)

	err = store.SetStateDeviceLimit("Off", "motorA", 5, 1)
	require.Error(t, err)

	reloaded, err := Load(path, true)
	require.NoError(t, err)
	target := reloaded.Config().States["Off"].Targets["motorA"]
	require.Equal(t, -0.5, target.Limits.Low) // unchanged on disk
}

func TestSetDevicePosition_RejectsMissingValue(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	store, err := Load(path, true)
	require.NoError(t, err)

	err = store.SetDevicePosition("motorA", "In", 0, false)
	require.Error(t, err)
}

func TestSetDevicePosition_RoundTrips(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	store, err := Load(path, true)
	require.NoError(t, err)

	require.NoError(t, store.SetDevicePosition("motorA", "In", 7.5, true))

	reloaded, err := Load(path, true)
	require.NoError(t, err)
	require.Equal(t, 7.5, reloaded.Config().Devices["motorA"].Positions["In"])
}

func TestLoadSyncFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("motorA:\n  - In\n"), 0o644))

	sync, err := LoadSyncFile(path)
	require.NoError(t, err)
	require.Equal(t, []string{"In"}, sync["motorA"])
}
