package registry

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ocs-lab/governor/internal/bus"
	"github.com/ocs-lab/governor/internal/device"
	"github.com/ocs-lab/governor/internal/engine"
)

type fakeConfigWriter struct {
	mu    sync.Mutex
	calls map[string]float64
}

func newFakeConfigWriter() *fakeConfigWriter {
	return &fakeConfigWriter{calls: map[string]float64{}}
}

func (w *fakeConfigWriter) SetDevicePosition(device, position string, value float64, hasValue bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls[device+"/"+position] = value
	return nil
}

func (w *fakeConfigWriter) valueOf(device, position string) (float64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.calls[device+"/"+position]
	return v, ok
}

// countingBus wraps a real bus.DefaultBus purely to count publishes in
// tests; BusAdapter only ever needs the bus.Bus contract.
type countingBus struct {
	*bus.DefaultBus
	mu sync.Mutex
	n  int
}

func newNoopBus() *countingBus {
	return &countingBus{DefaultBus: bus.New(slog.Default(), nil)}
}

func (b *countingBus) Publish(channel string, payload interface{}) error {
	b.mu.Lock()
	b.n++
	b.mu.Unlock()
	return b.DefaultBus.Publish(channel, payload)
}

func (b *countingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

// recordingBus wraps a real bus.DefaultBus to capture every channel name
// a publish landed on, so tests can assert the full per-state/per-
// transition/per-device surface actually fires rather than just counting.
type recordingBus struct {
	*bus.DefaultBus
	mu       sync.Mutex
	channels map[string]bool
}

func newRecordingBus() *recordingBus {
	return &recordingBus{DefaultBus: bus.New(slog.Default(), nil), channels: map[string]bool{}}
}

func (b *recordingBus) Publish(channel string, payload interface{}) error {
	b.mu.Lock()
	b.channels[channel] = true
	b.mu.Unlock()
	return b.DefaultBus.Publish(channel, payload)
}

func (b *recordingBus) saw(channel string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels[channel]
}

func newEngineWithWriter(t *testing.T, name string, writer *fakeConfigWriter) *engine.Engine {
	t.Helper()
	faults := make(chan device.FaultEvent, 8)
	devices, err := device.BuildAll(sampleConfig(name).Devices, faults)
	require.NoError(t, err)
	return engine.New(sampleConfig(name), devices, faults, writer, slog.Default(), nil)
}

func TestBusAdapter_SyncedPositionEditUpdatesBothEngines(t *testing.T) {
	reg := New()
	w1 := newFakeConfigWriter()
	w2 := newFakeConfigWriter()
	g1 := newEngineWithWriter(t, "G1", w1)
	g2 := newEngineWithWriter(t, "G2", w2)
	require.NoError(t, reg.Register("G1", g1))
	require.NoError(t, reg.Register("G2", g2))

	b := newNoopBus()
	adapter := NewAdapter(reg, b, "Gov", map[string][]string{"motorA": {"In"}}, slog.Default())

	require.NoError(t, adapter.SetDevicePosition("G1", "motorA", "In", 7.5))

	v1, ok1 := w1.valueOf("motorA", "In")
	require.True(t, ok1)
	require.Equal(t, 7.5, v1)

	v2, ok2 := w2.valueOf("motorA", "In")
	require.True(t, ok2)
	require.Equal(t, 7.5, v2)
}

func TestBusAdapter_UnsyncedPositionEditOnlyUpdatesTarget(t *testing.T) {
	reg := New()
	w1 := newFakeConfigWriter()
	w2 := newFakeConfigWriter()
	g1 := newEngineWithWriter(t, "G1", w1)
	g2 := newEngineWithWriter(t, "G2", w2)
	require.NoError(t, reg.Register("G1", g1))
	require.NoError(t, reg.Register("G2", g2))

	b := newNoopBus()
	adapter := NewAdapter(reg, b, "Gov", nil, slog.Default())

	require.NoError(t, adapter.SetDevicePosition("G1", "motorA", "In", 3))

	_, ok1 := w1.valueOf("motorA", "In")
	require.True(t, ok1)
	_, ok2 := w2.valueOf("motorA", "In")
	require.False(t, ok2)
}

func TestBusAdapter_UpdatePublishesSnapshotChannels(t *testing.T) {
	reg := New()
	g1 := newEngine(t, "G1")
	require.NoError(t, reg.Register("G1", g1))

	b := newNoopBus()
	adapter := NewAdapter(reg, b, "Gov", nil, slog.Default())
	g1.SetObserver(adapter)

	g1.Start(context.Background())
	defer g1.Stop()

	require.Eventually(t, func() bool { return b.count() > 0 }, time.Second, time.Millisecond)
}

// TestBusAdapter_UpdatePublishesFullStatusSurface asserts every
// per-state, per-transition, and per-device channel actually fires, not
// just that some channel fired.
func TestBusAdapter_UpdatePublishesFullStatusSurface(t *testing.T) {
	reg := New()
	g1 := newEngine(t, "G1")
	require.NoError(t, reg.Register("G1", g1))

	b := newRecordingBus()
	adapter := NewAdapter(reg, b, "Gov", nil, slog.Default())
	g1.SetObserver(adapter)

	g1.Start(context.Background())
	defer g1.Stop()

	require.Eventually(t, func() bool { return b.saw(bus.EngineStateI("Gov", "G1")) }, time.Second, time.Millisecond)

	require.True(t, b.saw(bus.EngineStatesI("Gov", "G1")))
	require.True(t, b.saw(bus.EngineDevsI("Gov", "G1")))

	require.True(t, b.saw(bus.StateActiveSts("Gov", "G1", "Off")))
	require.True(t, b.saw(bus.StateReachSts("Gov", "G1", "Off")))
	require.True(t, b.saw(bus.StateActiveSts("Gov", "G1", "On")))
	require.True(t, b.saw(bus.StateReachSts("Gov", "G1", "On")))
	require.True(t, b.saw(bus.StateDeviceLowLimit("Gov", "G1", "Off", "motorA")))
	require.True(t, b.saw(bus.StateDeviceHighLimit("Gov", "G1", "Off", "motorA")))

	require.True(t, b.saw(bus.TransitionActiveSts("Gov", "G1", "Off", "On")))
	require.True(t, b.saw(bus.TransitionReachSts("Gov", "G1", "Off", "On")))

	require.True(t, b.saw(bus.DeviceTargetsI("Gov", "G1", "motorA")))
}

func TestBusAdapter_GoEnqueuesAndCompletesAsync(t *testing.T) {
	reg := New()
	g1 := newEngine(t, "G1")
	require.NoError(t, reg.Register("G1", g1))
	g1.Start(context.Background())
	defer g1.Stop()

	b := newNoopBus()
	adapter := NewAdapter(reg, b, "Gov", nil, slog.Default())
	adapter.Start(context.Background())
	defer adapter.Stop()

	adapter.Go("G1", "On")

	require.Eventually(t, func() bool { return g1.CurrentState() == "On" }, time.Second, time.Millisecond)
}
