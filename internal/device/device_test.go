package device

import (
	"context"
	"testing"
	"time"

	"github.com/ocs-lab/governor/internal/primitives"
	"github.com/stretchr/testify/require"
)

func TestDummy_AlwaysHealthyAndImmediate(t *testing.T) {
	d, err := New(primitives.DeviceConfig{Name: "d", Type: primitives.DeviceDummy, Timeout: primitives.Duration(time.Second)}, nil)
	require.NoError(t, err)

	require.NoError(t, d.Move(context.Background(), primitives.Target{PositionName: "anything"}))
	require.NoError(t, d.Wait(context.Background()))
	require.True(t, d.Done())
	require.True(t, d.Connected())
	require.True(t, d.Homed())
	require.False(t, d.Alarmed())
}

func newAnalog(t *testing.T, faults chan FaultEvent) *AnalogPositioner {
	t.Helper()
	cfg := primitives.DeviceConfig{
		Name: "motorA", Type: primitives.DeviceAnalogPositioner,
		Timeout: primitives.Duration(200 * time.Millisecond), Tolerance: 0.1,
		Positions: map[string]float64{"In": 0, "Out": 10},
	}
	dev, err := New(cfg, faults)
	require.NoError(t, err)
	a := dev.(*AnalogPositioner)
	a.TransitTime = time.Millisecond
	return a
}

func TestAnalogPositioner_MoveWaitAssign(t *testing.T) {
	faults := make(chan FaultEvent, 10)
	a := newAnalog(t, faults)

	target := primitives.Target{PositionName: "Out", Limits: primitives.Limits{Low: -1, High: 1}}
	require.NoError(t, a.Move(context.Background(), target))
	require.NoError(t, a.Wait(context.Background()))
	require.True(t, a.Done())
	require.Equal(t, 10.0, a.LiveValue())

	a.AssignTarget(&target)
	require.Equal(t, &target, a.CurrentTarget())
	select {
	case ev := <-faults:
		t.Fatalf("unexpected fault after in-band assign: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestAnalogPositioner_UnknownPositionFails(t *testing.T) {
	a := newAnalog(t, nil)
	err := a.Move(context.Background(), primitives.Target{PositionName: "Sideways"})
	require.Error(t, err)
}

func TestAnalogPositioner_LimitsViolationEmitsFault(t *testing.T) {
	faults := make(chan FaultEvent, 10)
	a := newAnalog(t, faults)
	target := primitives.Target{PositionName: "Out", Limits: primitives.Limits{Low: -1, High: 1}}
	require.NoError(t, a.Move(context.Background(), target))
	require.NoError(t, a.Wait(context.Background()))
	a.AssignTarget(&target)

	a.SetLiveValue(20) // well outside setpoint(10) + tolerance(0.1) + upper(1)

	select {
	case ev := <-faults:
		require.Equal(t, FaultLimitsViolated, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected LIMITS_VIOLATED fault")
	}
}

func TestAnalogPositioner_DisconnectEmitsFault(t *testing.T) {
	faults := make(chan FaultEvent, 10)
	a := newAnalog(t, faults)
	a.SetConnected(false)
	select {
	case ev := <-faults:
		require.Equal(t, FaultDisconnect, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected DISCONNECT fault")
	}
}

func TestAnalogPositioner_HomedTracksStatusWord(t *testing.T) {
	a := newAnalog(t, nil)
	require.True(t, a.Homed())
	a.SetStatusWord(0)
	require.False(t, a.Homed())
}

func TestAnalogPositioner_WaitTimesOutWithNoMotion(t *testing.T) {
	faults := make(chan FaultEvent, 10)
	a := newAnalog(t, faults)
	a.timeout = 30 * time.Millisecond
	a.TransitTime = time.Hour // never completes within the test

	target := primitives.Target{PositionName: "Out"}
	require.NoError(t, a.Move(context.Background(), target))
	err := a.Wait(context.Background())
	require.Error(t, err)

	select {
	case ev := <-faults:
		require.Equal(t, FaultTimeout, ev.Kind)
	default:
		t.Fatal("expected TIMEOUT fault to have been emitted")
	}
}

func newValve(t *testing.T, faults chan FaultEvent) *TwoPositionActuator {
	t.Helper()
	cfg := primitives.DeviceConfig{Name: "valve", Type: primitives.DeviceTwoPositionActor, Timeout: primitives.Duration(200 * time.Millisecond)}
	dev, err := New(cfg, faults)
	require.NoError(t, err)
	v := dev.(*TwoPositionActuator)
	v.TransitTime = time.Millisecond
	return v
}

func TestTwoPositionActuator_MoveToInvalidPositionFails(t *testing.T) {
	v := newValve(t, nil)
	err := v.Move(context.Background(), primitives.Target{PositionName: "HalfOpen"})
	require.Error(t, err)
}

func TestTwoPositionActuator_MoveWaitDone(t *testing.T) {
	v := newValve(t, nil)
	require.NoError(t, v.Move(context.Background(), primitives.Target{PositionName: "Open"}))
	require.NoError(t, v.Wait(context.Background()))
	require.True(t, v.Done())
	require.Equal(t, 1.0, v.LiveValue())
}

func TestTwoPositionActuator_StopIsNoOp(t *testing.T) {
	v := newValve(t, nil)
	require.NoError(t, v.Stop())
}
