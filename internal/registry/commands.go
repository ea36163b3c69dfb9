package registry

import (
	"context"
	"fmt"

	"github.com/ocs-lab/governor/internal/bus"
)

// commandSub is a bus.Subscriber that dispatches every delivered event to
// a handler func; it exists purely so BusAdapter can listen on its own
// command channels without pulling in a websocket/HTTP transport, mirroring
// the in-process subscriber shape bus.DefaultBus already assumes external
// transports implement.
type commandSub struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	handler func(bus.Event)
}

func newCommandSub(ctx context.Context, id string, handler func(bus.Event)) *commandSub {
	cctx, cancel := context.WithCancel(ctx)
	return &commandSub{id: id, ctx: cctx, cancel: cancel, handler: handler}
}

func (s *commandSub) ID() string                { return s.id }
func (s *commandSub) Context() context.Context  { return s.ctx }
func (s *commandSub) Close() error              { s.cancel(); return nil }
func (s *commandSub) Send(ev bus.Event) error {
	s.handler(ev)
	return nil
}

// defaultKillFunc is called when a Global Kill-Cmd pulse arrives (spec.md
// §6: "pulse → process exit") unless BusAdapter.SetKillFunc installs
// another action. It is a no-op so constructing an adapter never risks
// killing a test process — cmd/governor sets os.Exit(0) for the real binary.
var defaultKillFunc = func() {}

// subscribeCommands wires every inbound command channel this adapter
// understands: the global Abort/Kill/Config-Sel pulses, and per-governor
// Abort-Cmd/Go-Cmd (spec.md §4.4: "translates external commands (abort,
// go, set-limit, set-position, select-active) into engine operations").
// Per-state-device limit and per-device-position edits are exposed over
// the HTTP surface instead (bus.NewHTTPServer) since they need a
// structured {low, high} / {value} body rather than a bare scalar pulse.
func (a *BusAdapter) subscribeCommands(ctx context.Context) {
	if a.killFunc == nil {
		a.killFunc = defaultKillFunc
	}

	a.subscribe(ctx, bus.GlobalAbortCmd(a.prefix), func(bus.Event) {
		a.AbortAll()
	})
	a.subscribe(ctx, bus.GlobalKillCmd(a.prefix), func(bus.Event) {
		a.logger.Warn("kill command received, exiting process")
		a.killFunc()
	})
	a.subscribe(ctx, bus.GlobalConfigSel(a.prefix), func(ev bus.Event) {
		name, ok := ev.Payload.(string)
		if !ok {
			a.logger.Warn("config-sel payload not a string", "payload", ev.Payload)
			return
		}
		if err := a.SelectActive(name); err != nil {
			a.logger.Warn("select-active command failed", "governor", name, "error", err)
		}
	})

	for _, name := range a.registry.Names() {
		gov := name
		a.subscribe(ctx, bus.EngineAbortCmd(a.prefix, gov), func(bus.Event) {
			if err := a.Abort(gov); err != nil {
				a.logger.Warn("abort command failed", "governor", gov, "error", err)
			}
		})
		a.subscribe(ctx, bus.EngineGoCmd(a.prefix, gov), func(ev bus.Event) {
			dest, ok := ev.Payload.(string)
			if !ok {
				a.logger.Warn("go-cmd payload not a string", "governor", gov, "payload", ev.Payload)
				return
			}
			a.Go(gov, dest)
		})
	}
}

func (a *BusAdapter) subscribe(ctx context.Context, channel string, handler func(bus.Event)) {
	sub := newCommandSub(ctx, fmt.Sprintf("adapter-%s", channel), handler)
	if err := a.bus.Subscribe(channel, sub); err != nil {
		a.logger.Warn("failed to subscribe command channel", "channel", channel, "error", err)
	}
}
