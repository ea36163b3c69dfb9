// Package bus implements the control-bus collaborator spec.md §6
// describes only as an external contract: a named-channel pub/sub
// surface. It is grounded on ipiton-alert-history-service's realtime
// event bus (go-app/internal/realtime/bus.go), adapted from "broadcast
// every event to every subscriber" to "broadcast to subscribers
// registered on the event's channel."
package bus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event is one message published on a named channel.
type Event struct {
	Channel   string      `json:"channel"`
	ID        string      `json:"id"`
	Payload   interface{} `json:"payload"`
	At        time.Time   `json:"at"`
	Sequence  int64       `json:"sequence"`
}

// Subscriber receives events for the channels it registered interest in.
type Subscriber interface {
	ID() string
	Send(event Event) error
	Close() error
	Context() context.Context
}

// Bus is the control-bus contract: subscribe to a channel (or "*" for
// every channel), publish onto a channel, and run/stop the broadcast
// worker.
type Bus interface {
	Subscribe(channel string, sub Subscriber) error
	Unsubscribe(channel string, sub Subscriber) error
	Publish(channel string, payload interface{}) error
	ActiveSubscribers() int
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// wildcard is the channel name a subscriber registers under to receive
// every published event, used by the HTTP/websocket firehose.
const wildcard = "*"

// DefaultBus is the in-process Bus implementation.
type DefaultBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[Subscriber]bool

	eventChan chan Event
	sequence  int64

	logger  *slog.Logger
	metrics Metrics

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// Metrics is the subset of instrumentation the bus reports through; the
// production implementation lives in package metrics (Prometheus).
type Metrics interface {
	ConnectionsActive(n int)
	EventPublished(channel string)
	EventDropped(channel string)
	BroadcastDuration(d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) ConnectionsActive(int)        {}
func (nopMetrics) EventPublished(string)        {}
func (nopMetrics) EventDropped(string)          {}
func (nopMetrics) BroadcastDuration(time.Duration) {}

// New constructs a DefaultBus. metrics may be nil.
func New(logger *slog.Logger, metrics Metrics) *DefaultBus {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &DefaultBus{
		subscribers: make(map[string]map[Subscriber]bool),
		eventChan:   make(chan Event, 1000),
		logger:      logger.With("component", "bus"),
		metrics:     metrics,
		stopChan:    make(chan struct{}),
	}
}

func (b *DefaultBus) Subscribe(channel string, sub Subscriber) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[Subscriber]bool)
	}
	b.subscribers[channel][sub] = true
	b.metrics.ConnectionsActive(b.totalSubscribersLocked())
	return nil
}

func (b *DefaultBus) Unsubscribe(channel string, sub Subscriber) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subscribers[channel]; ok {
		if _, ok := subs[sub]; ok {
			delete(subs, sub)
			sub.Close()
		}
	}
	b.metrics.ConnectionsActive(b.totalSubscribersLocked())
	return nil
}

func (b *DefaultBus) totalSubscribersLocked() int {
	n := 0
	for _, subs := range b.subscribers {
		n += len(subs)
	}
	return n
}

func (b *DefaultBus) ActiveSubscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.totalSubscribersLocked()
}

// Publish queues an event for broadcast; it never blocks the caller (the
// observer callback this ultimately serves must not re-enter the engine,
// per spec.md §9).
func (b *DefaultBus) Publish(channel string, payload interface{}) error {
	event := Event{
		Channel:  channel,
		ID:       uuid.NewString(),
		Payload:  payload,
		At:       time.Now(),
		Sequence: atomic.AddInt64(&b.sequence, 1),
	}
	select {
	case b.eventChan <- event:
		b.metrics.EventPublished(channel)
		return nil
	default:
		b.logger.Warn("bus event channel full, dropping event", "channel", channel)
		b.metrics.EventDropped(channel)
		return ErrChannelFull
	}
}

func (b *DefaultBus) Start(ctx context.Context) error {
	b.wg.Add(1)
	go b.broadcastWorker(ctx)
	return nil
}

func (b *DefaultBus) Stop(ctx context.Context) error {
	close(b.stopChan)
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *DefaultBus) broadcastWorker(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopChan:
			return
		case ev := <-b.eventChan:
			b.deliver(ev)
		}
	}
}

func (b *DefaultBus) deliver(ev Event) {
	start := time.Now()
	b.mu.RLock()
	targets := make([]Subscriber, 0)
	for _, name := range []string{ev.Channel, wildcard} {
		for sub := range b.subscribers[name] {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case <-sub.Context().Done():
			b.Unsubscribe(ev.Channel, sub)
			continue
		default:
		}
		if err := sub.Send(ev); err != nil {
			b.logger.Warn("subscriber send failed, removing", "subscriber", sub.ID(), "error", err)
			b.Unsubscribe(ev.Channel, sub)
		}
	}
	b.metrics.BroadcastDuration(time.Since(start))
}
