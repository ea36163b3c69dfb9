package bus

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketSubscriber forwards every bus event to one websocket
// connection as JSON, letting an operator console watch a governor's
// snapshots live (spec.md §6's status/state channels, pushed instead of
// polled).
type WebSocketSubscriber struct {
	id     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewWebSocketSubscriber upgrades r/w into a websocket connection and
// returns the resulting Subscriber. Caller is responsible for
// bus.Subscribe/Unsubscribe.
func NewWebSocketSubscriber(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*WebSocketSubscriber, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(r.Context())
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketSubscriber{
		id:     uuid.NewString(),
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With("subscriber", "websocket"),
	}, nil
}

func (s *WebSocketSubscriber) ID() string              { return s.id }
func (s *WebSocketSubscriber) Context() context.Context { return s.ctx }

func (s *WebSocketSubscriber) Send(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSubscriberClosed
	}
	return s.conn.WriteJSON(event)
}

func (s *WebSocketSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	return s.conn.Close()
}
