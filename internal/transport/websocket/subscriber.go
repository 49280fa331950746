// Package websocket delivers velocity commands from a rosbridge-style
// WebSocket bridge into the dispatcher.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/actorsteer/actorsteer/internal/dispatcher"
	"github.com/actorsteer/actorsteer/pkg/streaming"
)

const (
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
)

// Sink receives decoded events.
type Sink interface {
	Dispatch(dispatcher.Event) (any, error)
}

// Config holds subscriber settings.
type Config struct {
	URL string

	// Topics are subscribed to with a queue length of one.
	Topics []string

	// InitialBackoff is the first reconnect delay. Zero means one second.
	InitialBackoff time.Duration
}

// Subscriber holds one WebSocket connection and forwards every published
// frame to its Sink. It reconnects with exponential backoff when the bridge
// drops the connection.
type Subscriber struct {
	cfg    Config
	sink   Sink
	logger *slog.Logger

	mu     sync.Mutex
	conn   *ws.Conn
	closed bool

	ready    atomic.Bool
	received atomic.Uint64

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Subscriber. Call Dial to connect.
func New(cfg Config, sink Sink, logger *slog.Logger) *Subscriber {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	return &Subscriber{
		cfg:    cfg,
		sink:   sink,
		logger: logger.With("component", "transport"),
		done:   make(chan struct{}),
	}
}

// Dial connects, subscribes and starts the read loop.
func (s *Subscriber) Dial(ctx context.Context) error {
	conn, err := s.dialOnce(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return errors.New("subscriber closed")
	}
	s.conn = conn
	s.mu.Unlock()

	s.ready.Store(true)
	s.wg.Add(1)
	go s.readLoop()
	return nil
}

// Ready reports whether the subscription is live.
func (s *Subscriber) Ready() bool {
	return s.ready.Load()
}

// Received returns the number of published frames read so far.
func (s *Subscriber) Received() uint64 {
	return s.received.Load()
}

func (s *Subscriber) dialOnce(ctx context.Context) (*ws.Conn, error) {
	conn, _, err := ws.DefaultDialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	for _, topic := range s.cfg.Topics {
		sub := streaming.Subscribe(topic, streaming.TwistType, 1)
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("set write deadline: %w", err)
		}
		if err := conn.WriteJSON(sub); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return conn, nil
}

func (s *Subscriber) readLoop() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			s.ready.Store(false)
			select {
			case <-s.done:
				return
			default:
			}
			s.logger.Warn("WebSocket read error", "error", err)
			if !s.reconnect() {
				return
			}
			continue
		}

		s.handle(message)
	}
}

func (s *Subscriber) handle(message []byte) {
	var env streaming.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		s.logger.Debug("Malformed frame", "error", err)
		return
	}
	if env.Op != streaming.OpPublish {
		s.logger.Debug("Ignoring frame", "op", env.Op)
		return
	}

	s.received.Add(1)
	_, err := s.sink.Dispatch(dispatcher.Event{
		Topic:     env.Topic,
		Payload:   env.Msg,
		Timestamp: time.Now(),
	})
	if err != nil {
		s.logger.Debug("Frame not dispatched", "topic", env.Topic, "error", err)
	}
}

// reconnect re-establishes the connection with exponential backoff. It
// returns false when the subscriber was closed or all attempts failed.
func (s *Subscriber) reconnect() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()

	backoff := s.cfg.InitialBackoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		s.logger.Info("Reconnecting to WebSocket", "attempt", attempt, "backoff", backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-s.done:
			timer.Stop()
			return false
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		conn, err := s.dialOnce(ctx)
		cancel()
		if err != nil {
			s.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return false
		}
		s.conn = conn
		s.mu.Unlock()

		s.ready.Store(true)
		s.logger.Info("WebSocket reconnected", "attempt", attempt)
		return true
	}

	s.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
	return false
}

// Close sends a close frame, stops the read loop and waits for it to exit.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.ready.Store(false)

	var err error
	if conn != nil {
		_ = conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = conn.Close()
	}
	s.wg.Wait()
	return err
}
