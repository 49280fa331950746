// Package dispatcher routes inbound topic events (velocity commands, reset
// requests, host calls) to registered handlers, optionally through an
// asynchronous buffer.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("dispatcher closed")

// Event is one inbound message. Payload carries the raw wire body for
// transport messages; Args carries textual arguments for host calls.
type Event struct {
	Topic     string
	Payload   []byte
	Args      []string
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	latest     bool
	logged     bool
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Latest makes the handler async with a single pending slot. A new event
// replaces a pending one that the handler has not picked up yet, and the
// producer never blocks.
func Latest() Option {
	return func(c *config) {
		c.latest = true
		c.bufferSize = 1
		c.blocking = false
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   Logger

	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	replaced  metric.Int64Counter

	mu      sync.RWMutex
	buffers map[string]chan Event

	done      chan struct{}
	closeOnce sync.Once
	workers   sync.WaitGroup
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		buffers:  make(map[string]chan Event),
		logger:   logger,
		done:     make(chan struct{}),
	}

	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events in queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for topic, buf := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(len(buf)),
					metric.WithAttributes(attribute.String("topic", topic)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	d.replaced, err = m.Int64Counter(
		"dispatcher.events.replaced",
		metric.WithDescription("Pending events superseded by a newer one"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating replaced counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given topic with optional configuration.
// Register is not safe to call concurrently with Dispatch.
func (d *Dispatcher) Register(topic string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h

	if cfg.logged {
		handler = d.withLogging(topic, handler)
	}

	switch {
	case cfg.latest:
		handler = d.withLatest(topic, handler)
	case cfg.bufferSize > 0:
		handler = d.withBuffer(topic, cfg.bufferSize, cfg.blocking, handler)
	}

	d.handlers[topic] = handler
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	h, ok := d.handlers[e.Topic]
	if !ok {
		return nil, fmt.Errorf("unknown topic: %s", e.Topic)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return h(e)
}

// HasHandler returns true if a handler is registered for the topic.
func (d *Dispatcher) HasHandler(topic string) bool {
	_, ok := d.handlers[topic]
	return ok
}

// Close stops all buffer workers and waits for them to exit. Pending events
// are discarded.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
	})
	d.workers.Wait()
}

func (d *Dispatcher) startWorker(topic string, size int, h HandlerFunc) chan Event {
	buffer := make(chan Event, size)

	d.mu.Lock()
	d.buffers[topic] = buffer
	d.mu.Unlock()

	topicAttr := metric.WithAttributes(attribute.String("topic", topic))

	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		for {
			select {
			case <-d.done:
				return
			case e := <-buffer:
				if _, err := h(e); err != nil {
					d.logger.Error("async handler failed", "topic", topic, "error", err)
				}
				d.processed.Add(context.Background(), 1, topicAttr)
			}
		}
	}()

	return buffer
}

func (d *Dispatcher) withBuffer(topic string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := d.startWorker(topic, size, h)
	topicAttr := metric.WithAttributes(attribute.String("topic", topic))

	if blocking {
		return func(e Event) (any, error) {
			select {
			case buffer <- e:
				return "queued", nil
			case <-d.done:
				return nil, ErrClosed
			}
		}
	}

	return func(e Event) (any, error) {
		select {
		case <-d.done:
			return nil, ErrClosed
		default:
		}
		select {
		case buffer <- e:
			return "queued", nil
		default:
			d.dropped.Add(context.Background(), 1, topicAttr)
			return nil, fmt.Errorf("queue full: %s", topic)
		}
	}
}

func (d *Dispatcher) withLatest(topic string, h HandlerFunc) HandlerFunc {
	buffer := d.startWorker(topic, 1, h)
	topicAttr := metric.WithAttributes(attribute.String("topic", topic))

	// Serialises producers so the evict-then-send pair stays paired.
	var sendMu sync.Mutex

	return func(e Event) (any, error) {
		select {
		case <-d.done:
			return nil, ErrClosed
		default:
		}

		sendMu.Lock()
		defer sendMu.Unlock()
		for {
			select {
			case buffer <- e:
				return "queued", nil
			default:
			}
			select {
			case <-buffer:
				d.replaced.Add(context.Background(), 1, topicAttr)
			default:
				// Worker took it between our two selects; retry the send.
			}
		}
	}
}

func (d *Dispatcher) withLogging(topic string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "topic", topic, "bytes", len(e.Payload), "args", len(e.Args))

		result, err := h(e)

		if err != nil {
			d.logger.Error("event failed", "topic", topic, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "topic", topic, "duration", time.Since(start))
		}

		return result, err
	}
}
