package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roverscan/rovermap/internal/rover"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrQueueFull is returned by a buffered handler that cannot take more events.
	ErrQueueFull = errors.New("queue full")
	// ErrClosed is returned by a buffered handler after Close.
	ErrClosed = errors.New("dispatcher closed")
)

// Event is one unit of work routed by name. Rover commands are routed by
// their kind; internal jobs carry a Payload instead.
type Event struct {
	Name      string
	Command   rover.Command
	Payload   any
	Timestamp time.Time
}

// FromCommand wraps a rover command in an event routed by its kind.
func FromCommand(cmd rover.Command) Event {
	return Event{
		Name:      string(cmd.Kind),
		Command:   cmd,
		Timestamp: time.Now(),
	}
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
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
	failed    metric.Int64Counter
	dropped   metric.Int64Counter

	mu        sync.RWMutex
	buffers   map[string]chan Event
	observers map[string]func() int

	// closeMu is held for reading while an event is handed to a buffer
	closeMu sync.RWMutex
	closed  bool
	workers sync.WaitGroup
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers:  make(map[string]HandlerFunc),
		buffers:   make(map[string]chan Event),
		observers: make(map[string]func() int),
		logger:    logger,
	}

	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events waiting"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for name, buf := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(len(buf)),
					metric.WithAttributes(attribute.String("queue", name)))
			}
			for name, fn := range d.observers {
				o.ObserveInt64(d.queueSize, int64(fn()),
					metric.WithAttributes(attribute.String("queue", name)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.commands.processed",
		metric.WithDescription("Total commands processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.failed, err = m.Int64Counter(
		"dispatcher.commands.failed",
		metric.WithDescription("Total commands rejected by their handler"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.commands.dropped",
		metric.WithDescription("Total commands dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given event name with optional configuration.
func (d *Dispatcher) Register(name string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := d.withMetrics(name, h)

	if cfg.bufferSize > 0 {
		handler = d.withBuffer(name, cfg.bufferSize, cfg.blocking, handler)
	}

	if cfg.logged {
		handler = d.withLogging(name, handler)
	}

	d.mu.Lock()
	d.handlers[name] = handler
	d.mu.Unlock()
}

// RegisterKind registers h for a rover command kind.
func (d *Dispatcher) RegisterKind(kind rover.Kind, h HandlerFunc, opts ...Option) {
	d.Register(string(kind), h, opts...)
}

// ObserveQueue reports the length of an external queue through the
// dispatcher.queue.size gauge.
func (d *Dispatcher) ObserveQueue(name string, length func() int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers[name] = length
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	d.mu.RLock()
	h, ok := d.handlers[e.Name]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", rover.ErrUnknownCommand, e.Name)
	}
	return h(e)
}

// DispatchCommand routes a rover command by its kind.
func (d *Dispatcher) DispatchCommand(cmd rover.Command) (any, error) {
	return d.Dispatch(FromCommand(cmd))
}

// HasHandler returns true if a handler is registered for the name.
func (d *Dispatcher) HasHandler(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[name]
	return ok
}

func (d *Dispatcher) withMetrics(name string, h HandlerFunc) HandlerFunc {
	attrs := metric.WithAttributes(attribute.String("command", name))
	return func(e Event) (any, error) {
		result, err := h(e)
		if err != nil {
			d.failed.Add(context.Background(), 1, attrs)
		} else {
			d.processed.Add(context.Background(), 1, attrs)
		}
		return result, err
	}
}

func (d *Dispatcher) withBuffer(name string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan Event, size)

	d.mu.Lock()
	d.buffers[name] = buffer
	d.mu.Unlock()

	cmdAttr := attribute.String("command", name)

	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		for e := range buffer {
			if _, err := h(e); err != nil {
				d.logger.Error("buffered handler failed", "command", name, "error", err)
			}
		}
	}()

	return func(e Event) (any, error) {
		d.closeMu.RLock()
		defer d.closeMu.RUnlock()
		if d.closed {
			return nil, fmt.Errorf("%w: %s", ErrClosed, name)
		}

		if blocking {
			buffer <- e
			return "queued", nil
		}
		select {
		case buffer <- e:
			return "queued", nil
		default:
			d.dropped.Add(context.Background(), 1, metric.WithAttributes(cmdAttr))
			d.logger.Warn("dropping event", "command", name, "capacity", size)
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, name)
		}
	}
}

// Close stops accepting buffered events and waits until every buffered
// handler has finished the events already queued. It is safe to call more
// than once.
func (d *Dispatcher) Close() {
	d.closeMu.Lock()
	if !d.closed {
		d.closed = true
		d.mu.RLock()
		for _, buf := range d.buffers {
			close(buf)
		}
		d.mu.RUnlock()
	}
	d.closeMu.Unlock()

	d.workers.Wait()
}

func (d *Dispatcher) withLogging(name string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", name, "magnitude", e.Command.Magnitude)

		result, err := h(e)

		if err != nil {
			d.logger.Error("event failed", "command", name, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "command", name, "duration", time.Since(start))
		}

		return result, err
	}
}
