package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"prayerroom/internal/bookings/events"
	"prayerroom/pkg/logger"
	"runtime/debug"
	"sync"
)

var ErrDispatcherStopped = errors.New("dispatcher is stopped")

type Handler interface {
	Handle(ctx context.Context, event events.ChangeEvent) error
}

// Dispatcher routes change events to the handler. Events for one booking are
// handled in order on the same shard; different bookings run concurrently.
// Shard queues are unbounded because handlers publish follow-up events.
type Dispatcher struct {
	handler Handler
	shards  []*shard
	log     *logger.Logger

	mu       sync.Mutex
	inflight int
	idle     chan struct{}
	started  bool
	stopped  bool

	stop chan struct{}
	wg   sync.WaitGroup
}

type shard struct {
	mu     sync.Mutex
	queue  []events.ChangeEvent
	signal chan struct{}
}

func NewDispatcher(handler Handler, workers int, log *logger.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	d := &Dispatcher{
		handler: handler,
		shards:  make([]*shard, workers),
		log:     log,
		idle:    closedChan(),
		stop:    make(chan struct{}),
	}
	for i := range d.shards {
		d.shards[i] = &shard{signal: make(chan struct{}, 1)}
	}
	return d
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Start launches one worker per shard. Handlers run with ctx's values but
// are not cancelled by it, so an in-flight transition always completes.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	handlerCtx := context.WithoutCancel(ctx)
	for _, s := range d.shards {
		d.wg.Add(1)
		go d.run(handlerCtx, s)
	}
	d.log.Info("Lifecycle dispatcher started", "workers", len(d.shards))
}

// Publish queues the event for asynchronous handling.
func (d *Dispatcher) Publish(_ context.Context, event events.ChangeEvent) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return ErrDispatcherStopped
	}
	if d.inflight == 0 {
		d.idle = make(chan struct{})
	}
	d.inflight++
	d.mu.Unlock()

	s := d.shardFor(event.BookingID)
	s.mu.Lock()
	s.queue = append(s.queue, event)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
	return nil
}

// Dispatch handles the event on the calling goroutine and returns the
// handler's error. Used where the transport already orders events, such as
// a Kafka partition.
func (d *Dispatcher) Dispatch(ctx context.Context, event events.ChangeEvent) error {
	return d.handle(ctx, event)
}

// Drain blocks until every queued event, including follow-ups published by
// handlers, has been handled or dropped by Stop.
func (d *Dispatcher) Drain(ctx context.Context) error {
	for {
		d.mu.Lock()
		idle := d.idle
		d.mu.Unlock()

		select {
		case <-idle:
			d.mu.Lock()
			done := d.inflight == 0
			d.mu.Unlock()
			if done {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop rejects new events and waits for workers to finish their current
// event. Events still queued are dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	close(d.stop)
	d.wg.Wait()

	dropped := 0
	for _, s := range d.shards {
		s.mu.Lock()
		dropped += len(s.queue)
		s.queue = nil
		s.mu.Unlock()
	}
	if dropped == 0 {
		return
	}
	d.log.Warn("Lifecycle dispatcher stopped with queued events", "dropped", dropped)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.inflight -= dropped
	if d.inflight == 0 {
		close(d.idle)
	}
}

func (d *Dispatcher) shardFor(bookingID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(bookingID))
	return d.shards[h.Sum32()%uint32(len(d.shards))]
}

func (d *Dispatcher) run(ctx context.Context, s *shard) {
	defer d.wg.Done()

	for {
		select {
		case <-d.stop:
			return
		default:
		}

		event, ok := s.pop()
		if !ok {
			select {
			case <-s.signal:
				continue
			case <-d.stop:
				return
			}
		}

		if err := d.handle(ctx, event); err != nil {
			d.log.Error("Lifecycle handler failed",
				"event_id", event.ID,
				"event_type", event.Type,
				"booking_id", event.BookingID,
				"error", err,
			)
		}
		d.finish()
	}
}

func (s *shard) pop() (events.ChangeEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return events.ChangeEvent{}, false
	}
	event := s.queue[0]
	s.queue[0] = events.ChangeEvent{}
	s.queue = s.queue[1:]
	return event, true
}

func (d *Dispatcher) finish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inflight--
	if d.inflight == 0 {
		close(d.idle)
	}
}

// handle contains handler panics so one bad event cannot stop a shard.
func (d *Dispatcher) handle(ctx context.Context, event events.ChangeEvent) (err error) {
	defer func() {
		if p := recover(); p != nil {
			d.log.Error("Lifecycle handler panicked",
				"event_id", event.ID,
				"booking_id", event.BookingID,
				"panic", p,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("handler panicked: %v", p)
		}
	}()
	return d.handler.Handle(ctx, event)
}
