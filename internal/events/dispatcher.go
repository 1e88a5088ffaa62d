package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/agrimarket/fulfillment-backend/pkg/logger"
	"github.com/agrimarket/fulfillment-backend/pkg/metrics"
)

const (
	defaultQueueSize       = 1024
	defaultWorkers         = 4
	defaultDeliveryTimeout = 5 * time.Second
)

type DispatcherParams struct {
	Logger          *logger.Logger
	Metrics         *metrics.EventMetrics
	Sinks           []Sink
	QueueSize       int
	Workers         int
	DeliveryTimeout time.Duration
}

type queuedEvent struct {
	ctx   context.Context
	event Event
}

// Dispatcher fans events out to sinks from a bounded queue drained by a
// fixed worker pool.
type Dispatcher struct {
	logg    *logger.Logger
	metrics *metrics.EventMetrics
	sinks   []Sink
	timeout time.Duration
	queue   chan queuedEvent

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	for i, sink := range params.Sinks {
		if sink == nil {
			return nil, fmt.Errorf("sink %d is nil", i)
		}
	}
	size := params.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	workers := params.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	timeout := params.DeliveryTimeout
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}

	d := &Dispatcher{
		logg:    params.Logger,
		metrics: params.Metrics,
		sinks:   params.Sinks,
		timeout: timeout,
		queue:   make(chan queuedEvent, size),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d, nil
}

// Emit enqueues events for delivery. When the queue is full or the
// dispatcher is closed the event is dropped and counted.
func (d *Dispatcher) Emit(ctx context.Context, events ...Event) {
	if ctx == nil {
		ctx = context.Background()
	}
	detached := context.WithoutCancel(ctx)

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, event := range events {
		if d.closed {
			d.drop(ctx, event, "dispatcher closed")
			continue
		}
		select {
		case d.queue <- queuedEvent{ctx: detached, event: event}:
		default:
			d.drop(ctx, event, "event queue full")
		}
	}
}

func (d *Dispatcher) drop(ctx context.Context, event Event, reason string) {
	d.metrics.IncDropped()
	logCtx := d.logg.WithFields(ctx, eventFields(event))
	d.logg.Warn(logCtx, "event dropped: "+reason)
}

// Close stops accepting events and waits for queued events to be delivered
// or for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for queued := range d.queue {
		_ = d.deliver(queued.ctx, queued.event)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var errs error
	for _, sink := range d.sinks {
		err := deliverSafely(ctx, sink, event)
		d.metrics.ObserveDispatch(sink.Name(), err)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	if errs != nil {
		logCtx := d.logg.WithFields(ctx, eventFields(event))
		logCtx = d.logg.WithField(logCtx, "failed_sinks", len(multierr.Errors(errs)))
		d.logg.Error(logCtx, "event delivery failed", errs)
	}
	return errs
}

func deliverSafely(ctx context.Context, sink Sink, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(fmt.Sprint("sink panic: ", r))
		}
	}()
	return sink.Deliver(ctx, event)
}

func eventFields(event Event) map[string]any {
	return map[string]any{
		"event_id":       event.ID.String(),
		"event_type":     event.Type,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"order_id":       event.OrderID.String(),
	}
}
