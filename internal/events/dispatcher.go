package events

import (
	"context"
	"log/slog"
	"time"

	"vetting/internal/platform/metrics"
	"vetting/pkg/platform/circuit"
)

const (
	defaultBatchSize     = 64
	defaultFlushInterval = 250 * time.Millisecond
)

// Dispatcher decouples foreground operations from the broker. Publish only
// enqueues; Run drains the buffer into the sink in batches. A circuit
// breaker stops hammering an unhealthy broker: while it is open, drained
// events are dropped and counted.
type Dispatcher struct {
	sink     Publisher
	buf      *ringBuffer
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *metrics.Metrics
	batch    int
	interval time.Duration
	wake     chan struct{}
}

type DispatcherOption func(*Dispatcher)

func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithBreaker(b *circuit.Breaker) DispatcherOption {
	return func(d *Dispatcher) {
		d.breaker = b
	}
}

func WithBufferSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		d.buf = newRingBuffer(n)
	}
}

func WithFlushInterval(interval time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

func NewDispatcher(sink Publisher, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sink:     sink,
		buf:      newRingBuffer(0),
		breaker:  circuit.New("events"),
		logger:   slog.Default(),
		batch:    defaultBatchSize,
		interval: defaultFlushInterval,
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Publish enqueues the event and never blocks on the broker.
func (d *Dispatcher) Publish(_ context.Context, evt Event) error {
	if d.buf.enqueue(evt) {
		d.metrics.IncEventDropped()
	}
	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of buffered events.
func (d *Dispatcher) Pending() int {
	return d.buf.len()
}

// Run drains the buffer until ctx is cancelled, then makes a final attempt
// to flush what is left using a short detached deadline.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			d.Flush(flushCtx)
			cancel()
			return nil
		case <-d.wake:
			d.Flush(ctx)
		case <-ticker.C:
			d.Flush(ctx)
		}
	}
}

// Flush drains everything currently buffered.
func (d *Dispatcher) Flush(ctx context.Context) {
	for {
		batch := d.buf.dequeueBatch(d.batch)
		if len(batch) == 0 {
			return
		}
		for _, evt := range batch {
			d.deliver(ctx, evt)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, evt Event) {
	if !d.breaker.Allow() {
		d.metrics.IncEventDropped()
		return
	}
	if err := d.sink.Publish(ctx, evt); err != nil {
		d.metrics.IncEventDropped()
		if _, change := d.breaker.RecordFailure(); change.Opened {
			d.logger.ErrorContext(ctx, "event publisher circuit opened",
				"breaker", d.breaker.Name(),
				"error", err,
			)
		}
		return
	}
	if _, change := d.breaker.RecordSuccess(); change.Closed {
		d.logger.InfoContext(ctx, "event publisher circuit closed",
			"breaker", d.breaker.Name(),
		)
	}
}
