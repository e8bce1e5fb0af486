package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events when the buffer is full instead of blocking the
	// emitting request until space frees up or its context ends.
	DropIfFull bool
}

// Dispatcher relays events to a sink from a single goroutine, so sinks see
// events in emission order and never run on a request path.
//
// A nil *Dispatcher is valid and discards everything.
type Dispatcher struct {
	dropIfFull bool
	sink       Sink
	queue      chan Event
	stop       chan struct{}
	wg         sync.WaitGroup

	dropped   atomic.Uint64
	delivered atomic.Uint64
	panicked  atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher, or returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		dropIfFull: cfg.DropIfFull,
		sink:       sink,
		queue:      make(chan Event, cfg.BufferSize),
		stop:       make(chan struct{}),
	}

	d.wg.Add(1)
	go d.loop()

	return d
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()

	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			// Drain what was accepted before Close.
			for {
				select {
				case ev := <-d.queue:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

// deliver hands ev to the sink. A panicking sink loses that event only.
func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.panicked.Add(1)
			d.dropped.Add(1)
		}
	}()
	d.sink.Emit(context.Background(), ev)
	d.delivered.Add(1)
}

// Emit queues ev. It never blocks when DropIfFull is set; otherwise it waits
// for buffer space, ctx, or Close.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.queue <- ev:
		case <-d.stop:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stop:
	}
}

// Close stops accepting events and waits until queued ones are delivered.
// Safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.wg.Wait()
	})
}

// Dropped counts events lost to a full buffer, an expired emit context, or a
// panicking sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Stats reports delivery counters.
type Stats struct {
	Delivered uint64
	Dropped   uint64
	Panicked  uint64
	Queued    int
}

func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Panicked:  d.panicked.Load(),
		Queued:    len(d.queue),
	}
}
