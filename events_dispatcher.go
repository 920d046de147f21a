package authkit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// eventDispatcher decouples event delivery from the flows that produce
// events. A slow sink must never stall a login or an auth check, so emission
// goes through a buffered channel drained by one goroutine.
type eventDispatcher struct {
	sink      EventSink
	ch        chan SessionEvent
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newEventDispatcher(sink EventSink, buffer int) *eventDispatcher {
	if sink == nil {
		return nil
	}
	if buffer <= 0 {
		buffer = 64
	}

	d := &eventDispatcher{
		sink: sink,
		ch:   make(chan SessionEvent, buffer),
		done: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()
	return d
}

func (d *eventDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.sink.Emit(context.Background(), event)
		case <-d.done:
			// Drain what was accepted before Close.
			for {
				select {
				case event := <-d.ch:
					d.sink.Emit(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

// emit enqueues without blocking. When the buffer is full the event is
// dropped and counted; session flows never wait on telemetry.
func (d *eventDispatcher) emit(event SessionEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case d.ch <- event:
	case <-d.done:
	default:
		d.dropped.Add(1)
	}
}

func (d *eventDispatcher) close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports how many events were discarded because the buffer was
// full.
func (d *eventDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
