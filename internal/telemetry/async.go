package telemetry

import (
	"sync"
	"sync/atomic"
)

const defaultBuffer = 256

// Async decouples producers from slow sinks. Record never blocks: when the
// buffer is full the event is dropped and counted.
type Async struct {
	next    Sink
	events  chan Event
	onDrop  func()
	dropped atomic.Uint64
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
}

// NewAsync starts the dispatcher goroutine. onDrop may be nil.
func NewAsync(next Sink, buffer int, onDrop func()) *Async {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	a := &Async{next: next, events: make(chan Event, buffer), onDrop: onDrop}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer a.wg.Done()
	for e := range a.events {
		a.next.Record(e)
	}
}

func (a *Async) Record(e Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.drop()
		return
	}
	select {
	case a.events <- e:
	default:
		a.drop()
	}
}

func (a *Async) drop() {
	a.dropped.Add(1)
	if a.onDrop != nil {
		a.onDrop()
	}
}

// Dropped reports how many events were discarded.
func (a *Async) Dropped() uint64 {
	return a.dropped.Load()
}

// Close stops accepting events and waits until buffered ones are delivered.
func (a *Async) Close() {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.events)
		a.mu.Unlock()
	})
	a.wg.Wait()
}
