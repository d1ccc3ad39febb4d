package metrics

import (
	"sync"
	"sync/atomic"
)

// AsyncObserver keeps metric recording off the audio hot path. Events go
// through a bounded channel; when it is full they are counted and dropped
// rather than blocking the caller.
type AsyncObserver struct {
	inner   Observer
	ch      chan MetricsEvent
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

func NewAsyncObserver(inner Observer, buffer int) *AsyncObserver {
	if buffer <= 0 {
		buffer = 256
	}
	a := &AsyncObserver{
		inner: inner,
		ch:    make(chan MetricsEvent, buffer),
		done:  make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *AsyncObserver) RecordEvent(ev MetricsEvent) {
	if a == nil {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.ch <- ev:
	default:
		a.dropped.Add(1)
	}
}

// Dropped counts events discarded because the buffer was full.
func (a *AsyncObserver) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops intake and waits until buffered events are delivered, so a
// Dropped read after Close is final.
func (a *AsyncObserver) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.ch)
	a.mu.Unlock()
	<-a.done
}

func (a *AsyncObserver) loop() {
	for ev := range a.ch {
		a.inner.RecordEvent(ev)
	}
	close(a.done)
}
