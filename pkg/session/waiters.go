package session

import "sync"

// waiterTable maps an open track id to its one-shot completion channel.
// Every registered waiter is resolved exactly once: by the transport's
// playback acknowledgement, by the fail-open timeout, or by a batch
// force-resolve during interrupt/disconnect.
type waiterTable struct {
	mu sync.Mutex
	m  map[int64]chan struct{}
}

func newWaiterTable() *waiterTable {
	return &waiterTable{m: make(map[int64]chan struct{})}
}

// Begin registers a waiter for the track and returns its completion channel.
func (w *waiterTable) Begin(id int64) <-chan struct{} {
	ch := make(chan struct{})
	w.mu.Lock()
	w.m[id] = ch
	w.mu.Unlock()
	return ch
}

// Resolve closes the waiter for id. Unknown ids (already resolved or never
// registered) are a no-op; the return value reports whether id was pending.
func (w *waiterTable) Resolve(id int64) bool {
	w.mu.Lock()
	ch, ok := w.m[id]
	if ok {
		delete(w.m, id)
	}
	w.mu.Unlock()
	if ok {
		close(ch)
	}
	return ok
}

// ResolveAll force-resolves every outstanding waiter and returns the count.
func (w *waiterTable) ResolveAll() int {
	w.mu.Lock()
	pending := w.m
	w.m = make(map[int64]chan struct{})
	w.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
	return len(pending)
}

// Len reports the number of outstanding waiters.
func (w *waiterTable) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.m)
}
