package session

import "testing"

func TestWaiterResolvedExactlyOnce(t *testing.T) {
	w := newWaiterTable()
	ch := w.Begin(1)
	if !w.Resolve(1) {
		t.Fatalf("expected first resolve to succeed")
	}
	select {
	case <-ch:
	default:
		t.Fatalf("expected channel closed")
	}
	if w.Resolve(1) {
		t.Fatalf("second resolve must be a no-op")
	}
	if w.Len() != 0 {
		t.Fatalf("expected empty table, got %d", w.Len())
	}
}

func TestWaiterResolveUnknownID(t *testing.T) {
	w := newWaiterTable()
	if w.Resolve(42) {
		t.Fatalf("unknown id must be a no-op")
	}
}

func TestWaiterResolveAll(t *testing.T) {
	w := newWaiterTable()
	a := w.Begin(1)
	b := w.Begin(2)
	if got := w.ResolveAll(); got != 2 {
		t.Fatalf("expected 2 resolved, got %d", got)
	}
	for _, ch := range []<-chan struct{}{a, b} {
		select {
		case <-ch:
		default:
			t.Fatalf("expected all channels closed")
		}
	}
	if w.Len() != 0 {
		t.Fatalf("expected no leaked waiters, got %d", w.Len())
	}
}
