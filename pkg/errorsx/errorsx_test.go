package errorsx

import "testing"

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonTTSStream)
	if Reason(err) != ReasonTTSStream {
		t.Fatalf("expected reason %s, got %s", ReasonTTSStream, Reason(err))
	}
	if !HasReason(err, ReasonTTSStream) {
		t.Fatalf("expected HasReason true")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonSTTConnect)
	second := Wrap(first, ReasonAgentStream)
	if Reason(second) != ReasonSTTConnect {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, ReasonTTSConnect) != nil {
		t.Fatalf("expected nil passthrough")
	}
	if Reason(nil) != ReasonUnknown {
		t.Fatalf("expected unknown reason for nil error")
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
