package runner

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeDrainer struct {
	called chan struct{}
	block  bool
	err    error
}

func (d *fakeDrainer) Drain(ctx context.Context) error {
	close(d.called)
	if d.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return d.err
}

func TestRunnerStopDrains(t *testing.T) {
	d := &fakeDrainer{called: make(chan struct{})}
	started := make(chan struct{})
	r := NewLifecycleRunner(d, Hooks{OnStart: func() { close(started) }}, time.Second)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()
	<-started

	if err := r.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	select {
	case <-d.called:
	case <-time.After(time.Second):
		t.Fatal("drainer never invoked")
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run never returned")
	}
	if r.State() != StateStopped {
		t.Fatalf("expected stopped, got %d", r.State())
	}
}

func TestRunnerDrainTimeout(t *testing.T) {
	d := &fakeDrainer{called: make(chan struct{}), block: true}
	r := NewLifecycleRunner(d, Hooks{}, 20*time.Millisecond)

	go func() { _ = r.Run(context.Background()) }()
	for r.State() != StateRunning {
		time.Sleep(time.Millisecond)
	}
	err := r.Stop()
	if err == nil {
		t.Fatal("expected drain timeout error")
	}
}

func TestRunnerRejectsSecondRun(t *testing.T) {
	r := NewLifecycleRunner(nil, Hooks{}, time.Second)
	go func() { _ = r.Run(context.Background()) }()
	for r.State() != StateRunning {
		time.Sleep(time.Millisecond)
	}
	if err := r.Run(context.Background()); err == nil {
		t.Fatal("expected second run rejected")
	}
	_ = r.Stop()
}

func TestRunnerPropagatesDrainError(t *testing.T) {
	want := errors.New("flush failed")
	d := &fakeDrainer{called: make(chan struct{}), err: want}
	r := NewLifecycleRunner(d, Hooks{}, time.Second)
	go func() { _ = r.Run(context.Background()) }()
	for r.State() != StateRunning {
		time.Sleep(time.Millisecond)
	}
	if err := r.Stop(); !errors.Is(err, want) {
		t.Fatalf("expected drain error, got %v", err)
	}
}
