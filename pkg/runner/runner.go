package runner

import (
	"bytes"
	"context"
	"os"

	"github.com/dimiro1/banner"
)

type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

type Runner interface {
	Run(ctx context.Context) error
	Stop() error
	State() State
}

// Hooks run at the edges of the lifecycle. Both are optional.
type Hooks struct {
	OnStart func()
	OnStop  func()
}

// Drainer finishes in-flight work before shutdown. The context bounds how
// long draining may take.
type Drainer interface {
	Drain(ctx context.Context) error
}

const EngineVersion = "dev"

func PrintBanner() {
	tpl := "{{ .Title \"CAKAP\" \"\" 0 }}\nVersion: " + EngineVersion + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}
