package runner

import (
	"bytes"
	"context"
	"os"
	"time"

	"github.com/dimiro1/banner"

	"github.com/harunnryd/voicetrigger/pkg/detect"
)

// State is the worker state owned by a Supervisor.
type State int32

const (
	StateStopped State = iota
	StateRunning
	StateRestarting
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateRestarting:
		return "restarting"
	default:
		return "unknown"
	}
}

// Detector is what a worker generation drives in its loop.
type Detector interface {
	AwaitDetection(ctx context.Context) (detect.Event, error)
	Close() error
}

// DetectorFactory builds a detector for one worker generation. It runs on the
// caller of Start or Reconfigure, so construction errors are synchronous.
type DetectorFactory func(cfg detect.Config) (Detector, error)

type LifecycleKind string

const (
	LifecycleStarted      LifecycleKind = "started"
	LifecycleStopped      LifecycleKind = "stopped"
	LifecycleReconfigured LifecycleKind = "reconfigured"
	LifecycleFailed       LifecycleKind = "failed"
)

// LifecycleEvent reports a worker generation transition. Err is set for
// LifecycleFailed and for a LifecycleStopped whose worker had already failed.
type LifecycleEvent struct {
	Kind       LifecycleKind
	Generation string
	Config     detect.Config
	Err        error
	At         time.Time
}

// Hooks are invoked outside the control lock. OnDetection runs on the worker
// goroutine and must not call Stop or Reconfigure synchronously.
type Hooks struct {
	OnDetection func(detect.Event)
	OnLifecycle func(LifecycleEvent)
}

// Drainer flushes pending work during shutdown.
type Drainer interface {
	Drain() error
}

const EngineVersion = "dev"

func PrintBanner() {
	tpl := "{{ .Title \"VOICETRIGGER\" \"\" 0 }}\nVersion: " + EngineVersion + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}
