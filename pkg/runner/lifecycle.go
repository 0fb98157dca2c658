package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/voicetrigger/pkg/detect"
	"github.com/harunnryd/voicetrigger/pkg/errorsx"
)

// Phase is the process-level state of a LifecycleRunner.
type Phase int32

const (
	PhaseNew Phase = iota
	PhaseStarting
	PhaseRunning
	PhaseDraining
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseNew:
		return "new"
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseDraining:
		return "draining"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type LifecycleOptions struct {
	Drainer Drainer
	// DrainTimeout bounds Drainer.Drain. Defaults to 10s.
	DrainTimeout time.Duration
	Banner       bool
	Logger       *slog.Logger
}

// LifecycleRunner starts a Supervisor, keeps it for the life of ctx, then
// stops the worker and drains pending work.
type LifecycleRunner struct {
	phase    int32
	sup      *Supervisor
	initial  detect.Config
	opts     LifecycleOptions
	onceStop sync.Once
	stopErr  error
}

func NewLifecycleRunner(sup *Supervisor, initial detect.Config, opts LifecycleOptions) *LifecycleRunner {
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &LifecycleRunner{
		phase:   int32(PhaseNew),
		sup:     sup,
		initial: initial,
		opts:    opts,
	}
}

// Run blocks until ctx is done. A failure to start the first worker is
// returned immediately.
func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.casPhase(PhaseNew, PhaseStarting) {
		return errorsx.New(errorsx.ReasonInvalidState, "runner already started, phase is %s", r.Phase())
	}
	if r.opts.Banner {
		PrintBanner()
	}
	if err := r.sup.Start(r.initial); err != nil {
		r.setPhase(PhaseStopped)
		return err
	}
	r.setPhase(PhaseRunning)
	<-ctx.Done()
	return r.stop()
}

func (r *LifecycleRunner) Phase() Phase {
	return Phase(atomic.LoadInt32(&r.phase))
}

func (r *LifecycleRunner) stop() error {
	r.onceStop.Do(func() {
		r.setPhase(PhaseDraining)
		var errs []error
		if r.sup.State() != StateStopped {
			if err := r.sup.Stop(); err != nil && !errorsx.HasReason(err, errorsx.ReasonInvalidState) {
				errs = append(errs, err)
			}
		}
		if r.opts.Drainer != nil {
			done := make(chan error, 1)
			go func() { done <- r.opts.Drainer.Drain() }()
			select {
			case err := <-done:
				if err != nil {
					errs = append(errs, err)
				}
			case <-time.After(r.opts.DrainTimeout):
				errs = append(errs, errors.New("drain timeout"))
			}
		}
		r.stopErr = errors.Join(errs...)
		r.opts.Logger.Info("lifecycle_stopped", slog.Bool("clean", r.stopErr == nil))
		r.setPhase(PhaseStopped)
	})
	return r.stopErr
}

func (r *LifecycleRunner) casPhase(from, to Phase) bool {
	return atomic.CompareAndSwapInt32(&r.phase, int32(from), int32(to))
}

func (r *LifecycleRunner) setPhase(p Phase) {
	atomic.StoreInt32(&r.phase, int32(p))
}
