package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/voicetrigger/pkg/detect"
	"github.com/harunnryd/voicetrigger/pkg/errorsx"
	"github.com/harunnryd/voicetrigger/pkg/logging"
	"github.com/harunnryd/voicetrigger/pkg/metrics"
)

type SupervisorOptions struct {
	Hooks    Hooks
	Observer metrics.Observer
	Logger   *slog.Logger
}

// Supervisor runs at most one detection worker at a time. Start, Stop and
// Reconfigure are serialized by a single control lock.
type Supervisor struct {
	factory  DetectorFactory
	hooks    Hooks
	observer metrics.Observer
	logger   *slog.Logger

	mu      sync.Mutex
	state   int32
	gen     *generation
	lastErr error
	workers atomic.Int32
}

type generation struct {
	id     string
	cfg    detect.Config
	cancel context.CancelFunc
	done   chan struct{}
	// err is written by the worker before done is closed.
	err error
}

func NewSupervisor(factory DetectorFactory, opts SupervisorOptions) *Supervisor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := opts.Observer
	if observer == nil {
		observer = metrics.NoopObserver{}
	}
	return &Supervisor{
		factory:  factory,
		hooks:    opts.Hooks,
		observer: observer,
		logger:   logging.NewComponentLogger(logger, "supervisor"),
		state:    int32(StateStopped),
	}
}

// Start builds a detector from cfg and spawns its worker. Construction errors
// are returned before anything is spawned.
func (s *Supervisor) Start(cfg detect.Config) error {
	s.mu.Lock()
	ev, err := s.startLocked(cfg)
	s.mu.Unlock()
	if err == nil {
		s.emit(ev)
	}
	return err
}

// Stop cancels the running worker and waits for it to release its
// resources. A failure the worker hit before being stopped is returned.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.State() != StateRunning {
		s.mu.Unlock()
		return errorsx.New(errorsx.ReasonInvalidState, "stop requires a running worker, state is %s", s.State())
	}
	ev := s.stopLocked()
	s.mu.Unlock()
	s.emit(ev)
	return ev.Err
}

// Reconfigure replaces the running worker with one built from cfg. An
// invalid cfg is rejected before the current worker is touched. If building
// the new detector fails after the old worker stopped, the supervisor is
// left Stopped. Called while Stopped it behaves like Start.
func (s *Supervisor) Reconfigure(cfg detect.Config) error {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	var events []LifecycleEvent
	if s.State() == StateRunning {
		s.setState(StateRestarting)
		stopped := s.stopLocked()
		if stopped.Err != nil {
			s.logger.Warn("worker_failed_before_reconfigure",
				slog.String("generation", stopped.Generation),
				slog.String("error", stopped.Err.Error()),
			)
		}
		events = append(events, stopped)
	}
	started, err := s.startLocked(cfg)
	if err != nil {
		s.lastErr = err
		events = append(events, LifecycleEvent{Kind: LifecycleFailed, Config: cfg, Err: err, At: time.Now()})
	} else {
		started.Kind = LifecycleReconfigured
		events = append(events, started)
	}
	s.mu.Unlock()

	for _, ev := range events {
		s.emit(ev)
	}
	return err
}

func (s *Supervisor) State() State {
	return State(atomic.LoadInt32(&s.state))
}

// Generation returns the id of the running worker generation, or "".
func (s *Supervisor) Generation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == nil {
		return ""
	}
	return s.gen.id
}

// Err returns the last failure of a worker or of a reconfigure attempt.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Supervisor) startLocked(cfg detect.Config) (LifecycleEvent, error) {
	if st := s.State(); st == StateRunning {
		return LifecycleEvent{}, errorsx.New(errorsx.ReasonInvalidState, "start requires a stopped worker, state is %s", st)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		s.setState(StateStopped)
		return LifecycleEvent{}, err
	}
	if s.factory == nil {
		s.setState(StateStopped)
		return LifecycleEvent{}, errorsx.New(errorsx.ReasonConfiguration, "supervisor has no detector factory")
	}
	det, err := s.factory(cfg)
	if err != nil {
		s.setState(StateStopped)
		return LifecycleEvent{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	gen := &generation{
		id:     uuid.NewString(),
		cfg:    cfg,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.gen = gen
	s.setState(StateRunning)
	s.workers.Add(1)
	go s.work(ctx, gen, det)
	go s.monitor(gen)

	s.logger.Info("worker_started",
		slog.String("generation", gen.id),
		slog.String("backend", cfg.Kind.String()),
		slog.String("wake_word", cfg.WakeWord),
		slog.Int("device_index", cfg.DeviceIndex),
	)
	s.record(metrics.GenerationStarted, gen)
	return LifecycleEvent{Kind: LifecycleStarted, Generation: gen.id, Config: cfg, At: time.Now()}, nil
}

// stopLocked cancels and joins the current generation. The join has no
// timeout; the detection loop observes cancellation within one audio read.
func (s *Supervisor) stopLocked() LifecycleEvent {
	gen := s.gen
	if gen == nil {
		s.setState(StateStopped)
		return LifecycleEvent{Kind: LifecycleStopped, At: time.Now()}
	}
	started := time.Now()
	gen.cancel()
	<-gen.done
	s.gen = nil
	s.setState(StateStopped)
	if gen.err != nil {
		s.lastErr = gen.err
	}
	s.logger.Info("worker_stopped",
		slog.String("generation", gen.id),
		slog.Duration("join", time.Since(started)),
	)
	s.record(metrics.GenerationStopped, gen)
	return LifecycleEvent{Kind: LifecycleStopped, Generation: gen.id, Config: gen.cfg, Err: gen.err, At: time.Now()}
}

func (s *Supervisor) work(ctx context.Context, gen *generation, det Detector) {
	defer close(gen.done)
	defer s.workers.Add(-1)
	defer s.closeDetector(gen, det)
	defer func() {
		if r := recover(); r != nil {
			gen.err = errorsx.New(errorsx.ReasonUnknown, "worker panic: %v", r)
		}
	}()

	for {
		ev, err := det.AwaitDetection(ctx)
		if err != nil {
			if errors.Is(err, detect.ErrCancelled) {
				return
			}
			gen.err = fmt.Errorf("generation %s: %w", gen.id, err)
			return
		}
		if s.hooks.OnDetection != nil {
			s.hooks.OnDetection(ev)
		}
	}
}

// closeDetector releases the device. A panic while closing fails the
// generation unless it already failed.
func (s *Supervisor) closeDetector(gen *generation, det Detector) {
	defer func() {
		if r := recover(); r != nil {
			if gen.err == nil {
				gen.err = errorsx.New(errorsx.ReasonUnknown, "detector close panic: %v", r)
			}
			s.logger.Error("detector_close_panic", slog.String("generation", gen.id), slog.Any("panic", r))
		}
	}()
	if err := det.Close(); err != nil {
		s.logger.Warn("detector_close_failed", slog.String("generation", gen.id), slog.String("error", err.Error()))
	}
}

// monitor turns a worker that exited on its own into a Stopped supervisor
// and reports the failure.
func (s *Supervisor) monitor(gen *generation) {
	<-gen.done
	if gen.err == nil {
		return
	}
	s.mu.Lock()
	current := s.gen == gen
	if current {
		s.gen = nil
		s.lastErr = gen.err
		s.setState(StateStopped)
	}
	s.mu.Unlock()
	if !current {
		return
	}
	s.logger.Error("worker_failed",
		slog.String("generation", gen.id),
		slog.String("reason", string(errorsx.Reason(gen.err))),
		slog.String("error", gen.err.Error()),
	)
	s.record(metrics.GenerationFailed, gen)
	s.emit(LifecycleEvent{Kind: LifecycleFailed, Generation: gen.id, Config: gen.cfg, Err: gen.err, At: time.Now()})
}

func (s *Supervisor) emit(ev LifecycleEvent) {
	if s.hooks.OnLifecycle != nil {
		s.hooks.OnLifecycle(ev)
	}
}

func (s *Supervisor) record(name string, gen *generation) {
	s.observer.RecordEvent(metrics.Count(name, map[string]string{
		"generation": gen.id,
		"backend":    gen.cfg.Kind.String(),
	}))
}

func (s *Supervisor) setState(st State) {
	atomic.StoreInt32(&s.state, int32(st))
}
