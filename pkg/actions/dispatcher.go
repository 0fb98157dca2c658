package actions

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/voicetrigger/pkg/detect"
	"github.com/harunnryd/voicetrigger/pkg/errorsx"
	"github.com/harunnryd/voicetrigger/pkg/logging"
	"github.com/harunnryd/voicetrigger/pkg/metrics"
)

// Action is a downstream automation triggered by an accepted detection.
type Action interface {
	Name() string
	Fire(ctx context.Context, ev detect.Event) error
}

type DispatcherOptions struct {
	Concurrency int
	Buffer      int
	// Timeout bounds a single Action.Fire call.
	Timeout  time.Duration
	Logger   *slog.Logger
	Observer metrics.Observer
}

// Dispatcher fans detections out to actions on its own goroutines so the
// detection loop never waits on network I/O.
type Dispatcher struct {
	actions  []Action
	opts     DispatcherOptions
	logger   *slog.Logger
	observer metrics.Observer

	mu      sync.RWMutex
	closed  bool
	tasks   chan detect.Event
	wg      sync.WaitGroup
	dropped atomic.Int64
}

func NewDispatcher(actions []Action, opts DispatcherOptions) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := opts.Observer
	if observer == nil {
		observer = metrics.NoopObserver{}
	}
	d := &Dispatcher{
		actions:  actions,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "actions"),
		observer: observer,
		tasks:    make(chan detect.Event, opts.Buffer),
	}
	for i := 0; i < opts.Concurrency; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Handle queues ev for every action. It never blocks; when the queue is full
// the event is dropped and counted.
func (d *Dispatcher) Handle(ev detect.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.tasks <- ev:
	default:
		d.dropped.Add(1)
		d.logger.Warn("actions_queue_full", slog.String("event_id", ev.ID))
	}
}

// Dropped returns the number of events discarded on a full queue.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Drain stops accepting events and waits for queued ones to finish.
func (d *Dispatcher) Drain() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.tasks)
	}
	d.mu.Unlock()
	d.wg.Wait()
	return nil
}

func (d *Dispatcher) Close() error {
	return d.Drain()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for ev := range d.tasks {
		for _, a := range d.actions {
			d.fire(a, ev)
		}
	}
}

func (d *Dispatcher) fire(a Action, ev detect.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
	defer cancel()
	started := time.Now()
	err := a.Fire(ctx, ev)
	name := metrics.ActionSent
	if err != nil {
		name = metrics.ActionFailed
		d.logger.Error("action_failed",
			slog.String("action", a.Name()),
			slog.String("event_id", ev.ID),
			slog.String("reason", string(errorsx.Reason(err))),
			slog.String("error", err.Error()),
		)
	} else {
		d.logger.Debug("action_sent", slog.String("action", a.Name()), slog.String("event_id", ev.ID))
	}
	d.observer.RecordEvent(metrics.Timing(name, time.Since(started), map[string]string{"action": a.Name()}))
}
