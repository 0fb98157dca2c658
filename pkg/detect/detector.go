package detect

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/voicetrigger/pkg/audio"
	"github.com/harunnryd/voicetrigger/pkg/errorsx"
	"github.com/harunnryd/voicetrigger/pkg/logging"
	"github.com/harunnryd/voicetrigger/pkg/metrics"
)

// ErrCancelled is returned by AwaitDetection when its context is cancelled.
var ErrCancelled = errors.New("detection cancelled")

// Event is an accepted wake-word detection.
type Event struct {
	ID       string
	At       time.Time
	Backend  Kind
	WakeWord string
}

// Deps are the collaborators a Detector is built from.
type Deps struct {
	Backends *Registry
	Source   audio.Source
	// Clock stamps raw matches for debouncing. Defaults to time.Now.
	Clock    func() time.Time
	Observer metrics.Observer
	Logger   *slog.Logger
	// OnState observes detection cycle transitions.
	OnState StateListener
}

// Detector owns one opened audio stream and one backend. It is driven by a
// single goroutine; only Close may be called from another.
type Detector struct {
	cfg       Config
	backend   Backend
	source    string
	stream    audio.Stream
	debouncer *Debouncer
	clock     func() time.Time
	observer  metrics.Observer
	logger    *slog.Logger
	cycle     *cycle
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New validates cfg, builds the backend and opens the audio source with the
// parameters the backend requires. Backend construction happens first so a
// bad configuration never opens a device.
func New(cfg Config, deps Deps) (*Detector, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Backends == nil {
		return nil, errorsx.New(errorsx.ReasonConfiguration, "detector requires a backend registry")
	}
	if deps.Source == nil {
		return nil, errorsx.New(errorsx.ReasonConfiguration, "detector requires an audio source")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.NewComponentLogger(logger, "detector")
	observer := deps.Observer
	if observer == nil {
		observer = metrics.NoopObserver{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	backend, err := deps.Backends.Build(cfg)
	if err != nil {
		return nil, err
	}
	params := backend.Params()
	stream, err := deps.Source.Open(params)
	if err != nil {
		_ = backend.Close()
		return nil, errorsx.Wrapf(err, errorsx.ReasonDevice, "open %s device %d", deps.Source.Name(), params.DeviceIndex)
	}
	logger.Info("detector_ready",
		slog.String("backend", cfg.Kind.String()),
		slog.String("wake_word", cfg.WakeWord),
		slog.String("source", deps.Source.Name()),
		slog.Int("device_index", params.DeviceIndex),
		slog.Int("sample_rate", params.SampleRate),
		slog.Int("frame_length", params.FrameLength),
	)
	return &Detector{
		cfg:       cfg,
		backend:   backend,
		source:    deps.Source.Name(),
		stream:    stream,
		debouncer: NewDebouncer(cfg.Debounce),
		clock:     clock,
		observer:  observer,
		logger:    logger,
		cycle:     &cycle{current: StateIdle, listener: deps.OnState},
	}, nil
}

// AwaitDetection blocks until a debounced match is accepted, ctx is
// cancelled, or audio fails. Cancellation is checked before and after every
// unit of audio and yields ErrCancelled. Ambiguous recognitions are absorbed.
func (d *Detector) AwaitDetection(ctx context.Context) (Event, error) {
	if d.closed.Load() {
		return Event{}, errorsx.New(errorsx.ReasonInvalidState, "detector is closed")
	}
	d.cycle.reset("new cycle")
	defer d.cycle.reset("cycle ended")

	for {
		if ctx.Err() != nil {
			return Event{}, ErrCancelled
		}
		_ = d.cycle.transition(StateSampling, "read audio")
		unit, err := d.backend.Sample(ctx, d.stream)
		if ctx.Err() != nil {
			return Event{}, ErrCancelled
		}
		if err != nil {
			return Event{}, errorsx.WithReason(err, errorsx.ReasonUnrecoverableIO, "sample audio")
		}

		_ = d.cycle.transition(StateAnalyzing, "analyze")
		matched, err := d.backend.Analyze(ctx, unit)
		if err != nil {
			if errorsx.Reason(err).Recoverable() {
				d.record(metrics.DetectAmbiguous)
				d.logger.Debug("recognition_ambiguous", slog.String("error", err.Error()))
				_ = d.cycle.transition(StateRejected, "ambiguous")
				continue
			}
			if ctx.Err() != nil {
				return Event{}, ErrCancelled
			}
			return Event{}, err
		}
		if !matched {
			_ = d.cycle.transition(StateRejected, "no match")
			continue
		}

		now := d.clock()
		d.record(metrics.DetectRawMatch)
		if !d.debouncer.Accept(now) {
			d.record(metrics.DetectSuppressed)
			last, _ := d.debouncer.Last()
			d.logger.Debug("detection_suppressed",
				slog.String("wake_word", d.cfg.WakeWord),
				slog.Duration("since_accepted", now.Sub(last)),
			)
			_ = d.cycle.transition(StateRejected, "debounced")
			continue
		}
		_ = d.cycle.transition(StateAccepted, "accepted")
		d.record(metrics.DetectAccepted)
		ev := Event{
			ID:       uuid.NewString(),
			At:       now,
			Backend:  d.cfg.Kind,
			WakeWord: d.cfg.WakeWord,
		}
		d.logger.Info("wake_word_detected",
			slog.String("event_id", ev.ID),
			slog.String("wake_word", ev.WakeWord),
			slog.String("backend", ev.Backend.String()),
		)
		return ev, nil
	}
}

// State returns the current detection cycle state.
func (d *Detector) State() CycleState {
	return d.cycle.State()
}

func (d *Detector) Config() Config {
	return d.cfg
}

// Close releases the audio stream, then the backend. It is idempotent and
// safe to call from another goroutine to unblock a pending read.
func (d *Detector) Close() error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		var errs []error
		if err := d.stream.Close(); err != nil {
			errs = append(errs, errorsx.Wrapf(err, errorsx.ReasonDevice, "close %s stream", d.source))
		}
		if err := d.backend.Close(); err != nil {
			errs = append(errs, err)
		}
		d.closeErr = errors.Join(errs...)
		d.logger.Info("detector_closed", slog.String("backend", d.cfg.Kind.String()))
	})
	return d.closeErr
}

func (d *Detector) record(name string) {
	d.observer.RecordEvent(metrics.Count(name, map[string]string{
		"backend":   d.cfg.Kind.String(),
		"wake_word": d.cfg.WakeWord,
	}))
}
