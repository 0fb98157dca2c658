package voicetrigger

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/harunnryd/voicetrigger/pkg/actions"
	"github.com/harunnryd/voicetrigger/pkg/detect"
	"github.com/harunnryd/voicetrigger/pkg/errorsx"
	"github.com/harunnryd/voicetrigger/pkg/logging"
	"github.com/harunnryd/voicetrigger/pkg/metrics"
	"github.com/harunnryd/voicetrigger/pkg/observers"
	"github.com/harunnryd/voicetrigger/pkg/redact"
	"github.com/harunnryd/voicetrigger/pkg/runner"
)

type ServiceOptions struct {
	// Loader re-reads the configuration on Reload. Without one Reload fails.
	Loader    *Loader
	Providers *ProviderRegistry
	Logger    *slog.Logger
	// Actions run in addition to the ones enabled in the config.
	Actions     []actions.Action
	OnDetection func(detect.Event)
	OnLifecycle func(runner.LifecycleEvent)
	// Watch reloads when the config file changes.
	Watch  bool
	Banner bool
}

// Service hosts one supervised detector and routes its detections to the
// configured actions.
type Service struct {
	loader     *Loader
	providers  *ProviderRegistry
	logger     *slog.Logger
	opts       ServiceOptions
	current    atomic.Pointer[Config]
	pending    atomic.Pointer[Config]
	sup        *runner.Supervisor
	dispatcher *actions.Dispatcher
	hub        *actions.Hub
	async      *metrics.AsyncObserver
	events     *metrics.JSONLObserver
	reloadMu   sync.Mutex
	drainOnce  sync.Once
	drainErr   error
}

var _ runner.Drainer = (*Service)(nil)

func NewService(cfg Config, opts ServiceOptions) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	providers := opts.Providers
	if providers == nil {
		providers = NewProviderRegistry()
		RegisterDefaults(providers)
	}
	redact.SetEnabled(cfg.Privacy.RedactPII)

	s := &Service{
		loader:    opts.Loader,
		providers: providers,
		logger:    logging.NewComponentLogger(logger, "service"),
		opts:      opts,
	}
	s.current.Store(&cfg)

	observerList := []metrics.Observer{observers.NewLoggerObserver(logger)}
	if path := cfg.Observability.EventsFile; path != "" {
		events, err := metrics.OpenJSONLFile(path)
		if err != nil {
			return nil, errorsx.Wrapf(err, errorsx.ReasonConfiguration, "observability.events_file")
		}
		s.events = events
		s.async = metrics.NewAsyncObserver(events, 256)
		observerList = append(observerList, s.async)
	}
	observer := observers.NewMultiObserver(observerList...)

	acts := append([]actions.Action(nil), opts.Actions...)
	if cfg.Actions.Websocket.Enabled {
		s.hub = actions.NewHub(cfg.Actions.Websocket.HubConfig)
		acts = append(acts, s.hub)
	}
	if cfg.Actions.Twilio.Enabled {
		sms, err := actions.NewSMSNotifier(cfg.Actions.Twilio.SMSConfig)
		if err != nil {
			s.closeObservers()
			return nil, err
		}
		acts = append(acts, sms)
	}
	s.dispatcher = actions.NewDispatcher(acts, actions.DispatcherOptions{
		Concurrency: cfg.Actions.Concurrency,
		Timeout:     cfg.ActionTimeout(),
		Logger:      logger,
		Observer:    observer,
	})

	factory := providers.DetectorFactory(s.buildConfig, DetectorDeps{Observer: observer, Logger: logger})
	s.sup = runner.NewSupervisor(factory, runner.SupervisorOptions{
		Hooks: runner.Hooks{
			OnDetection: s.handleDetection,
			OnLifecycle: s.handleLifecycle,
		},
		Observer: observer,
		Logger:   logger,
	})

	s.logger.Info("service_init",
		slog.String("backend", cfg.Detector.Backend),
		slog.String("wake_word", cfg.Detector.WakeWord),
		slog.String("audio_provider", cfg.Audio.Provider),
		slog.Int("actions", len(acts)),
	)
	return s, nil
}

// Config returns the configuration the latest successful start or reload
// built a worker from.
func (s *Service) Config() Config {
	return *s.current.Load()
}

// buildConfig is what the detector factory reads provider settings from: the
// config a reload is trying, otherwise the current one.
func (s *Service) buildConfig() Config {
	if p := s.pending.Load(); p != nil {
		return *p
	}
	return s.Config()
}

func (s *Service) Supervisor() *runner.Supervisor { return s.sup }

// Run starts the worker and blocks until ctx is done, reloading on SIGHUP
// and, when enabled, on config file changes.
func (s *Service) Run(ctx context.Context) error {
	if s.hub != nil {
		if err := s.hub.Start(ctx); err != nil {
			return err
		}
	}
	if s.opts.Watch && s.loader != nil {
		if err := s.loader.Watch(ctx, s.logger, s.reloadLogged); err != nil {
			s.logger.Warn("config_watch_unavailable", slog.String("error", err.Error()))
		}
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				s.logger.Info("reload_signal")
				s.reloadLogged()
			}
		}
	}()

	lr := runner.NewLifecycleRunner(s.sup, s.Config().DetectorConfig(), runner.LifecycleOptions{
		Drainer: s,
		Banner:  s.opts.Banner,
		Logger:  s.logger,
	})
	err := lr.Run(ctx)
	if lr.Phase() == runner.PhaseStopped {
		// Covers a failed first start, which returns before draining.
		_ = s.Drain()
	}
	return err
}

// Reload re-reads the configuration and reconfigures the worker with it. An
// invalid file leaves the running worker untouched. The new config is kept
// only once a worker was built from it.
func (s *Service) Reload() error {
	if s.loader == nil {
		return errorsx.New(errorsx.ReasonInvalidState, "service has no config loader")
	}
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	cfg, err := s.loader.Load()
	if err != nil {
		return err
	}
	s.pending.Store(&cfg)
	err = s.sup.Reconfigure(cfg.DetectorConfig())
	s.pending.Store(nil)
	if err != nil {
		return err
	}
	s.current.Store(&cfg)
	redact.SetEnabled(cfg.Privacy.RedactPII)
	return nil
}

// Drain stops the action dispatcher and flushes observers. It runs once.
func (s *Service) Drain() error {
	s.drainOnce.Do(func() {
		var errs []error
		if err := s.dispatcher.Drain(); err != nil {
			errs = append(errs, err)
		}
		if s.hub != nil {
			if err := s.hub.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := s.closeObservers(); err != nil {
			errs = append(errs, err)
		}
		s.drainErr = errors.Join(errs...)
	})
	return s.drainErr
}

func (s *Service) reloadLogged() {
	if err := s.Reload(); err != nil {
		s.logger.Error("config_reload_failed",
			slog.String("reason", string(errorsx.Reason(err))),
			slog.String("error", redact.Text(err.Error())),
		)
		return
	}
	cfg := s.Config()
	s.logger.Info("config_reloaded",
		slog.String("backend", cfg.Detector.Backend),
		slog.String("wake_word", cfg.Detector.WakeWord),
		slog.String("generation", s.sup.Generation()),
	)
}

func (s *Service) handleDetection(ev detect.Event) {
	s.dispatcher.Handle(ev)
	if s.opts.OnDetection != nil {
		s.opts.OnDetection(ev)
	}
}

func (s *Service) handleLifecycle(ev runner.LifecycleEvent) {
	if ev.Kind == runner.LifecycleFailed && ev.Err != nil {
		s.logger.Error("detector_failed",
			slog.String("generation", ev.Generation),
			slog.String("reason", string(errorsx.Reason(ev.Err))),
			slog.String("error", redact.Text(ev.Err.Error())),
		)
	}
	if s.opts.OnLifecycle != nil {
		s.opts.OnLifecycle(ev)
	}
}

func (s *Service) closeObservers() error {
	if s.async != nil {
		s.async.Close()
	}
	if s.events != nil {
		return s.events.Close()
	}
	return nil
}
