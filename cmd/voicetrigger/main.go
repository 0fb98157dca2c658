package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/harunnryd/voicetrigger/pkg/audio"
	"github.com/harunnryd/voicetrigger/pkg/errorsx"
	"github.com/harunnryd/voicetrigger/pkg/logging"
	"github.com/harunnryd/voicetrigger/pkg/providers/porcupine"
	"github.com/harunnryd/voicetrigger/pkg/redact"
	"github.com/harunnryd/voicetrigger/pkg/voicetrigger"
)

const usage = `usage: voicetrigger [run|check|devices] [-config path]

  run      listen for the wake word until interrupted (default)
  check    load the config, build the detector once and release it
  devices  list audio input devices
`

func main() {
	cmd := "run"
	args := os.Args[1:]
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	configPath := fs.String("config", "", "config file (default $CONFIG_FILE or config.yaml)")
	watch := fs.Bool("watch", true, "reload when the config file changes")
	_ = fs.Parse(args)

	var err error
	switch cmd {
	case "run":
		err = run(*configPath, *watch)
	case "check":
		err = check(*configPath)
	case "devices":
		err = devices()
	default:
		fs.Usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("voicetrigger_exit",
			slog.String("command", cmd),
			slog.String("reason", string(errorsx.Reason(err))),
			slog.String("error", redact.Text(err.Error())),
		)
		os.Exit(1)
	}
}

func setupLogger(cfg voicetrigger.Config) (*logging.Logger, error) {
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger.Logger)
	return logger, nil
}

func run(configPath string, watch bool) error {
	loader := voicetrigger.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	logger, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	svc, err := voicetrigger.NewService(cfg, voicetrigger.ServiceOptions{
		Loader: loader,
		Logger: logger.Logger,
		Watch:  watch,
		Banner: true,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return svc.Run(ctx)
}

func check(configPath string) error {
	cfg, err := voicetrigger.NewLoader(configPath).Load()
	if err != nil {
		return err
	}
	logger, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("check_build",
		slog.Bool("porcupine", porcupine.Available),
		slog.Bool("portaudio", audio.PortAudioAvailable),
	)
	providers := voicetrigger.NewProviderRegistry()
	voicetrigger.RegisterDefaults(providers)
	factory := providers.DetectorFactory(func() voicetrigger.Config { return cfg }, voicetrigger.DetectorDeps{Logger: logger.Logger})
	det, err := factory(cfg.DetectorConfig())
	if err != nil {
		return err
	}
	if err := det.Close(); err != nil {
		return err
	}

	out, err := json.MarshalIndent(redactedConfig(cfg), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func redactedConfig(cfg voicetrigger.Config) voicetrigger.Config {
	cfg.Audio.Settings = redact.Settings(cfg.Audio.Settings)
	cfg.Providers.Keyword.Settings = redact.Settings(cfg.Providers.Keyword.Settings)
	cfg.Providers.Transcription.Settings = redact.Settings(cfg.Providers.Transcription.Settings)
	cfg.Actions.Twilio.AuthToken = redact.Secret(cfg.Actions.Twilio.AuthToken)
	cfg.Actions.Twilio.AccountSID = redact.Secret(cfg.Actions.Twilio.AccountSID)
	return cfg
}

func devices() error {
	list, err := audio.ListDevices()
	if err != nil {
		if errorsx.HasReason(err, errorsx.ReasonDependencyUnavailable) {
			return errors.Join(err, errors.New("rebuild with -tags portaudio to enumerate devices"))
		}
		return err
	}
	for _, d := range list {
		marker := " "
		if d.IsInput() {
			marker = "*"
		}
		fmt.Printf("%s %3d  %-40s in=%d rate=%.0f\n", marker, d.Index, d.Name, d.MaxInputChannels, d.DefaultSampleRate)
	}
	return nil
}
