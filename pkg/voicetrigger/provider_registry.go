package voicetrigger

import (
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/voicetrigger/pkg/adapters/kws"
	"github.com/harunnryd/voicetrigger/pkg/adapters/stt"
	"github.com/harunnryd/voicetrigger/pkg/audio"
	"github.com/harunnryd/voicetrigger/pkg/configutil"
	"github.com/harunnryd/voicetrigger/pkg/detect"
	"github.com/harunnryd/voicetrigger/pkg/errorsx"
	"github.com/harunnryd/voicetrigger/pkg/metrics"
	"github.com/harunnryd/voicetrigger/pkg/providers/deepgram"
	"github.com/harunnryd/voicetrigger/pkg/providers/mock"
	"github.com/harunnryd/voicetrigger/pkg/providers/porcupine"
	"github.com/harunnryd/voicetrigger/pkg/runner"
)

type KeywordBuilder func(cfg Config) (kws.Factory, error)
type RecognizerBuilder func(cfg Config) (stt.Recognizer, error)
type SourceBuilder func(cfg Config) (audio.Source, error)

// ProviderRegistry maps provider names from the config file to builders.
type ProviderRegistry struct {
	keyword    map[string]KeywordBuilder
	recognizer map[string]RecognizerBuilder
	source     map[string]SourceBuilder
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		keyword:    make(map[string]KeywordBuilder),
		recognizer: make(map[string]RecognizerBuilder),
		source:     make(map[string]SourceBuilder),
	}
}

func (r *ProviderRegistry) RegisterKeyword(name string, b KeywordBuilder) {
	r.keyword[providerKey(name)] = b
}

func (r *ProviderRegistry) RegisterRecognizer(name string, b RecognizerBuilder) {
	r.recognizer[providerKey(name)] = b
}

func (r *ProviderRegistry) RegisterSource(name string, b SourceBuilder) {
	r.source[providerKey(name)] = b
}

func (r *ProviderRegistry) BuildKeyword(cfg Config) (kws.Factory, error) {
	name := cfg.Providers.Keyword.Provider
	fn := r.keyword[providerKey(name)]
	if fn == nil {
		return nil, errorsx.New(errorsx.ReasonConfiguration, "keyword provider not registered: %s", name)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildRecognizer(cfg Config) (stt.Recognizer, error) {
	name := cfg.Providers.Transcription.Provider
	fn := r.recognizer[providerKey(name)]
	if fn == nil {
		return nil, errorsx.New(errorsx.ReasonConfiguration, "transcription provider not registered: %s", name)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildSource(cfg Config) (audio.Source, error) {
	name := cfg.Audio.Provider
	fn := r.source[providerKey(name)]
	if fn == nil {
		return nil, errorsx.New(errorsx.ReasonConfiguration, "audio provider not registered: %s", name)
	}
	return fn(cfg)
}

// DetectorDeps are shared by every detector the factory builds.
type DetectorDeps struct {
	Observer metrics.Observer
	Logger   *slog.Logger
}

// DetectorFactory builds detectors for the supervisor. current is read on
// every call so a reconfigure picks up the provider settings stored with the
// new detector config. Only the provider the chosen backend needs is built.
func (r *ProviderRegistry) DetectorFactory(current func() Config, deps DetectorDeps) runner.DetectorFactory {
	return func(dc detect.Config) (runner.Detector, error) {
		host := current()
		src, err := r.BuildSource(host)
		if err != nil {
			return nil, err
		}
		var (
			keyword    kws.Factory
			recognizer detect.RecognizerFactory
		)
		switch dc.Kind {
		case detect.LocalKeywordSpotting:
			keyword, err = r.BuildKeyword(host)
			if err != nil {
				return nil, err
			}
		case detect.PhraseTranscription:
			recognizer = func(detect.Config) (stt.Recognizer, error) {
				return r.BuildRecognizer(host)
			}
		}
		det, err := detect.New(dc, detect.Deps{
			Backends: detect.NewRegistry(keyword, recognizer),
			Source:   src,
			Observer: deps.Observer,
			Logger:   deps.Logger,
		})
		if err != nil {
			return nil, err
		}
		return det, nil
	}
}

// RegisterDefaults registers the built-in providers.
func RegisterDefaults(r *ProviderRegistry) {
	r.RegisterKeyword("porcupine", buildPorcupine)
	r.RegisterKeyword("mock", buildMockKeyword)
	r.RegisterRecognizer("deepgram", buildDeepgram)
	r.RegisterRecognizer("mock", buildMockRecognizer)
	r.RegisterSource("portaudio", func(Config) (audio.Source, error) {
		return audio.NewPortAudioSource(), nil
	})
	r.RegisterSource("wav", buildWAVSource)
	r.RegisterSource("mock", buildMockSource)
}

func buildPorcupine(cfg Config) (kws.Factory, error) {
	settings := cfg.Providers.Keyword.Settings
	if err := configutil.ValidateSettings("providers.keyword.settings", settings, configutil.Schema{
		Required: []string{"access_key"},
		Optional: []string{"model_path", "keyword_paths"},
	}); err != nil {
		return nil, err
	}
	var pc porcupine.Config
	if err := configutil.DecodeSettings(settings, &pc); err != nil {
		return nil, err
	}
	if err := pc.Validate(); err != nil {
		return nil, err
	}
	return porcupine.NewFactory(pc), nil
}

func buildDeepgram(cfg Config) (stt.Recognizer, error) {
	settings := cfg.Providers.Transcription.Settings
	if err := configutil.ValidateSettings("providers.transcription.settings", settings, configutil.Schema{
		Required: []string{"api_key"},
		Optional: []string{"model", "language", "max_retries", "backoff"},
	}); err != nil {
		return nil, err
	}
	var dc deepgram.Config
	if err := configutil.DecodeSettings(settings, &dc); err != nil {
		return nil, err
	}
	rec, err := deepgram.New(dc)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func buildWAVSource(cfg Config) (audio.Source, error) {
	settings := cfg.Audio.Settings
	if err := configutil.ValidateSettings("audio.settings", settings, configutil.Schema{
		Required: []string{"path"},
		Optional: []string{"realtime"},
	}); err != nil {
		return nil, err
	}
	var raw struct {
		Path     string `mapstructure:"path"`
		Realtime bool   `mapstructure:"realtime"`
	}
	if err := configutil.DecodeSettings(settings, &raw); err != nil {
		return nil, err
	}
	return audio.NewWAVSource(raw.Path, raw.Realtime), nil
}

// Mock providers run the whole service without hardware or credentials.

func buildMockKeyword(cfg Config) (kws.Factory, error) {
	var raw struct {
		Script      []int `mapstructure:"script"`
		SampleRate  int   `mapstructure:"sample_rate"`
		FrameLength int   `mapstructure:"frame_length"`
	}
	if err := configutil.DecodeSettings(cfg.Providers.Keyword.Settings, &raw); err != nil {
		return nil, errorsx.Wrapf(err, errorsx.ReasonConfiguration, "mock keyword settings")
	}
	engine := mock.NewKeywordEngine(mock.KeywordConfig{
		SampleRate:  raw.SampleRate,
		FrameLength: raw.FrameLength,
		Script:      raw.Script,
	})
	return mock.KeywordFactory(engine), nil
}

func buildMockRecognizer(cfg Config) (stt.Recognizer, error) {
	var raw struct {
		Transcripts []string `mapstructure:"transcripts"`
		Fallback    string   `mapstructure:"fallback"`
	}
	if err := configutil.DecodeSettings(cfg.Providers.Transcription.Settings, &raw); err != nil {
		return nil, errorsx.Wrapf(err, errorsx.ReasonConfiguration, "mock transcription settings")
	}
	script := make([]mock.Result, 0, len(raw.Transcripts))
	for _, text := range raw.Transcripts {
		script = append(script, mock.Result{Text: text})
	}
	return mock.NewRecognizer(mock.RecognizerConfig{
		Script:   script,
		Fallback: mock.Result{Text: raw.Fallback},
	}), nil
}

func buildMockSource(cfg Config) (audio.Source, error) {
	var raw struct {
		Levels   []int16       `mapstructure:"levels"`
		Fallback int16         `mapstructure:"fallback"`
		Interval time.Duration `mapstructure:"interval"`
	}
	if err := configutil.DecodeSettings(cfg.Audio.Settings, &raw); err != nil {
		return nil, errorsx.Wrapf(err, errorsx.ReasonConfiguration, "mock audio settings")
	}
	return mock.NewSource(mock.SourceConfig{
		Levels:   raw.Levels,
		Fallback: raw.Fallback,
		Interval: raw.Interval,
	}), nil
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
