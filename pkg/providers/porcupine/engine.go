//go:build porcupine

package porcupine

import (
	"log/slog"
	"strings"

	pv "github.com/Picovoice/porcupine/binding/go/v3"

	"github.com/harunnryd/voicetrigger/pkg/adapters/kws"
	"github.com/harunnryd/voicetrigger/pkg/errorsx"
	"github.com/harunnryd/voicetrigger/pkg/logging"
)

// Available reports whether the native engine is compiled in.
const Available = true

type Engine struct {
	handle *pv.Porcupine
	logger *slog.Logger
}

// NewFactory returns a kws.Factory backed by the Picovoice engine.
func NewFactory(cfg Config) kws.Factory {
	return func(keywords []string, sensitivities []float32) (kws.Engine, error) {
		return New(cfg, keywords, sensitivities)
	}
}

func New(cfg Config, keywords []string, sensitivities []float32) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(keywords) == 0 || len(keywords) != len(sensitivities) {
		return nil, errorsx.New(errorsx.ReasonConfiguration, "porcupine needs one sensitivity per keyword, got %d/%d", len(keywords), len(sensitivities))
	}
	handle := &pv.Porcupine{
		AccessKey:     cfg.AccessKey,
		ModelPath:     cfg.ModelPath,
		Sensitivities: sensitivities,
	}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if path, ok := cfg.KeywordPaths[kw]; ok && path != "" {
			handle.KeywordPaths = append(handle.KeywordPaths, path)
			continue
		}
		builtin := pv.BuiltInKeyword(kw)
		if !builtin.IsValid() {
			return nil, errorsx.New(errorsx.ReasonConfiguration, "%q is not a built-in porcupine keyword and has no keyword_paths entry", kw)
		}
		handle.BuiltInKeywords = append(handle.BuiltInKeywords, builtin)
	}
	if len(handle.KeywordPaths) > 0 && len(handle.BuiltInKeywords) > 0 {
		return nil, errorsx.New(errorsx.ReasonConfiguration, "porcupine cannot mix built-in and custom keywords")
	}
	if err := handle.Init(); err != nil {
		return nil, errorsx.Wrapf(err, errorsx.ReasonDependencyUnavailable, "porcupine init")
	}
	logger := logging.NewComponentLogger(slog.Default(), "porcupine")
	logger.Info("porcupine_ready",
		slog.String("version", pv.Version),
		slog.Int("sample_rate", pv.SampleRate),
		slog.Int("frame_length", pv.FrameLength),
		slog.Any("keywords", keywords),
	)
	return &Engine{handle: handle, logger: logger}, nil
}

func (e *Engine) Name() string     { return "porcupine" }
func (e *Engine) SampleRate() int  { return pv.SampleRate }
func (e *Engine) FrameLength() int { return pv.FrameLength }

func (e *Engine) Process(pcm []int16) (int, error) {
	return e.handle.Process(pcm)
}

func (e *Engine) Close() error {
	return e.handle.Delete()
}

var _ kws.Engine = (*Engine)(nil)
