package detect

import (
	"github.com/harunnryd/voicetrigger/pkg/adapters/kws"
	"github.com/harunnryd/voicetrigger/pkg/adapters/stt"
	"github.com/harunnryd/voicetrigger/pkg/errorsx"
)

// RecognizerFactory builds the recognizer for a PhraseTranscription backend.
type RecognizerFactory func(cfg Config) (stt.Recognizer, error)

// Registry holds the engine factories each backend kind is built from.
type Registry struct {
	keyword    kws.Factory
	recognizer RecognizerFactory
}

func NewRegistry(keyword kws.Factory, recognizer RecognizerFactory) *Registry {
	return &Registry{keyword: keyword, recognizer: recognizer}
}

// Build validates cfg and constructs its backend. No audio device is touched.
func (r *Registry) Build(cfg Config) (Backend, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case LocalKeywordSpotting:
		return NewKeywordSpotter(cfg, r.keyword)
	case PhraseTranscription:
		if r.recognizer == nil {
			return nil, errorsx.New(errorsx.ReasonDependencyUnavailable, "no phrase recognizer registered")
		}
		rec, err := r.recognizer(cfg)
		if err != nil {
			return nil, errorsx.Wrapf(err, errorsx.ReasonDependencyUnavailable, "create recognizer")
		}
		return NewPhraseMatcher(cfg, rec)
	default:
		return nil, errorsx.New(errorsx.ReasonConfiguration, "unsupported detector backend %s", cfg.Kind)
	}
}
