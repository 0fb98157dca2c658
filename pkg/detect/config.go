package detect

import (
	"math"
	"strings"
	"time"

	"github.com/harunnryd/voicetrigger/pkg/errorsx"
)

// Kind selects the detection backend.
type Kind int

const (
	KindUnknown Kind = iota
	LocalKeywordSpotting
	PhraseTranscription
)

func (k Kind) String() string {
	switch k {
	case LocalKeywordSpotting:
		return "local_keyword_spotting"
	case PhraseTranscription:
		return "phrase_transcription"
	default:
		return "unknown"
	}
}

// ParseKind maps a backend name to a Kind. The names used by earlier
// releases ("porcupine", "sapi") are accepted as aliases.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "local_keyword_spotting", "keyword_spotting", "kws", "porcupine":
		return LocalKeywordSpotting, nil
	case "phrase_transcription", "transcription", "phrase", "sapi", "sphinx":
		return PhraseTranscription, nil
	default:
		return KindUnknown, errorsx.New(errorsx.ReasonConfiguration, "unknown detector backend %q", name)
	}
}

const (
	DefaultDebounce        = 5 * time.Second
	DefaultPhraseTimeLimit = 5 * time.Second
	DefaultSensitivity     = 0.5
)

// Config is immutable input for one worker generation.
type Config struct {
	Kind     Kind
	WakeWord string
	// Sensitivity in [0, 1]; only used by LocalKeywordSpotting.
	Sensitivity float64
	DeviceIndex int
	Debounce    time.Duration
	// PhraseTimeLimit bounds a single phrase capture for PhraseTranscription.
	PhraseTimeLimit time.Duration
	// EnergyThreshold is the RMS level that starts a phrase. Zero uses the
	// capture default.
	EnergyThreshold float64
}

// WithDefaults fills zero durations.
func (c Config) WithDefaults() Config {
	if c.Debounce == 0 {
		c.Debounce = DefaultDebounce
	}
	if c.PhraseTimeLimit == 0 {
		c.PhraseTimeLimit = DefaultPhraseTimeLimit
	}
	c.WakeWord = strings.TrimSpace(c.WakeWord)
	return c
}

func (c Config) Validate() error {
	switch c.Kind {
	case LocalKeywordSpotting, PhraseTranscription:
	default:
		return errorsx.New(errorsx.ReasonConfiguration, "detector backend is %s", c.Kind)
	}
	if strings.TrimSpace(c.WakeWord) == "" {
		return errorsx.New(errorsx.ReasonConfiguration, "wake word is required")
	}
	if c.Kind == LocalKeywordSpotting {
		if math.IsNaN(c.Sensitivity) || c.Sensitivity < 0 || c.Sensitivity > 1 {
			return errorsx.New(errorsx.ReasonConfiguration, "sensitivity must be within [0, 1], got %v", c.Sensitivity)
		}
	}
	if c.Debounce < 0 {
		return errorsx.New(errorsx.ReasonConfiguration, "debounce must not be negative, got %s", c.Debounce)
	}
	if c.PhraseTimeLimit < 0 {
		return errorsx.New(errorsx.ReasonConfiguration, "phrase time limit must not be negative, got %s", c.PhraseTimeLimit)
	}
	if c.EnergyThreshold < 0 {
		return errorsx.New(errorsx.ReasonConfiguration, "energy threshold must not be negative, got %v", c.EnergyThreshold)
	}
	return nil
}
