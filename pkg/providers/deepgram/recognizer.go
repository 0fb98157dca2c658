package deepgram

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/harunnryd/voicetrigger/pkg/adapters/stt"
	"github.com/harunnryd/voicetrigger/pkg/audio"
	"github.com/harunnryd/voicetrigger/pkg/errorsx"
	"github.com/harunnryd/voicetrigger/pkg/logging"
	"github.com/harunnryd/voicetrigger/pkg/resilience"
)

type Config struct {
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Language string `mapstructure:"language"`
	// MaxRetries applies to transport failures only.
	MaxRetries int           `mapstructure:"max_retries"`
	Backoff    time.Duration `mapstructure:"backoff"`
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "nova-2"
	}
	if c.Language == "" {
		c.Language = "en-US"
	}
	return c
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errorsx.New(errorsx.ReasonConfiguration, "deepgram api_key is required")
	}
	return nil
}

// transcriber is the slice of the Deepgram REST client the recognizer uses.
type transcriber interface {
	transcribe(ctx context.Context, wav []byte, hints []string) (string, error)
}

// Recognizer transcribes a captured phrase with Deepgram's pre-recorded
// endpoint, biased toward the wake word through keyword boosting.
type Recognizer struct {
	cfg         Config
	backend     transcriber
	retryPolicy resilience.RetryPolicy
	logger      *slog.Logger
}

func New(cfg Config) (*Recognizer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dg := api.New(client.NewREST(cfg.APIKey, &interfaces.ClientOptions{}))
	return newRecognizer(cfg, &restTranscriber{dg: dg, cfg: cfg}), nil
}

func newRecognizer(cfg Config, backend transcriber) *Recognizer {
	policy := resilience.NewRetryPolicy(cfg.MaxRetries, cfg.Backoff)
	policy.Retryable = func(err error) bool {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return &Recognizer{
		cfg:         cfg,
		backend:     backend,
		retryPolicy: policy,
		logger:      logging.NewComponentLogger(slog.Default(), "deepgram_stt"),
	}
}

func (r *Recognizer) Name() string { return "deepgram_prerecorded" }

func (r *Recognizer) Recognize(ctx context.Context, phrase audio.Phrase, hints []string) (string, error) {
	if len(phrase.Samples) == 0 {
		return "", errorsx.New(errorsx.ReasonRecognitionAmbiguous, "empty phrase")
	}
	wav, err := phrase.WAV()
	if err != nil {
		return "", errorsx.Wrapf(err, errorsx.ReasonRecognition, "encode phrase")
	}

	started := time.Now()
	var transcript string
	err = r.retryPolicy.Do(ctx, func() error {
		var callErr error
		transcript, callErr = r.backend.transcribe(ctx, wav, hints)
		return callErr
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		r.logger.Error("deepgram_transcribe_error",
			slog.String("model", r.cfg.Model),
			slog.String("error", err.Error()))
		return "", errorsx.Wrapf(err, errorsx.ReasonRecognition, "deepgram transcribe")
	}

	transcript = strings.TrimSpace(transcript)
	r.logger.Debug("transcript_received",
		slog.String("transcript", transcript),
		slog.Duration("phrase", phrase.Duration()),
		slog.Duration("latency", time.Since(started)))
	if transcript == "" {
		return "", errorsx.New(errorsx.ReasonRecognitionAmbiguous, "no speech recognized")
	}
	return transcript, nil
}

func (r *Recognizer) Close() error { return nil }

type restTranscriber struct {
	dg  *api.Client
	cfg Config
}

func (t *restTranscriber) transcribe(ctx context.Context, wav []byte, hints []string) (string, error) {
	opts := &interfaces.PreRecordedTranscriptionOptions{
		Model:       t.cfg.Model,
		Language:    t.cfg.Language,
		Keywords:    hints,
		SmartFormat: true,
	}
	res, err := t.dg.FromStream(ctx, bytes.NewReader(wav), opts)
	if err != nil {
		return "", err
	}
	if res == nil || res.Results == nil || len(res.Results.Channels) == 0 {
		return "", nil
	}
	alts := res.Results.Channels[0].Alternatives
	if len(alts) == 0 {
		return "", nil
	}
	return alts[0].Transcript, nil
}

var _ stt.Recognizer = (*Recognizer)(nil)
