package detect

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/harunnryd/voicetrigger/pkg/adapters/stt"
	"github.com/harunnryd/voicetrigger/pkg/audio"
	"github.com/harunnryd/voicetrigger/pkg/errorsx"
)

const (
	PhraseSampleRate  = 16000
	PhraseFrameLength = 512
)

// PhraseMatcher captures a bounded phrase, transcribes it and matches the
// wake word as a case-insensitive substring.
type PhraseMatcher struct {
	recognizer  stt.Recognizer
	keyword     string
	deviceIndex int
	opts        audio.PhraseOptions
	once        sync.Once
}

func NewPhraseMatcher(cfg Config, rec stt.Recognizer) (*PhraseMatcher, error) {
	if rec == nil {
		return nil, errorsx.New(errorsx.ReasonDependencyUnavailable, "no phrase recognizer registered")
	}
	cfg = cfg.WithDefaults()
	return &PhraseMatcher{
		recognizer:  rec,
		keyword:     strings.ToLower(cfg.WakeWord),
		deviceIndex: cfg.DeviceIndex,
		opts: audio.PhraseOptions{
			TimeLimit:       cfg.PhraseTimeLimit,
			EnergyThreshold: cfg.EnergyThreshold,
		},
	}, nil
}

func (p *PhraseMatcher) Kind() Kind { return PhraseTranscription }

func (p *PhraseMatcher) Params() audio.Params {
	return audio.Params{
		DeviceIndex: p.deviceIndex,
		SampleRate:  PhraseSampleRate,
		Channels:    1,
		FrameLength: PhraseFrameLength,
	}
}

func (p *PhraseMatcher) Sample(ctx context.Context, stream audio.Stream) (Unit, error) {
	phrase, err := audio.CapturePhrase(ctx, stream, p.opts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return Unit{}, err
		}
		return Unit{}, errorsx.Wrapf(err, errorsx.ReasonUnrecoverableIO, "capture phrase")
	}
	return Unit{Phrase: phrase}, nil
}

// Analyze returns the recognizer's ambiguity error unchanged so the caller
// can count it and keep listening.
func (p *PhraseMatcher) Analyze(ctx context.Context, u Unit) (bool, error) {
	text, err := p.recognizer.Recognize(ctx, u.Phrase, []string{p.keyword})
	if err != nil {
		if errorsx.Reason(err) == errorsx.ReasonRecognitionAmbiguous {
			return false, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return false, err
		}
		return false, errorsx.Wrapf(err, errorsx.ReasonRecognition, "%s recognize", p.recognizer.Name())
	}
	return strings.Contains(strings.ToLower(text), p.keyword), nil
}

func (p *PhraseMatcher) Close() error {
	var err error
	p.once.Do(func() { err = p.recognizer.Close() })
	return err
}

func (p *PhraseMatcher) sealed() {}

var _ Backend = (*PhraseMatcher)(nil)
