package stt

import (
	"context"

	"github.com/harunnryd/voicetrigger/pkg/audio"
)

// Recognizer defines the contract for phrase transcription vendors.
type Recognizer interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Recognize transcribes one phrase, biased toward hints. When no speech
	// could be understood it returns an error with
	// errorsx.ReasonRecognitionAmbiguous; any other error is fatal for the
	// attempt.
	Recognize(ctx context.Context, phrase audio.Phrase, hints []string) (string, error)
	// Close releases connections held by the recognizer.
	Close() error
}
