package detect

import (
	"context"

	"github.com/harunnryd/voicetrigger/pkg/audio"
	"github.com/harunnryd/voicetrigger/pkg/frames"
)

// Unit is one piece of audio pulled for analysis: a frame for keyword
// spotting or a phrase for transcription.
type Unit struct {
	Frame  frames.AudioFrame
	Phrase audio.Phrase
}

// Backend is the detection strategy. The set of implementations is closed:
// KeywordSpotter and PhraseMatcher. It is chosen once when a detector is
// built.
type Backend interface {
	Kind() Kind
	// Params are the capture parameters the audio source must be opened with.
	Params() audio.Params
	// Sample blocks for the next unit of audio.
	Sample(ctx context.Context, stream audio.Stream) (Unit, error)
	// Analyze reports whether the unit contains the wake word.
	Analyze(ctx context.Context, u Unit) (bool, error)
	// Close releases the engine handle.
	Close() error

	sealed()
}
