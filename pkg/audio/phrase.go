package audio

import (
	"context"
	"math"
	"time"

	"github.com/harunnryd/voicetrigger/pkg/frames"
)

// PhraseOptions bound a single phrase capture.
type PhraseOptions struct {
	// TimeLimit caps the phrase length measured from speech onset.
	TimeLimit time.Duration
	// EnergyThreshold is the RMS level (int16 scale) that counts as speech.
	EnergyThreshold float64
	// PauseThreshold is the trailing silence that ends a phrase.
	PauseThreshold time.Duration
	// PreRoll is the audio kept from before speech onset.
	PreRoll time.Duration
}

func (o PhraseOptions) withDefaults() PhraseOptions {
	if o.TimeLimit <= 0 {
		o.TimeLimit = 5 * time.Second
	}
	if o.EnergyThreshold <= 0 {
		o.EnergyThreshold = 300
	}
	if o.PauseThreshold <= 0 {
		o.PauseThreshold = 800 * time.Millisecond
	}
	if o.PreRoll < 0 {
		o.PreRoll = 0
	} else if o.PreRoll == 0 {
		o.PreRoll = 300 * time.Millisecond
	}
	return o
}

// Phrase is a bounded capture handed to a recognizer.
type Phrase struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

func (p Phrase) Duration() time.Duration {
	if p.SampleRate <= 0 || p.Channels <= 0 {
		return 0
	}
	return time.Duration(len(p.Samples)/p.Channels) * time.Second / time.Duration(p.SampleRate)
}

// CapturePhrase reads frames until speech starts, then records until a pause
// or the time limit. ctx is checked before every read, so cancellation takes
// effect within one frame interval.
func CapturePhrase(ctx context.Context, stream Stream, opts PhraseOptions) (Phrase, error) {
	opts = opts.withDefaults()

	var (
		preroll  []frames.AudioFrame
		preDur   time.Duration
		out      Phrase
		speaking bool
		recorded time.Duration
		silence  time.Duration
	)
	for {
		if err := ctx.Err(); err != nil {
			return Phrase{}, err
		}
		f, err := stream.Read()
		if err != nil {
			return Phrase{}, err
		}
		loud := RMS(f.RawSamples()) >= opts.EnergyThreshold

		if !speaking {
			if !loud {
				preroll = append(preroll, f)
				preDur += f.Duration()
				for len(preroll) > 0 && preDur > opts.PreRoll {
					preDur -= preroll[0].Duration()
					preroll = preroll[1:]
				}
				continue
			}
			speaking = true
			out.SampleRate = f.Rate()
			out.Channels = f.Channels()
			for _, p := range preroll {
				out.Samples = append(out.Samples, p.RawSamples()...)
			}
			preroll = nil
		}

		out.Samples = append(out.Samples, f.RawSamples()...)
		recorded += f.Duration()
		if loud {
			silence = 0
		} else {
			silence += f.Duration()
		}
		if silence >= opts.PauseThreshold || recorded >= opts.TimeLimit {
			return out, nil
		}
	}
}

// RMS returns the root-mean-square level of samples on the int16 scale.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
