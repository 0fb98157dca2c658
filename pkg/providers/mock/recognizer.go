package mock

import (
	"context"
	"sync"

	"github.com/harunnryd/voicetrigger/pkg/adapters/stt"
	"github.com/harunnryd/voicetrigger/pkg/audio"
	"github.com/harunnryd/voicetrigger/pkg/errorsx"
)

// Result is one scripted recognition outcome. An empty Text with a nil Err
// is reported as ambiguous.
type Result struct {
	Text string
	Err  error
}

type RecognizerConfig struct {
	Script []Result
	// Fallback is returned once the script is exhausted.
	Fallback Result
}

// Recognizer replays scripted transcripts.
type Recognizer struct {
	cfg    RecognizerConfig
	mu     sync.Mutex
	pos    int
	hints  [][]string
	closed bool
}

func NewRecognizer(cfg RecognizerConfig) *Recognizer {
	return &Recognizer{cfg: cfg}
}

func (r *Recognizer) Name() string { return "mock_stt" }

func (r *Recognizer) Recognize(ctx context.Context, _ audio.Phrase, hints []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.Lock()
	res := r.cfg.Fallback
	if r.pos < len(r.cfg.Script) {
		res = r.cfg.Script[r.pos]
		r.pos++
	}
	r.hints = append(r.hints, append([]string(nil), hints...))
	r.mu.Unlock()

	if res.Err != nil {
		return "", res.Err
	}
	if res.Text == "" {
		return "", errorsx.New(errorsx.ReasonRecognitionAmbiguous, "no speech recognized")
	}
	return res.Text, nil
}

func (r *Recognizer) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Calls returns the number of Recognize calls.
func (r *Recognizer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hints)
}

func (r *Recognizer) Hints() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.hints...)
}

func (r *Recognizer) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

var _ stt.Recognizer = (*Recognizer)(nil)
