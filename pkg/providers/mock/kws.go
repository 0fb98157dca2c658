package mock

import (
	"sync"

	"github.com/harunnryd/voicetrigger/pkg/adapters/kws"
)

type KeywordConfig struct {
	SampleRate  int
	FrameLength int
	// Script is the sequence of Process results; -1 is no match. Once it is
	// exhausted every frame yields -1.
	Script []int
	// Err, when set, is returned by Process after the script runs out.
	Err error
}

// KeywordEngine replays a scripted sequence of keyword indices.
type KeywordEngine struct {
	cfg       KeywordConfig
	mu        sync.Mutex
	pos       int
	processed int
	closed    bool
	keywords  []string
}

func NewKeywordEngine(cfg KeywordConfig) *KeywordEngine {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FrameLength == 0 {
		cfg.FrameLength = 512
	}
	return &KeywordEngine{cfg: cfg}
}

// KeywordFactory returns a kws.Factory that hands out engine and records the
// keywords it was created with.
func KeywordFactory(engine *KeywordEngine) kws.Factory {
	return func(keywords []string, _ []float32) (kws.Engine, error) {
		engine.mu.Lock()
		engine.keywords = append([]string(nil), keywords...)
		engine.mu.Unlock()
		return engine, nil
	}
}

func (e *KeywordEngine) Name() string     { return "mock_kws" }
func (e *KeywordEngine) SampleRate() int  { return e.cfg.SampleRate }
func (e *KeywordEngine) FrameLength() int { return e.cfg.FrameLength }

func (e *KeywordEngine) Process(pcm []int16) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.processed++
	if e.pos < len(e.cfg.Script) {
		v := e.cfg.Script[e.pos]
		e.pos++
		return v, nil
	}
	if e.cfg.Err != nil {
		return -1, e.cfg.Err
	}
	return -1, nil
}

func (e *KeywordEngine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

// Processed returns the number of frames seen.
func (e *KeywordEngine) Processed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processed
}

func (e *KeywordEngine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *KeywordEngine) Keywords() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.keywords...)
}

var _ kws.Engine = (*KeywordEngine)(nil)
