package mock

import (
	"fmt"
	"sync"
	"time"

	"github.com/harunnryd/voicetrigger/pkg/audio"
	"github.com/harunnryd/voicetrigger/pkg/errorsx"
	"github.com/harunnryd/voicetrigger/pkg/frames"
)

type SourceConfig struct {
	// Levels is the per-frame sample amplitude; after it runs out every frame
	// uses Fallback.
	Levels   []int16
	Fallback int16
	// Interval paces reads to simulate a live device.
	Interval time.Duration
	// OpenErr fails every Open.
	OpenErr error
	// ReadErr is returned instead of a frame once ReadErrAfter frames have
	// been served. Zero ReadErrAfter with a non-nil ReadErr fails the first
	// read.
	ReadErr      error
	ReadErrAfter int
}

// Source is a synthetic audio device. It records opens and closes so tests
// can check device ownership.
type Source struct {
	cfg SourceConfig

	mu        sync.Mutex
	log       []string
	opens     int
	active    int
	maxActive int
	params    []audio.Params
}

func NewSource(cfg SourceConfig) *Source {
	return &Source{cfg: cfg}
}

func (s *Source) Name() string { return "mock" }

func (s *Source) Open(p audio.Params) (audio.Stream, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if s.cfg.OpenErr != nil {
		return nil, errorsx.Wrap(s.cfg.OpenErr, errorsx.ReasonDevice)
	}
	s.mu.Lock()
	s.opens++
	id := s.opens
	s.active++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	s.params = append(s.params, p)
	s.log = append(s.log, fmt.Sprintf("open:%d", id))
	s.mu.Unlock()
	return &stream{src: s, id: id, params: p, pts: frames.NewPTSGen(p.SampleRate, p.Channels), done: make(chan struct{})}, nil
}

// Log returns "open:N" and "close:N" entries in order.
func (s *Source) Log() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.log...)
}

func (s *Source) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

// Active is the number of streams currently open.
func (s *Source) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// MaxActive is the largest number of simultaneously open streams observed.
func (s *Source) MaxActive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxActive
}

// Params returns the parameters of every Open call.
func (s *Source) Params() []audio.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audio.Params(nil), s.params...)
}

type stream struct {
	src    *Source
	id     int
	params audio.Params
	pts    *frames.PTSGen
	served int
	once   sync.Once
	done   chan struct{}
}

func (st *stream) Read() (frames.AudioFrame, error) {
	select {
	case <-st.done:
		return frames.AudioFrame{}, errorsx.New(errorsx.ReasonDevice, "mock stream %d closed", st.id)
	default:
	}
	if st.src.cfg.Interval > 0 {
		t := time.NewTimer(st.src.cfg.Interval)
		select {
		case <-st.done:
			t.Stop()
			return frames.AudioFrame{}, errorsx.New(errorsx.ReasonDevice, "mock stream %d closed", st.id)
		case <-t.C:
		}
	}
	if st.src.cfg.ReadErr != nil && st.served >= st.src.cfg.ReadErrAfter {
		return frames.AudioFrame{}, st.src.cfg.ReadErr
	}
	level := st.src.cfg.Fallback
	if st.served < len(st.src.cfg.Levels) {
		level = st.src.cfg.Levels[st.served]
	}
	st.served++
	n := st.params.FrameLength * st.params.Channels
	samples := make([]int16, n)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = level
		} else {
			samples[i] = -level
		}
	}
	return frames.NewAudioFrame(st.pts.Next(st.params.FrameLength), samples, st.params.SampleRate, st.params.Channels), nil
}

func (st *stream) Close() error {
	st.once.Do(func() {
		close(st.done)
		st.src.mu.Lock()
		st.src.active--
		st.src.log = append(st.src.log, fmt.Sprintf("close:%d", st.id))
		st.src.mu.Unlock()
	})
	return nil
}

var _ audio.Source = (*Source)(nil)
