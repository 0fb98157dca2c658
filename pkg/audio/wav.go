package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/harunnryd/voicetrigger/pkg/errorsx"
	"github.com/harunnryd/voicetrigger/pkg/frames"
)

const wavPCMFormat = 1

// WAV encodes the phrase as a 16-bit PCM RIFF/WAVE file.
func (p Phrase) WAV() ([]byte, error) {
	if p.SampleRate <= 0 || p.Channels <= 0 {
		return nil, fmt.Errorf("phrase has no format")
	}
	ws := &seekBuffer{}
	enc := wav.NewEncoder(ws, p.SampleRate, 16, p.Channels, wavPCMFormat)
	data := make([]int, len(p.Samples))
	for i, s := range p.Samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{NumChannels: p.Channels, SampleRate: p.SampleRate},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav: %w", err)
	}
	return ws.buf, nil
}

// WAVSource replays a 16-bit PCM WAV file as if it were a capture device.
// The device index is ignored.
type WAVSource struct {
	path     string
	realtime bool
}

func NewWAVSource(path string, realtime bool) *WAVSource {
	return &WAVSource{path: path, realtime: realtime}
}

func (s *WAVSource) Name() string { return "wav" }

func (s *WAVSource) Open(p Params) (Stream, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, errorsx.Wrapf(err, errorsx.ReasonDevice, "open wav %s", s.path)
	}
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		_ = f.Close()
		return nil, errorsx.New(errorsx.ReasonDevice, "%s is not a valid wav file", s.path)
	}
	if int(dec.SampleRate) != p.SampleRate || int(dec.NumChans) != p.Channels || dec.BitDepth != 16 {
		_ = f.Close()
		return nil, errorsx.New(errorsx.ReasonDevice,
			"wav %s is %dHz/%dch/%dbit, need %dHz/%dch/16bit",
			s.path, dec.SampleRate, dec.NumChans, dec.BitDepth, p.SampleRate, p.Channels)
	}
	if err := dec.FwdToPCM(); err != nil {
		_ = f.Close()
		return nil, errorsx.Wrapf(err, errorsx.ReasonDevice, "seek wav data")
	}
	n := p.FrameLength * p.Channels
	return &wavStream{
		file:     f,
		dec:      dec,
		params:   p,
		buf:      &goaudio.IntBuffer{Data: make([]int, n), Format: dec.Format()},
		pts:      frames.NewPTSGen(p.SampleRate, p.Channels),
		realtime: s.realtime,
		start:    time.Now(),
	}, nil
}

type wavStream struct {
	file     *os.File
	dec      *wav.Decoder
	params   Params
	buf      *goaudio.IntBuffer
	pts      *frames.PTSGen
	realtime bool
	start    time.Time
	once     sync.Once
}

func (w *wavStream) Read() (frames.AudioFrame, error) {
	n, err := w.dec.PCMBuffer(w.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return frames.AudioFrame{}, err
	}
	if n == 0 {
		return frames.AudioFrame{}, io.EOF
	}
	// The last frame is zero-padded to keep frames fixed-length.
	samples := make([]int16, len(w.buf.Data))
	for i := 0; i < n; i++ {
		samples[i] = int16(w.buf.Data[i])
	}
	pts := w.pts.Next(len(samples))
	f := frames.NewAudioFrame(pts, samples, w.params.SampleRate, w.params.Channels)
	if w.realtime {
		due := w.start.Add(time.Duration(pts) + f.Duration())
		if d := time.Until(due); d > 0 {
			time.Sleep(d)
		}
	}
	return f, nil
}

func (w *wavStream) Close() error {
	var err error
	w.once.Do(func() { err = w.file.Close() })
	return err
}

// seekBuffer is an in-memory io.WriteSeeker for the wav encoder, which
// patches the RIFF header sizes after writing samples.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + len(p)
	if end > len(s.buf) {
		s.buf = append(s.buf, make([]byte, end-len(s.buf))...)
	}
	copy(s.buf[s.pos:], p)
	s.pos = end
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(s.pos)
	case io.SeekEnd:
		base = int64(len(s.buf))
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	next := base + offset
	if next < 0 {
		return 0, fmt.Errorf("negative position %d", next)
	}
	s.pos = int(next)
	return next, nil
}
