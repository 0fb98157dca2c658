package frames

import "time"

// AudioFrame is a fixed-length buffer of signed 16-bit PCM samples. The
// sample slice is copied on construction and never mutated afterwards.
type AudioFrame struct {
	pts     int64
	samples []int16
	rate    int
	ch      int
}

// NewAudioFrame copies samples into a new frame. pts is the presentation
// timestamp in nanoseconds relative to stream start.
func NewAudioFrame(pts int64, samples []int16, rate, ch int) AudioFrame {
	if ch <= 0 {
		ch = 1
	}
	return AudioFrame{
		pts:     pts,
		samples: append([]int16(nil), samples...),
		rate:    rate,
		ch:      ch,
	}
}

func (a AudioFrame) PTS() int64       { return a.pts }
func (a AudioFrame) Rate() int        { return a.rate }
func (a AudioFrame) Channels() int    { return a.ch }
func (a AudioFrame) Len() int         { return len(a.samples) }

// RawSamples exposes the backing slice without copying. Callers must not
// modify it.
func (a AudioFrame) RawSamples() []int16 { return a.samples }

// Duration is the wall-clock length of the frame.
func (a AudioFrame) Duration() time.Duration {
	if a.rate <= 0 || a.ch <= 0 {
		return 0
	}
	perChannel := len(a.samples) / a.ch
	return time.Duration(perChannel) * time.Second / time.Duration(a.rate)
}

// PTSGen derives frame timestamps from the running sample count of a stream.
type PTSGen struct {
	rate    int
	ch      int
	samples int64
}

func NewPTSGen(rate, ch int) *PTSGen {
	if ch <= 0 {
		ch = 1
	}
	return &PTSGen{rate: rate, ch: ch}
}

// Next returns the timestamp for a frame of n interleaved samples and
// advances the generator.
func (g *PTSGen) Next(n int) int64 {
	if g.rate <= 0 {
		return 0
	}
	pts := g.samples * int64(time.Second) / int64(g.rate)
	g.samples += int64(n / g.ch)
	return pts
}
