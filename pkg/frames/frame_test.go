package frames

import (
	"testing"
	"time"
)

func TestAudioFrameIsImmutable(t *testing.T) {
	src := []int16{1, 2, 3, 4}
	f := NewAudioFrame(0, src, 16000, 1)
	src[0] = 99
	if f.RawSamples()[0] != 1 {
		t.Fatalf("frame shares caller buffer")
	}
}

func TestAudioFrameDuration(t *testing.T) {
	f := NewAudioFrame(0, make([]int16, 512), 16000, 1)
	if got := f.Duration(); got != 32*time.Millisecond {
		t.Fatalf("expected 32ms, got %s", got)
	}
	stereo := NewAudioFrame(0, make([]int16, 640), 16000, 2)
	if got := stereo.Duration(); got != 20*time.Millisecond {
		t.Fatalf("expected 20ms, got %s", got)
	}
}

func TestPTSGenAdvancesBySamples(t *testing.T) {
	g := NewPTSGen(16000, 1)
	if g.Next(16000) != 0 {
		t.Fatalf("first frame should start at zero")
	}
	if got := g.Next(16000); got != int64(time.Second) {
		t.Fatalf("expected 1s, got %d", got)
	}
}
