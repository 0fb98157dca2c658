package deepgram

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/voicetrigger/pkg/audio"
	"github.com/harunnryd/voicetrigger/pkg/errorsx"
)

type fakeTranscriber struct {
	results []string
	errs    []error
	calls   int
	hints   []string
}

func (f *fakeTranscriber) transcribe(_ context.Context, wav []byte, hints []string) (string, error) {
	i := f.calls
	f.calls++
	f.hints = hints
	if len(wav) < 44 {
		return "", errors.New("missing wav header")
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return "", nil
}

func phrase() audio.Phrase {
	return audio.Phrase{Samples: make([]int16, 1600), SampleRate: 16000, Channels: 1}
}

func testConfig() Config {
	return Config{APIKey: "key", MaxRetries: 2, Backoff: time.Millisecond}.withDefaults()
}

func TestRecognizeReturnsTranscript(t *testing.T) {
	fake := &fakeTranscriber{results: []string{" hey computer "}}
	r := newRecognizer(testConfig(), fake)
	text, err := r.Recognize(context.Background(), phrase(), []string{"computer"})
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if text != "hey computer" {
		t.Fatalf("unexpected transcript %q", text)
	}
	if len(fake.hints) != 1 || fake.hints[0] != "computer" {
		t.Fatalf("keywords not forwarded: %v", fake.hints)
	}
}

func TestEmptyTranscriptIsAmbiguous(t *testing.T) {
	r := newRecognizer(testConfig(), &fakeTranscriber{results: []string{""}})
	_, err := r.Recognize(context.Background(), phrase(), nil)
	if !errorsx.HasReason(err, errorsx.ReasonRecognitionAmbiguous) {
		t.Fatalf("expected ambiguous, got %v", err)
	}
}

func TestTransportErrorsRetryThenFail(t *testing.T) {
	fake := &fakeTranscriber{errs: []error{errors.New("502"), errors.New("502"), errors.New("502")}}
	r := newRecognizer(testConfig(), fake)
	_, err := r.Recognize(context.Background(), phrase(), nil)
	if !errorsx.HasReason(err, errorsx.ReasonRecognition) {
		t.Fatalf("expected recognition error, got %v", err)
	}
	if fake.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", fake.calls)
	}
}

func TestTransportErrorRecovers(t *testing.T) {
	fake := &fakeTranscriber{errs: []error{errors.New("502")}, results: []string{"", "computer"}}
	r := newRecognizer(testConfig(), fake)
	text, err := r.Recognize(context.Background(), phrase(), nil)
	if err != nil || text != "computer" {
		t.Fatalf("expected recovery, got %q %v", text, err)
	}
}

func TestConfigRequiresKey(t *testing.T) {
	if _, err := New(Config{}); !errorsx.HasReason(err, errorsx.ReasonConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
