package detect

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/voicetrigger/pkg/adapters/kws"
	"github.com/harunnryd/voicetrigger/pkg/adapters/stt"
	"github.com/harunnryd/voicetrigger/pkg/errorsx"
	"github.com/harunnryd/voicetrigger/pkg/metrics"
	"github.com/harunnryd/voicetrigger/pkg/providers/mock"
)

func TestParseKindAliases(t *testing.T) {
	cases := map[string]Kind{
		"porcupine":              LocalKeywordSpotting,
		"LOCAL_KEYWORD_SPOTTING": LocalKeywordSpotting,
		"sapi":                   PhraseTranscription,
		" transcription ":        PhraseTranscription,
	}
	for in, want := range cases {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseKind("unknown"); !errorsx.HasReason(err, errorsx.ReasonConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	base := Config{Kind: LocalKeywordSpotting, WakeWord: "computer", Sensitivity: 0.5}
	if err := base.WithDefaults().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	bad := []Config{
		{Kind: KindUnknown, WakeWord: "computer"},
		{Kind: LocalKeywordSpotting, WakeWord: "  "},
		{Kind: LocalKeywordSpotting, WakeWord: "computer", Sensitivity: 1.5},
		{Kind: LocalKeywordSpotting, WakeWord: "computer", Debounce: -time.Second},
	}
	for i, cfg := range bad {
		if err := cfg.Validate(); !errorsx.HasReason(err, errorsx.ReasonConfiguration) {
			t.Fatalf("case %d: expected configuration error, got %v", i, err)
		}
	}
	// Sensitivity only applies to keyword spotting.
	phrase := Config{Kind: PhraseTranscription, WakeWord: "computer", Sensitivity: 3}
	if err := phrase.Validate(); err != nil {
		t.Fatalf("phrase config rejected: %v", err)
	}
	if d := (Config{}).WithDefaults(); d.Debounce != DefaultDebounce || d.PhraseTimeLimit != DefaultPhraseTimeLimit {
		t.Fatalf("defaults not applied: %+v", d)
	}
}

func TestDebouncer(t *testing.T) {
	base := time.Now()
	d := NewDebouncer(5 * time.Second)
	if _, ok := d.Last(); ok {
		t.Fatalf("fresh debouncer should have no last acceptance")
	}
	if !d.Accept(base) {
		t.Fatalf("first match must be accepted")
	}
	if d.Accept(base.Add(4999 * time.Millisecond)) {
		t.Fatalf("match inside the window must be suppressed")
	}
	if last, _ := d.Last(); !last.Equal(base) {
		t.Fatalf("suppressed match must not move the window")
	}
	if !d.Accept(base.Add(5 * time.Second)) {
		t.Fatalf("match at exactly the interval must be accepted")
	}
	if last, _ := d.Last(); !last.Equal(base.Add(5 * time.Second)) {
		t.Fatalf("accepted match must move the window")
	}
}

func TestKeywordDebounceScenario(t *testing.T) {
	frameTimes := []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 7 * time.Second}
	cases := []struct {
		name       string
		script     []int
		suppressed int
	}{
		{name: "sparse matches", script: []int{-1, -1, 0, -1, 0}, suppressed: 0},
		{name: "repeat inside window", script: []int{-1, -1, 0, 0, 0}, suppressed: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := mock.NewKeywordEngine(mock.KeywordConfig{Script: tc.script})
			base := time.Now()
			// Stamp each raw match with the time of the frame that produced it.
			clock := func() time.Time { return base.Add(frameTimes[engine.Processed()-1]) }
			obs := metrics.NewMemoryObserver()
			det, err := New(
				Config{Kind: LocalKeywordSpotting, WakeWord: "Computer", Sensitivity: 0.5, Debounce: 5 * time.Second},
				Deps{
					Backends: NewRegistry(mock.KeywordFactory(engine), nil),
					Source:   mock.NewSource(mock.SourceConfig{}),
					Clock:    clock,
					Observer: obs,
				},
			)
			if err != nil {
				t.Fatalf("new detector: %v", err)
			}
			defer det.Close()

			first, err := det.AwaitDetection(context.Background())
			if err != nil {
				t.Fatalf("first detection: %v", err)
			}
			if got := first.At.Sub(base); got != 200*time.Millisecond {
				t.Fatalf("first event at %s, want 200ms", got)
			}
			second, err := det.AwaitDetection(context.Background())
			if err != nil {
				t.Fatalf("second detection: %v", err)
			}
			if got := second.At.Sub(base); got != 7*time.Second {
				t.Fatalf("second event at %s, want 7s", got)
			}
			if engine.Processed() != len(frameTimes) {
				t.Fatalf("expected %d frames processed, got %d", len(frameTimes), engine.Processed())
			}
			if first.ID == "" || first.ID == second.ID {
				t.Fatalf("events need distinct ids: %q %q", first.ID, second.ID)
			}
			if kw := engine.Keywords(); len(kw) != 1 || kw[0] != "computer" {
				t.Fatalf("engine created with %v", kw)
			}
			counts := map[string]int{}
			for _, ev := range obs.Events {
				counts[ev.Name]++
			}
			if counts["detect.accepted"] != 2 || counts["detect.suppressed"] != tc.suppressed {
				t.Fatalf("unexpected metric counts: %v", counts)
			}
		})
	}
}

func TestTranscriptionAmbiguityScenario(t *testing.T) {
	rec := mock.NewRecognizer(mock.RecognizerConfig{
		Script: []mock.Result{
			{Err: errorsx.New(errorsx.ReasonRecognitionAmbiguous, "no speech understood")},
			{Err: errorsx.New(errorsx.ReasonRecognitionAmbiguous, "no speech understood")},
			{Text: "hey Computer now"},
		},
	})
	src := mock.NewSource(mock.SourceConfig{Fallback: 2000})
	det, err := New(
		Config{Kind: PhraseTranscription, WakeWord: "computer", PhraseTimeLimit: 100 * time.Millisecond},
		Deps{
			Backends: NewRegistry(nil, func(Config) (stt.Recognizer, error) { return rec, nil }),
			Source:   src,
		},
	)
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	defer det.Close()

	ev, err := det.AwaitDetection(context.Background())
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if rec.Calls() != 3 {
		t.Fatalf("expected detection after the third attempt, got %d calls", rec.Calls())
	}
	if ev.Backend != PhraseTranscription || ev.WakeWord != "computer" {
		t.Fatalf("unexpected event %+v", ev)
	}
	for _, h := range rec.Hints() {
		if len(h) != 1 || h[0] != "computer" {
			t.Fatalf("recognizer not biased toward wake word: %v", h)
		}
	}
	p := src.Params()[0]
	if p.SampleRate != PhraseSampleRate || p.Channels != 1 {
		t.Fatalf("phrase backend opened %+v", p)
	}
}

func TestRecognitionFailureIsFatal(t *testing.T) {
	rec := mock.NewRecognizer(mock.RecognizerConfig{Fallback: mock.Result{Err: errors.New("service unavailable")}})
	det, err := New(
		Config{Kind: PhraseTranscription, WakeWord: "computer", PhraseTimeLimit: 50 * time.Millisecond},
		Deps{
			Backends: NewRegistry(nil, func(Config) (stt.Recognizer, error) { return rec, nil }),
			Source:   mock.NewSource(mock.SourceConfig{Fallback: 2000}),
		},
	)
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	defer det.Close()
	_, err = det.AwaitDetection(context.Background())
	if !errorsx.HasReason(err, errorsx.ReasonRecognition) {
		t.Fatalf("expected recognition error, got %v", err)
	}
}

func TestUnknownBackendOpensNoDevice(t *testing.T) {
	src := mock.NewSource(mock.SourceConfig{})
	_, err := New(Config{Kind: KindUnknown, WakeWord: "computer"}, Deps{
		Backends: NewRegistry(mock.KeywordFactory(mock.NewKeywordEngine(mock.KeywordConfig{})), nil),
		Source:   src,
	})
	if !errorsx.HasReason(err, errorsx.ReasonConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if src.Opens() != 0 {
		t.Fatalf("device opened for invalid config")
	}
}

func TestEngineFailureOpensNoDevice(t *testing.T) {
	src := mock.NewSource(mock.SourceConfig{})
	factory := func([]string, []float32) (kws.Engine, error) { return nil, errors.New("unknown keyword") }
	_, err := New(Config{Kind: LocalKeywordSpotting, WakeWord: "xyzzy", Sensitivity: 0.5}, Deps{
		Backends: NewRegistry(factory, nil),
		Source:   src,
	})
	if !errorsx.HasReason(err, errorsx.ReasonConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if src.Opens() != 0 {
		t.Fatalf("device opened after engine failure")
	}
}

func TestOpenFailureClosesBackend(t *testing.T) {
	engine := mock.NewKeywordEngine(mock.KeywordConfig{})
	_, err := New(Config{Kind: LocalKeywordSpotting, WakeWord: "computer"}, Deps{
		Backends: NewRegistry(mock.KeywordFactory(engine), nil),
		Source:   mock.NewSource(mock.SourceConfig{OpenErr: errors.New("no such device")}),
	})
	if !errorsx.HasReason(err, errorsx.ReasonDevice) {
		t.Fatalf("expected device error, got %v", err)
	}
	if !engine.Closed() {
		t.Fatalf("engine leaked after open failure")
	}
}

func TestAwaitDetectionCancellation(t *testing.T) {
	src := mock.NewSource(mock.SourceConfig{Interval: 5 * time.Millisecond})
	det, err := New(Config{Kind: LocalKeywordSpotting, WakeWord: "computer"}, Deps{
		Backends: NewRegistry(mock.KeywordFactory(mock.NewKeywordEngine(mock.KeywordConfig{})), nil),
		Source:   src,
	})
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	defer det.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := det.AwaitDetection(ctx)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("cancellation not observed")
	}
	if det.State() != StateIdle {
		t.Fatalf("expected IDLE after cancel, got %s", det.State())
	}
}

func TestReadFailureIsUnrecoverable(t *testing.T) {
	src := mock.NewSource(mock.SourceConfig{ReadErr: errors.New("device unplugged"), ReadErrAfter: 2})
	det, err := New(Config{Kind: LocalKeywordSpotting, WakeWord: "computer"}, Deps{
		Backends: NewRegistry(mock.KeywordFactory(mock.NewKeywordEngine(mock.KeywordConfig{})), nil),
		Source:   src,
	})
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	defer det.Close()
	_, err = det.AwaitDetection(context.Background())
	if !errorsx.HasReason(err, errorsx.ReasonUnrecoverableIO) {
		t.Fatalf("expected unrecoverable io error, got %v", err)
	}
	if !strings.Contains(err.Error(), "device unplugged") {
		t.Fatalf("cause lost: %v", err)
	}
}

func TestMidStreamDeviceErrorIsUnrecoverable(t *testing.T) {
	src := mock.NewSource(mock.SourceConfig{ReadErr: errorsx.New(errorsx.ReasonDevice, "unplugged"), ReadErrAfter: 2})
	det, err := New(Config{Kind: LocalKeywordSpotting, WakeWord: "computer"}, Deps{
		Backends: NewRegistry(mock.KeywordFactory(mock.NewKeywordEngine(mock.KeywordConfig{})), nil),
		Source:   src,
	})
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	defer det.Close()
	_, err = det.AwaitDetection(context.Background())
	if got := errorsx.Reason(err); got != errorsx.ReasonUnrecoverableIO {
		t.Fatalf("expected unrecoverable_io, got %s (%v)", got, err)
	}
}

func TestCycleTransitions(t *testing.T) {
	var (
		mu    sync.Mutex
		trail []CycleState
	)
	engine := mock.NewKeywordEngine(mock.KeywordConfig{Script: []int{-1, 0}})
	det, err := New(Config{Kind: LocalKeywordSpotting, WakeWord: "computer"}, Deps{
		Backends: NewRegistry(mock.KeywordFactory(engine), nil),
		Source:   mock.NewSource(mock.SourceConfig{}),
		OnState: func(c StateChange) {
			mu.Lock()
			trail = append(trail, c.To)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	defer det.Close()
	if _, err := det.AwaitDetection(context.Background()); err != nil {
		t.Fatalf("await: %v", err)
	}
	want := []CycleState{StateSampling, StateAnalyzing, StateRejected, StateSampling, StateAnalyzing, StateAccepted, StateIdle}
	mu.Lock()
	defer mu.Unlock()
	if len(trail) != len(want) {
		t.Fatalf("transitions %v, want %v", trail, want)
	}
	for i := range want {
		if trail[i] != want[i] {
			t.Fatalf("transitions %v, want %v", trail, want)
		}
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	c := &cycle{current: StateIdle}
	err := c.transition(StateAccepted, "skip")
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected invalid transition error, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	engine := mock.NewKeywordEngine(mock.KeywordConfig{})
	src := mock.NewSource(mock.SourceConfig{})
	det, err := New(Config{Kind: LocalKeywordSpotting, WakeWord: "computer"}, Deps{
		Backends: NewRegistry(mock.KeywordFactory(engine), nil),
		Source:   src,
	})
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	if err := det.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := det.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if src.Active() != 0 || !engine.Closed() {
		t.Fatalf("resources not released")
	}
	if _, err := det.AwaitDetection(context.Background()); !errorsx.HasReason(err, errorsx.ReasonInvalidState) {
		t.Fatalf("expected invalid state after close, got %v", err)
	}
}
