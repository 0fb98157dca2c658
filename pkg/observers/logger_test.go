package observers

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/harunnryd/voicetrigger/pkg/metrics"
)

func TestMultiObserverFansOut(t *testing.T) {
	a := metrics.NewMemoryObserver()
	b := metrics.NewMemoryObserver()
	m := NewMultiObserver(a, nil, b)
	m.RecordEvent(metrics.Count(metrics.GenerationStarted, nil))
	if a.Count(metrics.GenerationStarted) != 1 || b.Count(metrics.GenerationStarted) != 1 {
		t.Fatalf("event not delivered to every observer")
	}
}

func TestLoggerObserverLevels(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	obs := NewLoggerObserver(log)

	obs.RecordEvent(metrics.Count(metrics.DetectSuppressed, map[string]string{"wake_word": "computer"}))
	if buf.Len() != 0 {
		t.Fatalf("suppressed match should log at debug, got %q", buf.String())
	}

	obs.RecordEvent(metrics.Count(metrics.DetectAccepted, map[string]string{"wake_word": "computer"}))
	out := buf.String()
	if !strings.Contains(out, "level=INFO") || !strings.Contains(out, "event=detect.accepted") || !strings.Contains(out, "wake_word=computer") {
		t.Fatalf("unexpected log line %q", out)
	}

	buf.Reset()
	obs.RecordEvent(metrics.Count(metrics.GenerationFailed, nil))
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Fatalf("failed generation should log at warn, got %q", buf.String())
	}
}
