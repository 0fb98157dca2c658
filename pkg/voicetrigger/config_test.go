package voicetrigger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harunnryd/voicetrigger/pkg/detect"
	"github.com/harunnryd/voicetrigger/pkg/errorsx"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func load(t *testing.T, path string) (Config, error) {
	t.Helper()
	return NewLoader(path).WithEnvFile("").Load()
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
detector:
  backend: porcupine
  wake_word: computer
  device_index: 1
audio:
  provider: mock
providers:
  keyword:
    provider: mock
`)
	t.Setenv("WAKE_WORD", "Jarvis")

	cfg, err := load(t, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	dc := cfg.DetectorConfig()
	if dc.WakeWord != "Jarvis" {
		t.Fatalf("expected env wake word, got %q", dc.WakeWord)
	}
	if dc.Kind != detect.LocalKeywordSpotting || dc.DeviceIndex != 1 {
		t.Fatalf("unexpected detector config %+v", dc)
	}
	if dc.Debounce != 5*time.Second || dc.Sensitivity != 0.5 {
		t.Fatalf("defaults not applied: %+v", dc)
	}
	if cfg.LogLevel != "info" || !cfg.Privacy.RedactPII {
		t.Fatalf("unexpected ambient defaults: level=%q redact=%v", cfg.LogLevel, cfg.Privacy.RedactPII)
	}
}

func TestLoadConfigPrefixedEnvBeatsLegacy(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "audio:\n  provider: mock\n")
	t.Setenv("WAKE_WORD", "legacy")
	t.Setenv("VOICETRIGGER_DETECTOR_WAKE_WORD", "prefixed")
	t.Setenv("DEVICE_INDEX", "2")

	cfg, err := load(t, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Detector.WakeWord != "prefixed" {
		t.Fatalf("expected prefixed variable to win, got %q", cfg.Detector.WakeWord)
	}
	if cfg.Detector.DeviceIndex != 2 {
		t.Fatalf("expected device index 2, got %d", cfg.Detector.DeviceIndex)
	}
}

func TestLoadConfigLegacyFlatKeys(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
wake_word: jarvis
stt_backend: sapi
audio:
  provider: mock
providers:
  transcription:
    provider: mock
`)
	cfg, err := load(t, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	dc := cfg.DetectorConfig()
	if dc.Kind != detect.PhraseTranscription || dc.WakeWord != "jarvis" {
		t.Fatalf("legacy keys not mapped: %+v", dc)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := load(t, filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Detector.WakeWord != "computer" || cfg.Audio.Provider != "portaudio" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.DetectorConfig().Kind != detect.LocalKeywordSpotting {
		t.Fatalf("expected keyword spotting by default")
	}
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "detector:\n  backend: banana\n")
	_, err := load(t, path)
	if !errorsx.HasReason(err, errorsx.ReasonConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLoadConfigRejectsBadSensitivity(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "detector:\n  sensitivity: 1.5\n")
	_, err := load(t, path)
	if !errorsx.HasReason(err, errorsx.ReasonConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLoadConfigExpandsSettings(t *testing.T) {
	t.Setenv("TEST_PV_KEY", "pv-secret")
	path := writeFile(t, t.TempDir(), "config.yaml", `
providers:
  keyword:
    provider: porcupine
    settings:
      access_key: ${TEST_PV_KEY}
      keyword_paths:
        jarvis: ${TEST_PV_KEY}/jarvis.ppn
`)
	cfg, err := load(t, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	settings := cfg.Providers.Keyword.Settings
	if settings["access_key"] != "pv-secret" {
		t.Fatalf("access_key not expanded: %v", settings["access_key"])
	}
	paths, ok := settings["keyword_paths"].(map[string]any)
	if !ok || paths["jarvis"] != "pv-secret/jarvis.ppn" {
		t.Fatalf("nested setting not expanded: %#v", settings["keyword_paths"])
	}
}

func TestLoadConfigDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "audio:\n  provider: mock\n")
	envFile := writeFile(t, dir, ".env", "WAKE_WORD=fromfile\nVOICETRIGGER_LOG_FORMAT=json\n")
	t.Setenv("WAKE_WORD", "fromenv")
	t.Cleanup(func() { _ = os.Unsetenv("VOICETRIGGER_LOG_FORMAT") })

	cfg, err := NewLoader(path).WithEnvFile(envFile).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Detector.WakeWord != "fromenv" {
		t.Fatalf(".env overrode the environment: %q", cfg.Detector.WakeWord)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("expected log format from .env, got %q", cfg.LogFormat)
	}
}

func TestNewLoaderUsesConfigFileEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "/etc/voicetrigger/custom.yaml")
	if got := NewLoader("").Path(); got != "/etc/voicetrigger/custom.yaml" {
		t.Fatalf("unexpected path %q", got)
	}
	if got := NewLoader("local.yaml").Path(); got != "local.yaml" {
		t.Fatalf("explicit path ignored: %q", got)
	}
}

func TestLoadConfigRejectsZeroDebounce(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "detector:\n  debounce_seconds: 0\n")
	_, err := load(t, path)
	if !errorsx.HasReason(err, errorsx.ReasonConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	path = writeFile(t, t.TempDir(), "config.yaml", "detector:\n  debounce_seconds: 0.5\n")
	cfg, err := load(t, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.DetectorConfig().Debounce; got != 500*time.Millisecond {
		t.Fatalf("expected 500ms debounce, got %s", got)
	}
}
