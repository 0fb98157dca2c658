package configutil

import (
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/voicetrigger/pkg/errorsx"
)

func TestValidateSettingsReportsMissingAndUnknown(t *testing.T) {
	err := ValidateSettings("providers.keyword.settings", map[string]any{
		"Access-Key": " ",
		"voice":      "x",
	}, Schema{Required: []string{"access_key", "model_path"}})
	if !errorsx.HasReason(err, errorsx.ReasonConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"providers.keyword.settings", "missing: access_key, model_path", "unknown: voice"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q does not mention %q", msg, want)
		}
	}
}

func TestValidateSettingsAllowUnknown(t *testing.T) {
	err := ValidateSettings("audio.settings", map[string]any{"path": "a.wav", "extra": 1},
		Schema{Required: []string{"path"}, AllowUnknown: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecodeSettingsDurationsAndLists(t *testing.T) {
	var out struct {
		Backoff  time.Duration `mapstructure:"backoff"`
		To       []string      `mapstructure:"to"`
		Retries  int           `mapstructure:"max_retries"`
		Realtime bool          `mapstructure:"realtime"`
	}
	err := DecodeSettings(map[string]any{
		"Backoff":     "250ms",
		"to":          "+100,+200",
		"max-retries": "3",
		"realtime":    "true",
	}, &out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Backoff != 250*time.Millisecond || out.Retries != 3 || !out.Realtime {
		t.Fatalf("unexpected decode %+v", out)
	}
	if len(out.To) != 2 || out.To[1] != "+200" {
		t.Fatalf("list not split: %v", out.To)
	}
}

func TestDecodeSettingsBadValue(t *testing.T) {
	var out struct {
		Backoff time.Duration `mapstructure:"backoff"`
	}
	err := DecodeSettings(map[string]any{"backoff": "soon"}, &out)
	if !errorsx.HasReason(err, errorsx.ReasonConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
