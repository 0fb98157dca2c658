package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\s\-]{7,}\d`)
)

// SetEnabled toggles PII redaction.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled returns true when redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text redacts emails and phone numbers when enabled.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[REDACTED_EMAIL]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	return out
}

// Secret masks a credential, keeping the last four characters of long
// values. It applies whether or not PII redaction is enabled.
func Secret(in string) string {
	in = strings.TrimSpace(in)
	switch {
	case in == "":
		return ""
	case len(in) <= 8:
		return "****"
	default:
		return "****" + in[len(in)-4:]
	}
}

var secretKeys = []string{"key", "token", "secret", "password", "auth"}

// Settings returns a copy of a provider settings map with credential-like
// values masked.
func Settings(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		s, ok := v.(string)
		if ok && isSecretKey(k) {
			out[k] = Secret(s)
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = Settings(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func isSecretKey(k string) bool {
	k = strings.ToLower(k)
	for _, s := range secretKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
