package voicetrigger

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/harunnryd/voicetrigger/pkg/actions"
	"github.com/harunnryd/voicetrigger/pkg/detect"
	"github.com/harunnryd/voicetrigger/pkg/errorsx"
)

const (
	DefaultConfigFile = "config.yaml"
	envPrefix         = "VOICETRIGGER"
)

type Config struct {
	Detector      DetectorSettings    `mapstructure:"detector"`
	Audio         VendorConfig        `mapstructure:"audio"`
	Providers     ProvidersConfig     `mapstructure:"providers"`
	Actions       ActionsConfig       `mapstructure:"actions"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
}

type DetectorSettings struct {
	Backend                string  `mapstructure:"backend"`
	WakeWord               string  `mapstructure:"wake_word"`
	Sensitivity            float64 `mapstructure:"sensitivity"`
	DeviceIndex            int     `mapstructure:"device_index"`
	DebounceSeconds        float64 `mapstructure:"debounce_seconds"`
	PhraseTimeLimitSeconds float64 `mapstructure:"phrase_time_limit_seconds"`
	EnergyThreshold        float64 `mapstructure:"energy_threshold"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type ProvidersConfig struct {
	Keyword       VendorConfig `mapstructure:"keyword"`
	Transcription VendorConfig `mapstructure:"transcription"`
}

type ActionsConfig struct {
	Concurrency int             `mapstructure:"concurrency"`
	TimeoutMS   int             `mapstructure:"timeout_ms"`
	Websocket   WebsocketConfig `mapstructure:"websocket"`
	Twilio      TwilioConfig    `mapstructure:"twilio"`
}

type WebsocketConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	actions.HubConfig `mapstructure:",squash"`
}

type TwilioConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	actions.SMSConfig `mapstructure:",squash"`
}

type ObservabilityConfig struct {
	// EventsFile, when set, receives every detection and lifecycle event as
	// one JSON line.
	EventsFile string `mapstructure:"events_file"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

// legacyEnv maps config keys to the bare variable names older deployments
// set. The prefixed name wins when both are present.
var legacyEnv = map[string]string{
	"detector.wake_word":    "WAKE_WORD",
	"detector.backend":      "STT_BACKEND",
	"detector.device_index": "DEVICE_INDEX",
	"log_level":             "LOG_LEVEL",
}

// legacyKeys maps flat top-level file keys to their nested replacements.
var legacyKeys = map[string]string{
	"wake_word":    "detector.wake_word",
	"stt_backend":  "detector.backend",
	"device_index": "detector.device_index",
}

// Loader reads configuration from a YAML file, a .env file and the
// environment. Every Load builds a fresh viper instance, so a reload sees
// the current file and environment.
type Loader struct {
	path    string
	envFile string
}

// NewLoader resolves path: an empty path falls back to $CONFIG_FILE, then
// config.yaml in the working directory.
func NewLoader(path string) *Loader {
	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	}
	if path == "" {
		path = DefaultConfigFile
	}
	return &Loader{path: path, envFile: ".env"}
}

// WithEnvFile overrides the .env location. An empty name disables it.
func (l *Loader) WithEnvFile(name string) *Loader {
	l.envFile = name
	return l
}

func (l *Loader) Path() string { return l.path }

// LoadConfig is a one-shot Load of path.
func LoadConfig(path string) (Config, error) {
	return NewLoader(path).Load()
}

// Load reads and validates the configuration. A missing config file is not
// an error: defaults and environment overrides still apply.
func (l *Loader) Load() (Config, error) {
	if l.envFile != "" {
		// godotenv.Load does not override variables already set.
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, errorsx.Wrapf(err, errorsx.ReasonConfiguration, "load %s", l.envFile)
		}
	}

	v := viper.New()
	v.SetConfigFile(l.path)
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return Config{}, errorsx.Wrapf(err, errorsx.ReasonConfiguration, "bind env %s", legacy)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, errorsx.Wrapf(err, errorsx.ReasonConfiguration, "read config %s", l.path)
		}
	}
	for flat, nested := range legacyKeys {
		if v.InConfig(flat) && !v.InConfig(nested) {
			v.SetDefault(nested, v.Get(flat))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errorsx.Wrapf(err, errorsx.ReasonConfiguration, "unmarshal config")
	}
	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("detector.backend", "local_keyword_spotting")
	v.SetDefault("detector.wake_word", "computer")
	v.SetDefault("detector.sensitivity", detect.DefaultSensitivity)
	v.SetDefault("detector.device_index", 0)
	v.SetDefault("detector.debounce_seconds", detect.DefaultDebounce.Seconds())
	v.SetDefault("detector.phrase_time_limit_seconds", detect.DefaultPhraseTimeLimit.Seconds())
	v.SetDefault("detector.energy_threshold", 300)
	v.SetDefault("audio.provider", "portaudio")
	v.SetDefault("providers.keyword.provider", "porcupine")
	v.SetDefault("providers.transcription.provider", "deepgram")
	v.SetDefault("actions.concurrency", 2)
	v.SetDefault("actions.timeout_ms", 10000)
	v.SetDefault("actions.websocket.enabled", false)
	v.SetDefault("actions.websocket.addr", "127.0.0.1:8765")
	v.SetDefault("actions.websocket.path", "/events")
	v.SetDefault("actions.twilio.enabled", false)
	v.SetDefault("observability.events_file", "")
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

func (c Config) Validate() error {
	if _, err := detect.ParseKind(c.Detector.Backend); err != nil {
		return err
	}
	// detect.Config reads zero as unset.
	if c.Detector.DebounceSeconds <= 0 {
		return errorsx.New(errorsx.ReasonConfiguration, "detector.debounce_seconds must be positive, got %v", c.Detector.DebounceSeconds)
	}
	if c.Detector.PhraseTimeLimitSeconds <= 0 {
		return errorsx.New(errorsx.ReasonConfiguration, "detector.phrase_time_limit_seconds must be positive, got %v", c.Detector.PhraseTimeLimitSeconds)
	}
	dc := c.DetectorConfig()
	if err := dc.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Audio.Provider) == "" {
		return errorsx.New(errorsx.ReasonConfiguration, "audio.provider is required")
	}
	switch dc.Kind {
	case detect.LocalKeywordSpotting:
		if strings.TrimSpace(c.Providers.Keyword.Provider) == "" {
			return errorsx.New(errorsx.ReasonConfiguration, "providers.keyword.provider is required")
		}
	case detect.PhraseTranscription:
		if strings.TrimSpace(c.Providers.Transcription.Provider) == "" {
			return errorsx.New(errorsx.ReasonConfiguration, "providers.transcription.provider is required")
		}
	}
	if c.Actions.Twilio.Enabled {
		if err := c.Actions.Twilio.SMSConfig.Validate(); err != nil {
			return err
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "", "json", "text", "console":
	default:
		return errorsx.New(errorsx.ReasonConfiguration, "log_format must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// DetectorConfig converts the detector section. An unrecognized backend
// name yields KindUnknown, which detect.Config.Validate rejects.
func (c Config) DetectorConfig() detect.Config {
	d := c.Detector
	kind, _ := detect.ParseKind(d.Backend)
	return detect.Config{
		Kind:            kind,
		WakeWord:        d.WakeWord,
		Sensitivity:     d.Sensitivity,
		DeviceIndex:     d.DeviceIndex,
		Debounce:        seconds(d.DebounceSeconds),
		PhraseTimeLimit: seconds(d.PhraseTimeLimitSeconds),
		EnergyThreshold: d.EnergyThreshold,
	}.WithDefaults()
}

func (c Config) ActionTimeout() time.Duration {
	return time.Duration(c.Actions.TimeoutMS) * time.Millisecond
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Audio.Settings = expandSettings(cfg.Audio.Settings)
	cfg.Providers.Keyword.Settings = expandSettings(cfg.Providers.Keyword.Settings)
	cfg.Providers.Transcription.Settings = expandSettings(cfg.Providers.Transcription.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String && v.Type().Elem().Kind() == reflect.String {
			for _, key := range v.MapKeys() {
				val := v.MapIndex(key)
				expanded := os.ExpandEnv(val.String())
				v.SetMapIndex(key, reflect.ValueOf(expanded))
			}
		}
	}
}
