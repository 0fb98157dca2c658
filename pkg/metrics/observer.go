package metrics

import "time"

// Event names recorded by the detector, the supervisor and the action
// dispatcher.
const (
	DetectRawMatch   = "detect.raw_match"
	DetectAccepted   = "detect.accepted"
	DetectSuppressed = "detect.suppressed"
	DetectAmbiguous  = "detect.ambiguous"

	GenerationStarted = "runner.generation_started"
	GenerationStopped = "runner.generation_stopped"
	GenerationFailed  = "runner.generation_failed"

	ActionSent   = "action.sent"
	ActionFailed = "action.failed"
)

// MetricsEvent is one occurrence. Value is 1 for counters and milliseconds
// for timings.
type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

// Count builds a counter event stamped now.
func Count(name string, tags map[string]string) MetricsEvent {
	return MetricsEvent{Name: name, Time: time.Now(), Value: 1, Tags: tags}
}

// Timing builds an event whose value is d in milliseconds.
func Timing(name string, d time.Duration, tags map[string]string) MetricsEvent {
	return MetricsEvent{Name: name, Time: time.Now(), Value: float64(d.Milliseconds()), Tags: tags}
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}
