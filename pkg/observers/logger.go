package observers

import (
	"context"
	"log/slog"

	"github.com/harunnryd/voicetrigger/pkg/metrics"
)

// eventLevels raises milestone events above the debug noise of raw matches.
var eventLevels = map[string]slog.Level{
	metrics.DetectAccepted:    slog.LevelInfo,
	metrics.GenerationStarted: slog.LevelInfo,
	metrics.GenerationStopped: slog.LevelInfo,
	metrics.GenerationFailed:  slog.LevelWarn,
	metrics.ActionFailed:      slog.LevelWarn,
}

// LoggerObserver writes metrics events to a logger. Events without a level
// in eventLevels log at debug.
type LoggerObserver struct {
	log *slog.Logger
}

func NewLoggerObserver(log *slog.Logger) *LoggerObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LoggerObserver{log: log.With(slog.String("component", "metrics"))}
}

func (o *LoggerObserver) RecordEvent(ev metrics.MetricsEvent) {
	level, ok := eventLevels[ev.Name]
	if !ok {
		level = slog.LevelDebug
	}
	ctx := context.Background()
	if !o.log.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, 0, 2+len(ev.Tags)+len(ev.Fields))
	attrs = append(attrs, slog.String("event", ev.Name), slog.Float64("value", ev.Value))
	for k, v := range ev.Tags {
		attrs = append(attrs, slog.String(k, v))
	}
	for k, v := range ev.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	o.log.LogAttrs(ctx, level, "metrics_event", attrs...)
}

// MultiObserver fans each event out to every non-nil observer.
type MultiObserver struct {
	list []metrics.Observer
}

func NewMultiObserver(list ...metrics.Observer) *MultiObserver {
	kept := make([]metrics.Observer, 0, len(list))
	for _, obs := range list {
		if obs != nil {
			kept = append(kept, obs)
		}
	}
	return &MultiObserver{list: kept}
}

func (m *MultiObserver) RecordEvent(ev metrics.MetricsEvent) {
	for _, obs := range m.list {
		obs.RecordEvent(ev)
	}
}
