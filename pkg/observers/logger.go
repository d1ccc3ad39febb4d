package observers

import (
	"context"
	"log/slog"

	"github.com/raihanmd/cakap/pkg/metrics"
)

type LoggerObserver struct {
	log *slog.Logger
}

func NewLoggerObserver(log *slog.Logger) *LoggerObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LoggerObserver{log: log}
}

// RecordEvent logs one event at debug level using the event name as the
// message, so log queries match metric names directly.
func (o *LoggerObserver) RecordEvent(ev metrics.MetricsEvent) {
	attrs := make([]slog.Attr, 0, 2+len(ev.Tags)+len(ev.Fields))
	if !ev.Time.IsZero() {
		attrs = append(attrs, slog.Time("at", ev.Time))
	}
	if ev.Value != 0 {
		attrs = append(attrs, slog.Float64("value", ev.Value))
	}
	for k, v := range ev.Tags {
		attrs = append(attrs, slog.String(k, v))
	}
	for k, v := range ev.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	o.log.LogAttrs(context.Background(), slog.LevelDebug, ev.Name, attrs...)
}

type MultiObserver struct {
	list []metrics.Observer
}

func NewMultiObserver(list ...metrics.Observer) *MultiObserver {
	return &MultiObserver{list: list}
}

func (m *MultiObserver) RecordEvent(ev metrics.MetricsEvent) {
	for _, obs := range m.list {
		if obs != nil {
			obs.RecordEvent(ev)
		}
	}
}
