package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/progress"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch. Error events log at warn.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("stage", string(evt.Stage)),
			zap.Time("pass_started", evt.PassStarted),
		}
		if evt.SourceID != "" {
			fields = append(fields, zap.String("source_id", evt.SourceID))
		}
		if evt.RunID != "" {
			fields = append(fields, zap.String("run_id", evt.RunID))
		}
		if evt.Technique != "" {
			fields = append(fields, zap.String("technique", evt.Technique))
		}
		fields = append(fields,
			zap.Int("found", evt.Found),
			zap.Int("saved", evt.Saved),
			zap.Int("errors", evt.Errors),
			zap.Duration("dur", evt.Dur),
		)
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == progress.StageSourceError {
			s.logger.Warn("progress event", fields...)
			continue
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
