package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/cca-esindex/internal/progress"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *zap.Logger
	level  zapcore.Level
}

// NewLogSink wires a zap logger to the sink interface. Record events are
// logged at level; run events always at Info.
func NewLogSink(logger *zap.Logger, level zapcore.Level) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger, level: level}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("run_id", evt.RunUUID()),
			zap.String("stage", string(evt.Stage)),
			zap.Duration("dur", evt.Dur),
		}
		if evt.Path != "" {
			fields = append(fields, zap.String("path", evt.Path), zap.Int64("bytes", evt.Bytes))
		}
		if evt.URL != "" {
			fields = append(fields, zap.String("url", evt.URL))
		}
		if evt.FailedStage != "" {
			fields = append(fields, zap.String("failed_stage", evt.FailedStage))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		level := s.level
		if evt.Stage == progress.StageRunStart || evt.Stage == progress.StageRunDone {
			level = zapcore.InfoLevel
		}
		s.logger.Log(level, "progress event", fields...)
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
