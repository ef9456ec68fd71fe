package worker

import (
	"context"

	"github.com/okian/scorenft/pkg/logger"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger logger.Logger
}

// NewLogSink returns a sink logging through l, or the global logger when l
// is nil.
func NewLogSink(l logger.Logger) *LogSink {
	if l == nil {
		l = logger.Get().Named("events")
	}
	return &LogSink{logger: l}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Deliver implements Sink.
func (s *LogSink) Deliver(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: events travel by value
	fields := []logger.Field{
		logger.String("event_id", e.EventID),
		logger.String("kind", string(e.Kind)),
		logger.String("identity", e.Identity.String()),
		logger.Uint64("score", e.Score),
	}
	if e.Delta > 0 {
		fields = append(fields, logger.Uint64("delta", e.Delta))
	}
	if !e.Caller.IsZero() {
		fields = append(fields, logger.String("caller", e.Caller.String()))
	}
	s.logger.Info(ctx, "ledger event", fields...)
	return nil
}
