package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/vastio/vastfetch/internal/metrics"
)

// Sink consumes batches of events. Implementations must tolerate being
// called from a single background goroutine with bounded batch sizes.
type Sink interface {
	Name() string
	Consume(ctx context.Context, batch []Event) error
}

// LogSink writes events to a zap logger at debug level, failures at warn.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Name identifies the sink in hub warnings.
func (s *LogSink) Name() string { return "log" }

// Consume logs each event.
func (s *LogSink) Consume(_ context.Context, batch []Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("request_id", evt.RequestID),
			zap.String("phase", string(evt.Phase)),
			zap.String("source", evt.Source),
			zap.Duration("elapsed", evt.Elapsed),
		}
		if evt.Success {
			s.logger.Debug("pipeline phase complete", fields...)
			continue
		}
		s.logger.Warn("pipeline phase failed", append(fields, zap.String("error", evt.Error))...)
	}
	return nil
}

// PrometheusSink feeds pipeline counters from the event stream.
type PrometheusSink struct{}

// NewPrometheusSink builds a PrometheusSink and ensures collectors exist.
func NewPrometheusSink() *PrometheusSink {
	metrics.Init()
	return &PrometheusSink{}
}

// Name identifies the sink in hub warnings.
func (s *PrometheusSink) Name() string { return "prometheus" }

// Consume counts each event by phase and outcome.
func (s *PrometheusSink) Consume(_ context.Context, batch []Event) error {
	for _, evt := range batch {
		outcome := "failure"
		if evt.Success {
			outcome = "success"
		}
		metrics.ObservePipeline(string(evt.Phase), outcome)
	}
	return nil
}
