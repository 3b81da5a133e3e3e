package logger

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// FailureRecord describes a request that ended in an unhandled or exhausted
// failure. It is what operators get instead of the caller.
type FailureRecord struct {
	Time           time.Time
	RequestID      string
	Method         string
	Path           string
	PrincipalID    string
	Classification string
	Error          string
	Stack          string
}

// Fields renders the record as zap fields.
func (r FailureRecord) Fields() []zap.Field {
	fields := []zap.Field{
		zap.Time("failed_at", r.Time),
		zap.String("request_id", r.RequestID),
		zap.String("method", r.Method),
		zap.String("path", r.Path),
		zap.String("classification", r.Classification),
		zap.String("error", r.Error),
	}
	if r.PrincipalID != "" {
		fields = append(fields, zap.String("principal_id", r.PrincipalID))
	}
	if r.Stack != "" {
		fields = append(fields, zap.String("stack", r.Stack))
	}
	return fields
}

// FailureSink receives failure records from the failure boundary.
type FailureSink interface {
	Record(ctx context.Context, record FailureRecord)
}

// ZapFailureSink writes failure records as error-level log entries.
type ZapFailureSink struct {
	logger *zap.Logger
}

// NewZapFailureSink creates a sink on the "failure" child of logger.
func NewZapFailureSink(logger *zap.Logger) *ZapFailureSink {
	return &ZapFailureSink{logger: logger.Named("failure")}
}

// Record implements FailureSink
func (s *ZapFailureSink) Record(_ context.Context, record FailureRecord) {
	s.logger.Error("Request failed", record.Fields()...)
}

// FailureSinkFunc adapts a function to FailureSink
type FailureSinkFunc func(ctx context.Context, record FailureRecord)

// Record implements FailureSink
func (f FailureSinkFunc) Record(ctx context.Context, record FailureRecord) {
	f(ctx, record)
}
