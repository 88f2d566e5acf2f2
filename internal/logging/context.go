package logging

import (
	"context"
	"log/slog"

	"nator/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldJobID is the standardized structured logging key for pipeline job identifiers.
	FieldJobID = "job_id"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldProvider names the capability implementation that handled a stage.
	FieldProvider = "provider"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType tags a log line with a machine-friendly event name.
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step for a failure.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.JobIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldJobID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
