package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "agentmesh"

// StartPromptSpan starts a span for one prompt execution on a session.
func StartPromptSpan(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "prompt",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
		),
	)
}

// StartStageSpan starts a span for one pipeline stage.
func StartStageSpan(ctx context.Context, executionID, stageName string, stageIndex int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "stage",
		trace.WithAttributes(
			attribute.String("execution.id", executionID),
			attribute.String("stage.name", stageName),
			attribute.Int("stage.index", stageIndex),
		),
	)
}
