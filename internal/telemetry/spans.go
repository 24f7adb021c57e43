// Package telemetry holds the OpenTelemetry spans and instruments used by the
// reflection and tiering services. With no SDK installed the global providers
// are no-ops.
package telemetry

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/Harshitk-cp/soulgarden"

// StartReflectionSpan starts a span covering one reflection cycle.
func StartReflectionSpan(ctx context.Context, agentID uuid.UUID, trigger string) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, "reflection",
		trace.WithAttributes(
			attribute.String("agent.id", agentID.String()),
			attribute.String("reflection.trigger", trigger),
		),
	)
}

// StartMigrationSpan starts a span for a rag to archive migration run.
func StartMigrationSpan(ctx context.Context, agentID uuid.UUID, olderThanDays int) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, "tier.migrate",
		trace.WithAttributes(
			attribute.String("agent.id", agentID.String()),
			attribute.Int("tier.older_than_days", olderThanDays),
		),
	)
}

// StartSearchSpan starts a span for a semantic memory search.
func StartSearchSpan(ctx context.Context, agentID uuid.UUID, limit int) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, "memory.search",
		trace.WithAttributes(
			attribute.String("agent.id", agentID.String()),
			attribute.Int("search.limit", limit),
		),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
