package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/jarvis"

// Span attribute keys shared by the turn spans.
const (
	AttrTurn  = attribute.Key("jarvis.turn")
	AttrStage = attribute.Key("jarvis.stage")
)

type turnKey struct{}

// Tracer returns the Jarvis tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on [Tracer]. The caller must End it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// WithTurn returns a copy of ctx that carries the conversation turn number.
// [Logger] adds it to every record.
func WithTurn(ctx context.Context, turn uint64) context.Context {
	return context.WithValue(ctx, turnKey{}, turn)
}

// TurnFrom returns the turn number stored by [WithTurn].
func TurnFrom(ctx context.Context) (uint64, bool) {
	turn, ok := ctx.Value(turnKey{}).(uint64)
	return turn, ok
}

// StartTurnSpan starts the span for one stage of a turn, such as
// "transcribe", "converse", or "play". The span is named "turn.<stage>" and
// the returned context carries the turn for [Logger].
func StartTurnSpan(ctx context.Context, stage string, turn uint64, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx = WithTurn(ctx, turn)
	attrs = append([]attribute.KeyValue{AttrTurn.Int64(int64(turn)), AttrStage.String(stage)}, attrs...)
	return StartSpan(ctx, "turn."+stage, trace.WithAttributes(attrs...))
}

// CorrelationID returns the trace id of the active span in ctx, or "" when
// there is none. It doubles as the X-Correlation-ID response header.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger enriched with trace_id and span_id of
// the active span and the turn set by [WithTurn], when present.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if turn, ok := TurnFrom(ctx); ok {
		l = l.With(slog.Uint64("turn", turn))
	}
	return l
}
