package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
)

const scope = "llm-council/gateway"

// InstrumentedGenerator records a span, token counts and latency for every call
// of the wrapped generator.
type InstrumentedGenerator struct {
	next     core.Generator
	gateway  string
	tracer   trace.Tracer
	tokens   metric.Int64Counter
	duration metric.Float64Histogram
}

// Instrument wraps next. gateway names the implementation ("local", "worker").
func Instrument(next core.Generator, gateway string) *InstrumentedGenerator {
	meter := Meter(scope)
	tokens, _ := meter.Int64Counter("council.tokens",
		metric.WithDescription("Prompt and completion tokens consumed"),
	)
	duration, _ := meter.Float64Histogram("council.generation.duration",
		metric.WithDescription("Time to complete one generation call (ms)"),
		metric.WithUnit("ms"),
	)
	return &InstrumentedGenerator{
		next:     next,
		gateway:  gateway,
		tracer:   Tracer(scope),
		tokens:   tokens,
		duration: duration,
	}
}

// Generate calls the wrapped generator.
func (g *InstrumentedGenerator) Generate(ctx context.Context, req core.GenerateRequest) (*core.GenerateResult, error) {
	stage := StageFrom(ctx)
	attrs := []attribute.KeyValue{
		attribute.String("council.model", req.Model),
		attribute.String("council.stage", stage),
		attribute.String("council.gateway", g.gateway),
	}

	ctx, span := g.tracer.Start(ctx, "generate", trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	res, err := g.next.Generate(ctx, req)
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = string(core.GetCategory(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	recordAttrs := append(attrs, attribute.String("council.outcome", outcome))
	if g.duration != nil {
		g.duration.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(recordAttrs...))
	}
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("council.prompt_tokens", res.PromptTokens),
		attribute.Int("council.completion_tokens", res.CompletionTokens),
	)
	if g.tokens != nil {
		g.tokens.Add(ctx, int64(res.PromptTokens), metric.WithAttributes(append(attrs, attribute.String("council.kind", "prompt"))...))
		g.tokens.Add(ctx, int64(res.CompletionTokens), metric.WithAttributes(append(attrs, attribute.String("council.kind", "completion"))...))
	}
	return res, nil
}
