package tracer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"certledger/internal/platform/tracer"
)

func TestNoopTracer(t *testing.T) {
	tr := tracer.NewNoop()
	ctx := context.Background()

	newCtx, span := tr.Start(ctx, tracer.SpanMint, tracer.String(tracer.AttrPolicyID, "p"))
	assert.Equal(t, ctx, newCtx)
	require.NotNil(t, span)

	span.SetAttributes(tracer.Bool(tracer.AttrValid, true))
	span.AddEvent(tracer.EventStageEntered, tracer.String(tracer.AttrStage, "building"))
	span.End(errors.New("boom"))
}

func TestOTelTracerOnNoopProvider(t *testing.T) {
	tr := tracer.NewOTel(tracer.WithOTelTracer(noop.NewTracerProvider().Tracer("test")))
	_, span := tr.Start(context.Background(), tracer.SpanVerify,
		tracer.String(tracer.AttrQueryKind, "code"),
		tracer.Int64(tracer.AttrBatchSize, 3),
		tracer.Attribute{Key: "ignored", Value: struct{}{}},
	)
	require.NotNil(t, span)
	span.AddEvent(tracer.EventConflict)
	span.End(nil)
}

func TestHashSubject(t *testing.T) {
	assert.Empty(t, tracer.HashSubject(""))
	assert.Len(t, tracer.HashSubject("STU2024001"), 16)
	assert.Equal(t, tracer.HashSubject("STU2024001"), tracer.HashSubject("STU2024001"))
	assert.NotEqual(t, tracer.HashSubject("STU2024001"), tracer.HashSubject("STU2024002"))
}
