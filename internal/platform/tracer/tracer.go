// Package tracer provides a lightweight tracing abstraction for issuance and verification.
//
// The interface does not expose OpenTelemetry types, so pipelines can be traced in
// production and run untraced in tests.
//
// Implementations:
//   - NoopTracer: for tests
//   - OTelTracer: OpenTelemetry adapter for production
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span. A non-nil err marks the span as failed.
	// End must be called exactly once, typically via defer.
	End(err error)

	SetAttributes(attrs ...Attribute)

	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	// Start creates a new span. The returned context carries the span and
	// should be passed to child operations.
	//
	//   ctx, span := t.Start(ctx, tracer.SpanMint,
	//       tracer.String(tracer.AttrPolicyID, policyID),
	//   )
	//   defer span.End(err)
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int64 creates an int64 attribute.
func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Float64 creates a float64 attribute.
func Float64(key string, value float64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashSubject returns a short SHA-256 digest of a subject identifier so traces
// can be correlated without carrying student numbers.
func HashSubject(subjectID string) string {
	if subjectID == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(subjectID))
	return hex.EncodeToString(hash[:8])
}

// Span names.
const (
	SpanMint         = "mint.run"
	SpanMintStage    = "mint.stage"
	SpanBatchMint    = "mint.batch"
	SpanVerify       = "verify.run"
	SpanVerifyLedger = "verify.ledger"
	SpanVerifyRecord = "verify.record"
)

// Attribute keys.
const (
	AttrSubject     = "subject_hash"
	AttrStage       = "stage"
	AttrPolicyID    = "policy_id"
	AttrAssetID     = "asset_id"
	AttrTxHash      = "tx_hash"
	AttrErrorKind   = "error.kind"
	AttrQueryKind   = "query.kind"
	AttrSource      = "source"
	AttrValid       = "valid"
	AttrBatchSize   = "batch.size"
	AttrBatchFailed = "batch.failed"
)

// Event names.
const (
	EventStageEntered = "stage.entered"
	EventConflict     = "reconciliation.conflict"
)
