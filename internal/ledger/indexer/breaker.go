package indexer

import (
	"context"
	"log/slog"
	"time"

	"certledger/internal/ledger/indexer/metrics"
	"certledger/internal/ledger/tx"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/circuit"
)

// Breaker guards a Client with a circuit breaker. Only network failures count
// against the circuit; ledger answers (not found, rejected) are healthy replies.
type Breaker struct {
	next    Client
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewBreaker wraps next. logger and m may be nil.
func NewBreaker(next Client, b *circuit.Breaker, logger *slog.Logger, m *metrics.Metrics) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{next: next, breaker: b, logger: logger, metrics: m}
}

func (b *Breaker) Asset(ctx context.Context, assetID string) (*Asset, error) {
	return guard(ctx, b, "asset", func() (*Asset, error) { return b.next.Asset(ctx, assetID) })
}

func (b *Breaker) AssetHistory(ctx context.Context, assetID string) ([]AssetEvent, error) {
	return guard(ctx, b, "asset_history", func() ([]AssetEvent, error) { return b.next.AssetHistory(ctx, assetID) })
}

func (b *Breaker) Transaction(ctx context.Context, txHash string) (*Transaction, error) {
	return guard(ctx, b, "transaction", func() (*Transaction, error) { return b.next.Transaction(ctx, txHash) })
}

func (b *Breaker) UTXOs(ctx context.Context, address string) ([]tx.UTXO, error) {
	return guard(ctx, b, "utxos", func() ([]tx.UTXO, error) { return b.next.UTXOs(ctx, address) })
}

func (b *Breaker) Submit(ctx context.Context, signedTx []byte) (string, error) {
	return guard(ctx, b, "submit", func() (string, error) { return b.next.Submit(ctx, signedTx) })
}

func (b *Breaker) Tip(ctx context.Context) (*Tip, error) {
	return guard(ctx, b, "tip", func() (*Tip, error) { return b.next.Tip(ctx) })
}

func guard[T any](ctx context.Context, b *Breaker, op string, call func() (T, error)) (T, error) {
	var zero T
	if !b.breaker.Allow() {
		if b.metrics != nil {
			b.metrics.RecordShortCircuit()
		}
		return zero, dErrors.NewReason(dErrors.CodeNetwork, dErrors.ReasonUnavailable, "indexer circuit open")
	}

	start := time.Now()
	out, err := call()
	if b.metrics != nil {
		b.metrics.ObserveRequest(op, time.Since(start).Seconds())
	}

	if err != nil && dErrors.HasCode(err, dErrors.CodeNetwork) {
		if change := b.breaker.RecordFailure(); change.Opened {
			b.logger.WarnContext(ctx, "indexer circuit opened", "breaker", b.breaker.Name(), "operation", op, "error", err)
			if b.metrics != nil {
				b.metrics.SetBreakerOpen(true)
			}
		}
		return zero, err
	}
	if change := b.breaker.RecordSuccess(); change.Closed {
		b.logger.InfoContext(ctx, "indexer circuit closed", "breaker", b.breaker.Name())
		if b.metrics != nil {
			b.metrics.SetBreakerOpen(false)
		}
	}
	return out, err
}
