// Package mint builds, signs, submits and confirms credential mint transactions.
//
// Each run moves through Building -> Signing -> Submitting -> Confirming and
// ends Confirmed or Failed. Once a transaction is submitted the run no longer
// follows caller cancellation: the broadcast cannot be recalled, so the
// pipeline keeps polling until inclusion or its own confirmation timeout.
package mint

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"certledger/internal/ledger/assetname"
	"certledger/internal/ledger/indexer"
	"certledger/internal/ledger/metadata"
	"certledger/internal/ledger/policy"
	"certledger/internal/ledger/tx"
	"certledger/internal/mint/metrics"
	"certledger/internal/platform/privacy"
	"certledger/internal/platform/tracer"
	"certledger/internal/signer"
	dErrors "certledger/pkg/domain-errors"
	platformsync "certledger/pkg/platform/sync"
)

// Chain is the ledger view the pipeline needs for validity windows and confirmation.
type Chain interface {
	Transaction(ctx context.Context, txHash string) (*indexer.Transaction, error)
	Tip(ctx context.Context) (*indexer.Tip, error)
}

// Pipeline mints credential tokens with one issuer wallet.
type Pipeline struct {
	signer   signer.Connector
	chain    Chain
	policies *policy.Manager
	names    *assetname.Deriver
	cfg      Config
	wallets  *platformsync.KeyedMutex

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
	now     func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = t
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithWalletLocks shares per-wallet serialization across pipelines.
func WithWalletLocks(locks *platformsync.KeyedMutex) Option {
	return func(p *Pipeline) {
		p.wallets = locks
	}
}

// New creates a pipeline. Zero durations in cfg fall back to DefaultConfig.
func New(s signer.Connector, chain Chain, policies *policy.Manager, names *assetname.Deriver, cfg Config, opts ...Option) *Pipeline {
	def := DefaultConfig()
	if cfg.Params == (tx.Params{}) {
		cfg.Params = def.Params
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = def.ConfirmTimeout
	}
	if cfg.ConfirmPollInterval <= 0 {
		cfg.ConfirmPollInterval = def.ConfirmPollInterval
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	if policies == nil {
		policies = policy.NewManager()
	}
	if names == nil {
		names = assetname.NewDeriver()
	}
	p := &Pipeline{
		signer:   s,
		chain:    chain,
		policies: policies,
		names:    names,
		cfg:      cfg,
		wallets:  platformsync.NewKeyedMutex(),
		logger:   slog.Default(),
		tracer:   tracer.NewNoop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run carries one mint through the stages.
type run struct {
	*machine
	req        Request
	policy     policy.Policy
	assetName  assetname.Name
	assetID    string
	txHash     string
	stageStart time.Time
	span       tracer.Span
}

// Mint runs the full pipeline for one request. It never returns an error;
// failures are classified in the Result.
func (p *Pipeline) Mint(ctx context.Context, req Request) Result {
	start := p.now()
	ctx, span := p.tracer.Start(ctx, tracer.SpanMint,
		tracer.String(tracer.AttrSubject, tracer.HashSubject(req.SubjectID())),
	)

	r := &run{machine: newMachine(), req: req, stageStart: start, span: span}
	res := p.execute(ctx, r)

	span.SetAttributes(
		tracer.String(tracer.AttrStage, string(res.Stage)),
		tracer.String(tracer.AttrTxHash, res.TxHash),
		tracer.String(tracer.AttrAssetID, res.AssetID),
	)
	if !res.Success {
		span.SetAttributes(tracer.String(tracer.AttrErrorKind, string(res.ErrorKind)))
	}
	span.End(res.Err)
	p.record(ctx, res, time.Since(start))
	return res
}

func (p *Pipeline) execute(ctx context.Context, r *run) Result {
	if err := r.req.validate(); err != nil {
		return p.fail(ctx, r, err)
	}

	wallet, err := p.signer.Address(ctx)
	if err != nil {
		return p.fail(ctx, r, asWalletError(err))
	}
	// Another run may hold the wallet through its whole confirmation wait.
	if err := p.wallets.LockContext(ctx, wallet); err != nil {
		return p.fail(ctx, r, dErrors.Classify(err))
	}
	defer p.wallets.Unlock(wallet)

	unsigned, err := p.build(ctx, r, wallet)
	if err != nil {
		return p.fail(ctx, r, err)
	}

	if err := p.enter(ctx, r, StageSigning); err != nil {
		return p.fail(ctx, r, err)
	}
	witnesses, err := p.signer.Sign(ctx, unsigned)
	if err != nil {
		return p.fail(ctx, r, asWalletError(err))
	}
	signed, err := unsigned.Assemble(witnesses)
	if err != nil {
		return p.fail(ctx, r, err)
	}

	if err := p.enter(ctx, r, StageSubmitting); err != nil {
		return p.fail(ctx, r, err)
	}
	hash, err := p.signer.Submit(ctx, signed)
	if err != nil {
		return p.fail(ctx, r, dErrors.Classify(err))
	}
	r.txHash = unsigned.Hash.Hex()
	if hash != "" && !strings.EqualFold(hash, r.txHash) {
		p.logger.WarnContext(ctx, "submitted hash differs from body hash",
			"reported", hash, "computed", r.txHash)
		r.txHash = hash
	}

	// Point of no return: the transaction is on the wire.
	confirmCtx := context.WithoutCancel(ctx)
	if err := p.enter(confirmCtx, r, StageConfirming); err != nil {
		return p.fail(confirmCtx, r, err)
	}
	included, err := p.confirm(confirmCtx, r.txHash)
	if err != nil {
		return p.fail(confirmCtx, r, err)
	}
	if err := p.enter(confirmCtx, r, StageConfirmed); err != nil {
		return p.fail(confirmCtx, r, err)
	}

	res := Result{
		Success:   true,
		TxHash:    r.txHash,
		AssetID:   r.assetID,
		AssetName: string(r.assetName),
		PolicyID:  r.policy.ID,
		Stage:     StageConfirmed,
	}
	if !included.BlockTime.IsZero() {
		t := included.BlockTime
		res.MintedAt = &t
	}
	return res
}

// build covers the Building stage: validation, policy, name, metadata and
// coin selection.
func (p *Pipeline) build(ctx context.Context, r *run, wallet string) (*tx.Unsigned, error) {
	recipient := strings.TrimSpace(r.req.RecipientAddress)
	if recipient == "" {
		recipient = wallet
	} else if _, err := tx.DecodeAddress(recipient); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "recipient address is invalid")
	}

	pol, err := p.policies.ForSigner(ctx, p.signer)
	if err != nil {
		return nil, err
	}
	if r.req.PolicyID != "" && !strings.EqualFold(r.req.PolicyID, pol.ID) {
		return nil, dErrors.New(dErrors.CodeValidation, "policy id does not match the connected signer")
	}
	r.policy = pol

	if r.req.AssetName != "" {
		if err := assetname.Validate(r.req.AssetName); err != nil {
			return nil, nameAsInput(err)
		}
		r.assetName = assetname.Name(r.req.AssetName)
	} else {
		name, err := p.names.Derive(r.req.SubjectID(), p.now())
		if err != nil {
			return nil, nameAsInput(err)
		}
		r.assetName = name
	}
	r.assetID = assetname.AssetID(pol.ID, r.assetName)

	doc, err := metadata.Build(pol.ID, string(r.assetName), r.req.Metadata)
	if err != nil {
		return nil, err
	}

	utxos, err := p.signer.UTXOs(ctx)
	if err != nil {
		return nil, asWalletError(err)
	}

	var slot uint64
	if tip, err := p.chain.Tip(ctx); err != nil {
		p.logger.WarnContext(ctx, "ledger tip unavailable, building without validity window", "error", err)
	} else {
		slot = tip.Slot
	}

	p.logger.DebugContext(ctx, "building mint transaction",
		"asset_id", r.assetID, "recipient", privacy.MaskAddress(recipient), "inputs", len(utxos))
	return tx.BuildMint(p.cfg.Params, tx.MintSpec{
		Available:     utxos,
		ChangeAddress: wallet,
		Recipient:     recipient,
		Script:        pol.Script,
		PolicyID:      pol.ID,
		AssetName:     []byte(r.assetName),
		AuxData:       doc.AuxiliaryData(),
		CurrentSlot:   slot,
	})
}

// confirm polls for inclusion until the confirmation timeout.
func (p *Pipeline) confirm(ctx context.Context, txHash string) (*indexer.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(p.cfg.ConfirmPollInterval)
	defer ticker.Stop()

	for {
		t, err := p.chain.Transaction(ctx, txHash)
		if err == nil {
			return t, nil
		}
		if !dErrors.HasReason(err, dErrors.CodeLedger, dErrors.ReasonNotFound) {
			p.logger.DebugContext(ctx, "confirmation poll failed", "tx_hash", txHash, "error", err)
		}
		select {
		case <-ctx.Done():
			return nil, &dErrors.Error{
				Code:    dErrors.CodePending,
				Reason:  dErrors.ReasonTimeout,
				Message: "transaction " + txHash + " submitted but not confirmed within " + p.cfg.ConfirmTimeout.String(),
			}
		case <-ticker.C:
		}
	}
}

func (p *Pipeline) enter(ctx context.Context, r *run, next Stage) error {
	prev := r.current
	if err := r.advance(next); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, err.Error())
	}
	now := p.now()
	if p.metrics != nil {
		p.metrics.ObserveStage(string(prev), now.Sub(r.stageStart).Seconds())
	}
	r.stageStart = now
	r.span.AddEvent(tracer.EventStageEntered, tracer.String(tracer.AttrStage, string(next)))
	p.logger.DebugContext(ctx, "mint stage", "from", prev, "to", next, "asset_id", r.assetID)
	return nil
}

// nameAsInput surfaces the ledger's asset name limit as a caller error.
func nameAsInput(err error) error {
	if !dErrors.HasCode(err, dErrors.CodeEncoding) {
		return err
	}
	return &dErrors.Error{Code: dErrors.CodeValidation, Reason: dErrors.ReasonOf(err), Message: "invalid asset name", Err: err}
}

func (p *Pipeline) fail(ctx context.Context, r *run, err error) Result {
	failedAt := r.current
	if !failedAt.IsTerminal() {
		_ = r.advance(StageFailed) //nolint:errcheck // every non-terminal stage may fail
	}
	de := dErrors.Classify(err)
	res := Result{
		Success:     false,
		Stage:       failedAt,
		ErrorKind:   de.Code,
		ErrorReason: de.Reason,
		Error:       de.Error(),
		Retryable:   de.Retryable(),
		Err:         de,
		PolicyID:    r.policy.ID,
		AssetName:   string(r.assetName),
	}
	// Once broadcast the identifiers are real and callers need them to follow up.
	if r.txHash != "" {
		res.TxHash = r.txHash
		res.AssetID = r.assetID
	}
	return res
}

func (p *Pipeline) record(ctx context.Context, res Result, elapsed time.Duration) {
	outcome := "confirmed"
	switch {
	case res.Pending():
		outcome = "pending"
	case !res.Success:
		outcome = "failed"
	}
	if p.metrics != nil {
		p.metrics.RecordOutcome(outcome, elapsed.Seconds())
		if !res.Success {
			p.metrics.RecordFailure(string(res.ErrorKind), string(res.Stage))
		}
	}
	if res.Success {
		p.logger.InfoContext(ctx, "credential minted",
			"tx_hash", res.TxHash, "asset_id", res.AssetID, "policy_id", res.PolicyID,
			"duration_ms", elapsed.Milliseconds())
		return
	}
	p.logger.WarnContext(ctx, "mint failed",
		"stage", res.Stage, "kind", res.ErrorKind, "reason", res.ErrorReason,
		"tx_hash", res.TxHash, "error", res.Error)
}

// asWalletError keeps domain classifications and treats anything foreign
// from the wallet as the signer being unavailable.
func asWalletError(err error) error {
	de := dErrors.Classify(err)
	if de.Code != dErrors.CodeInternal || de.Err != err {
		return de
	}
	return dErrors.WrapReason(err, dErrors.CodeWallet, dErrors.ReasonSignerUnavailable, "signer failed: "+err.Error())
}
