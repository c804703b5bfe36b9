// Package verify answers "is this credential authentic?" by reconciling the
// immutable ledger with the mutable off-chain record store.
//
// The record store alone holds revocation status, so a revoked record is never
// reported valid regardless of what the ledger says. Either source may be
// unavailable; the result then degrades to the source that answered and says
// so in Result.Source.
package verify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"certledger/internal/credential/models"
	"certledger/internal/ledger/indexer"
	"certledger/internal/ledger/metadata"
	"certledger/internal/platform/tracer"
	"certledger/internal/verify/metrics"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/sentinel"
	strutil "certledger/pkg/platform/strings"
)

// Ledger is the ledger view verification consults.
type Ledger interface {
	Asset(ctx context.Context, assetID string) (*indexer.Asset, error)
	Transaction(ctx context.Context, txHash string) (*indexer.Transaction, error)
}

// Records is the off-chain record view. Missing records are reported as
// sentinel.ErrNotFound.
type Records interface {
	FindByCode(ctx context.Context, code string) (*models.Credential, error)
	FindByAssetID(ctx context.Context, assetID string) (*models.Credential, error)
}

const (
	DefaultSourceTimeout = 5 * time.Second
	DefaultIPFSGateway   = "https://ipfs.io/ipfs/"
)

// Reconciler merges ledger and record lookups into one verification result.
type Reconciler struct {
	ledger  Ledger
	records Records

	sourceTimeout time.Duration
	gateway       string
	trusted       map[string]struct{}

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
	now     func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(r *Reconciler) {
		r.tracer = t
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// WithSourceTimeout bounds each individual ledger or record lookup.
func WithSourceTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.sourceTimeout = d
		}
	}
}

// WithIPFSGateway sets the HTTP gateway prefix used to render ipfs:// images.
func WithIPFSGateway(prefix string) Option {
	return func(r *Reconciler) {
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		r.gateway = prefix
	}
}

// WithTrustedPolicies restricts ledger-only answers to assets minted under
// one of the given policy ids. Without it any existing asset is accepted when
// the record store cannot answer.
func WithTrustedPolicies(policyIDs ...string) Option {
	return func(r *Reconciler) {
		ids := strutil.DedupeAndTrimLower(policyIDs)
		if len(ids) == 0 {
			return
		}
		r.trusted = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			r.trusted[id] = struct{}{}
		}
	}
}

// New creates a Reconciler.
func New(ledger Ledger, records Records, opts ...Option) *Reconciler {
	r := &Reconciler{
		ledger:        ledger,
		records:       records,
		sourceTimeout: DefaultSourceTimeout,
		gateway:       DefaultIPFSGateway,
		logger:        slog.Default(),
		tracer:        tracer.NewNoop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Verify classifies q and reconciles both sources. It always returns a result
// with an explicit source; failures are reported in the result, not as errors.
func (r *Reconciler) Verify(ctx context.Context, q string) Result {
	start := r.now()
	ctx, span := r.tracer.Start(ctx, tracer.SpanVerify)

	var res Result
	query, err := Classify(q)
	if err != nil {
		// Anything that is not a credential code belongs to the ledger-first
		// path; it is rejected before any call, so the result carries no
		// ledger corroboration.
		res = failed(SourceLedger, err)
	} else {
		span.SetAttributes(tracer.String(tracer.AttrQueryKind, string(query.Kind)))
		switch query.Kind {
		case QueryCode:
			res = r.byCode(ctx, query.Code)
		default:
			res = r.byAsset(ctx, query.AssetID)
		}
	}

	span.SetAttributes(
		tracer.String(tracer.AttrSource, string(res.Source)),
		tracer.Bool(tracer.AttrValid, res.Valid),
	)
	if res.ErrorKind != "" {
		span.SetAttributes(tracer.String(tracer.AttrErrorKind, string(res.ErrorKind)))
	}
	span.End(nil)

	if r.metrics != nil {
		r.metrics.RecordResult(string(res.Source), res.Valid, r.now().Sub(start).Seconds())
	}
	r.logger.DebugContext(ctx, "verification completed",
		"query_kind", string(query.Kind),
		"source", string(res.Source),
		"valid", res.Valid,
		"error_kind", string(res.ErrorKind),
	)
	return res
}

// byCode is the record-first path: the record is authoritative and the
// ledger, when reachable, corroborates it.
func (r *Reconciler) byCode(ctx context.Context, code string) Result {
	rv := r.lookupRecord(ctx, func(ctx context.Context) (*models.Credential, error) {
		return r.records.FindByCode(ctx, code)
	})
	switch {
	case rv.err != nil:
		return failed(SourceRecord, rv.err)
	case rv.rec == nil:
		return failed(SourceRecord, dErrors.New(dErrors.CodeNotFound, "no credential with code "+code))
	}

	rec := rv.rec
	if rec.AssetID == "" {
		return r.recordOnly(rec)
	}

	var (
		lv  ledgerView
		txn *indexer.Transaction
		g   errgroup.Group
	)
	g.Go(func() error {
		lv = r.lookupAsset(ctx, rec.AssetID)
		return nil
	})
	if rec.TxHash != "" {
		g.Go(func() error {
			txn = r.lookupTx(ctx, rec.TxHash)
			return nil
		})
	}
	_ = g.Wait()

	return r.merge(ctx, rec, rec.AssetID, lv, txn)
}

// byAsset is the ledger-first path. The record is looked up by asset id in
// parallel; when that misses, the credential code embedded in the on-chain
// metadata is tried.
func (r *Reconciler) byAsset(ctx context.Context, assetID string) Result {
	var (
		lv ledgerView
		rv recordView
		g  errgroup.Group
	)
	g.Go(func() error {
		lv = r.lookupAsset(ctx, assetID)
		return nil
	})
	g.Go(func() error {
		rv = r.lookupRecord(ctx, func(ctx context.Context) (*models.Credential, error) {
			return r.records.FindByAssetID(ctx, assetID)
		})
		return nil
	})
	_ = g.Wait()

	var (
		txn    *indexer.Transaction
		follow errgroup.Group
	)
	if code, ok := lv.embeddedCode(); ok && rv.rec == nil && rv.err == nil {
		follow.Go(func() error {
			rv = r.lookupRecord(ctx, func(ctx context.Context) (*models.Credential, error) {
				return r.records.FindByCode(ctx, code)
			})
			return nil
		})
	}
	if lv.exists() && lv.asset.InitialMintTxHash != "" {
		follow.Go(func() error {
			txn = r.lookupTx(ctx, lv.asset.InitialMintTxHash)
			return nil
		})
	}
	_ = follow.Wait()

	if rv.rec != nil {
		return r.merge(ctx, rv.rec, assetID, lv, txn)
	}

	// No record to arbitrate with: answer from the ledger alone.
	switch {
	case lv.err != nil:
		return failed(SourceLedger, lv.err)
	case !lv.exists():
		return failed(SourceLedger, dErrors.NewReason(dErrors.CodeLedger, dErrors.ReasonNotFound, "asset not found on ledger"))
	}
	res := Result{
		Valid:      true,
		Source:     SourceLedger,
		Document:   r.ledgerDocument(assetID, lv),
		Blockchain: ledgerCorroboration(lv, txn),
	}
	if !r.isTrusted(lv.asset.PolicyID) {
		res.Valid = false
		res.Error = "asset was not minted under a trusted issuer policy"
		res.ErrorKind = dErrors.CodeLedger
	}
	return res
}

// merge arbitrates a found record against the ledger view of assetID.
func (r *Reconciler) merge(ctx context.Context, rec *models.Credential, assetID string, lv ledgerView, txn *indexer.Transaction) Result {
	if lv.err != nil {
		return r.recordOnly(rec)
	}
	if !lv.exists() {
		// A broadcast mint that has not been indexed yet is not a disagreement.
		if rec.MintState == models.MintPending && strings.EqualFold(rec.AssetID, assetID) {
			return r.recordOnly(rec)
		}
		return r.conflict(ctx, rec, lv, []ConflictReason{ConflictAssetMissing})
	}
	if reasons := compare(rec, assetID, lv); len(reasons) > 0 {
		return r.conflict(ctx, rec, lv, reasons)
	}

	bc := ledgerCorroboration(lv, txn)
	if bc.TxHash == "" {
		bc.TxHash = rec.TxHash
	}
	if bc.MintedAt == nil && rec.MintedAt != nil {
		t := *rec.MintedAt
		bc.MintedAt = &t
	}
	doc := r.recordDocument(rec)
	if doc.Image == "" && lv.credential != nil {
		doc.Image = lv.credential.Image
		doc.IPFSURL = r.ipfsURL(doc.Image)
	}
	return Result{
		Valid:      rec.Status == models.StatusIssued,
		Source:     SourceBoth,
		Document:   doc,
		Blockchain: bc,
	}
}

func compare(rec *models.Credential, assetID string, lv ledgerView) []ConflictReason {
	var reasons []ConflictReason
	if !strings.EqualFold(rec.AssetID, assetID) {
		reasons = append(reasons, ConflictAssetMismatch)
	}
	if rec.PolicyID != "" && lv.asset.PolicyID != "" && !strings.EqualFold(rec.PolicyID, lv.asset.PolicyID) {
		reasons = append(reasons, ConflictPolicyMismatch)
	}
	if lv.credential != nil {
		if onchain := strings.ToUpper(strings.TrimSpace(lv.credential.Code)); onchain != "" && onchain != rec.Code {
			reasons = append(reasons, ConflictCodeMismatch)
		}
		recHash, chainHash := rec.Metadata.DocumentHash, lv.credential.DocumentHash
		if recHash != "" && chainHash != "" && !metadata.SameDocumentHash(recHash, chainHash) {
			reasons = append(reasons, ConflictHashMismatch)
		}
	}
	return reasons
}

func (r *Reconciler) conflict(ctx context.Context, rec *models.Credential, lv ledgerView, reasons []ConflictReason) Result {
	labels := make([]string, len(reasons))
	for i, reason := range reasons {
		labels[i] = string(reason)
		if r.metrics != nil {
			r.metrics.RecordConflict(string(reason))
		}
	}
	r.logger.WarnContext(ctx, "ledger and record disagree",
		"credential_code", rec.Code,
		"asset_id", rec.AssetID,
		"reasons", strings.Join(labels, ","),
	)
	return Result{
		Valid:    false,
		Source:   SourceRecord,
		Document: r.recordDocument(rec),
		Conflict: &Conflict{
			Reasons: reasons,
			Record:  recordObservation(rec),
			Ledger:  lv.observation(),
		},
		Error:     "ledger and record disagree: " + strings.Join(labels, ", "),
		ErrorKind: dErrors.CodeConflict,
	}
}

func (r *Reconciler) recordOnly(rec *models.Credential) Result {
	res := Result{
		Valid:    rec.Status == models.StatusIssued,
		Source:   SourceRecord,
		Document: r.recordDocument(rec),
	}
	if rec.AssetID != "" {
		res.Blockchain = &Blockchain{
			Verified: false,
			TxHash:   rec.TxHash,
			MintedAt: rec.MintedAt,
			PolicyID: rec.PolicyID,
		}
	}
	return res
}

func (r *Reconciler) recordDocument(rec *models.Credential) *Document {
	cred := rec.Metadata
	cred.Code = rec.Code
	return &Document{
		Credential: cred,
		Status:     rec.Status,
		RevokedAt:  rec.RevokedAt,
		IPFSURL:    r.ipfsURL(cred.Image),
		TxHash:     rec.TxHash,
		AssetID:    rec.AssetID,
		PolicyID:   rec.PolicyID,
	}
}

func (r *Reconciler) ledgerDocument(assetID string, lv ledgerView) *Document {
	doc := &Document{
		TxHash:   lv.asset.InitialMintTxHash,
		AssetID:  assetID,
		PolicyID: lv.asset.PolicyID,
	}
	if lv.credential != nil {
		doc.Credential = *lv.credential
		doc.IPFSURL = r.ipfsURL(lv.credential.Image)
	}
	return doc
}

func ledgerCorroboration(lv ledgerView, txn *indexer.Transaction) *Blockchain {
	bc := &Blockchain{
		Verified: true,
		TxHash:   lv.asset.InitialMintTxHash,
		PolicyID: lv.asset.PolicyID,
	}
	if txn != nil {
		if txn.Hash != "" {
			bc.TxHash = txn.Hash
		}
		if !txn.BlockTime.IsZero() {
			t := txn.BlockTime
			bc.MintedAt = &t
		}
	}
	return bc
}

func (r *Reconciler) ipfsURL(image string) string {
	ref, ok := strings.CutPrefix(image, "ipfs://")
	if !ok || ref == "" || r.gateway == "" {
		return ""
	}
	return r.gateway + strings.TrimPrefix(ref, "ipfs/")
}

func (r *Reconciler) isTrusted(policyID string) bool {
	if len(r.trusted) == 0 {
		return true
	}
	_, ok := r.trusted[strings.ToLower(policyID)]
	return ok
}

// ledgerView is the outcome of one asset lookup. A missing or fully burned
// asset is not an error; err is set only when the ledger could not answer.
type ledgerView struct {
	asset      *indexer.Asset
	credential *metadata.Credential
	err        *dErrors.Error
}

func (lv ledgerView) exists() bool {
	return lv.err == nil && lv.asset.Exists()
}

func (lv ledgerView) embeddedCode() (string, bool) {
	if lv.credential == nil {
		return "", false
	}
	return models.ParseCode(lv.credential.Code)
}

func (lv ledgerView) observation() *Observation {
	obs := &Observation{Exists: lv.exists()}
	if lv.asset != nil {
		obs.AssetID = lv.asset.AssetID
		obs.PolicyID = lv.asset.PolicyID
		obs.TxHash = lv.asset.InitialMintTxHash
	}
	if lv.credential != nil {
		obs.Code = lv.credential.Code
		obs.DocumentHash = lv.credential.DocumentHash
	}
	return obs
}

func recordObservation(rec *models.Credential) *Observation {
	return &Observation{
		Exists:       true,
		Code:         rec.Code,
		DocumentHash: rec.Metadata.DocumentHash,
		AssetID:      rec.AssetID,
		PolicyID:     rec.PolicyID,
		TxHash:       rec.TxHash,
		Status:       string(rec.Status),
	}
}

// recordView is the outcome of one record lookup; rec is nil when the record
// does not exist and err is set only when the store could not answer.
type recordView struct {
	rec *models.Credential
	err *dErrors.Error
}

func (r *Reconciler) lookupAsset(ctx context.Context, assetID string) ledgerView {
	ctx, cancel := context.WithTimeout(ctx, r.sourceTimeout)
	defer cancel()
	ctx, span := r.tracer.Start(ctx, tracer.SpanVerifyLedger, tracer.String(tracer.AttrAssetID, assetID))

	asset, err := r.ledger.Asset(ctx, assetID)
	if err != nil {
		if dErrors.HasReason(err, dErrors.CodeLedger, dErrors.ReasonNotFound) {
			span.End(nil)
			return ledgerView{}
		}
		derr := dErrors.Classify(err)
		span.End(derr)
		r.sourceFailed(ctx, SourceLedger, derr)
		return ledgerView{err: derr}
	}
	span.SetAttributes(tracer.String(tracer.AttrPolicyID, asset.PolicyID))
	span.End(nil)

	lv := ledgerView{asset: asset}
	if len(asset.OnchainMetadata) > 0 {
		onchain, err := metadata.ParseOnChain(asset.OnchainMetadata)
		if err != nil {
			r.logger.DebugContext(ctx, "asset metadata is not a credential",
				"asset_id", assetID,
				"error", err,
			)
			return lv
		}
		cred := onchain.Normalize()
		lv.credential = &cred
	}
	return lv
}

func (r *Reconciler) lookupTx(ctx context.Context, txHash string) *indexer.Transaction {
	ctx, cancel := context.WithTimeout(ctx, r.sourceTimeout)
	defer cancel()
	txn, err := r.ledger.Transaction(ctx, txHash)
	if err != nil {
		if !dErrors.HasReason(err, dErrors.CodeLedger, dErrors.ReasonNotFound) {
			r.logger.DebugContext(ctx, "mint transaction lookup failed",
				"tx_hash", txHash,
				"error", err,
			)
		}
		return nil
	}
	return txn
}

func (r *Reconciler) lookupRecord(ctx context.Context, find func(context.Context) (*models.Credential, error)) recordView {
	ctx, cancel := context.WithTimeout(ctx, r.sourceTimeout)
	defer cancel()
	ctx, span := r.tracer.Start(ctx, tracer.SpanVerifyRecord)

	rec, err := find(ctx)
	switch {
	case err == nil:
		span.End(nil)
		return recordView{rec: rec}
	case errors.Is(err, sentinel.ErrNotFound), dErrors.HasCode(err, dErrors.CodeNotFound):
		span.End(nil)
		return recordView{}
	}

	var derr *dErrors.Error
	if errors.Is(err, sentinel.ErrUnavailable) {
		derr = &dErrors.Error{Code: dErrors.CodeNetwork, Reason: dErrors.ReasonUnavailable, Message: "record store unavailable", Err: err}
	} else {
		derr = dErrors.Classify(err)
	}
	span.End(derr)
	r.sourceFailed(ctx, SourceRecord, derr)
	return recordView{err: derr}
}

func (r *Reconciler) sourceFailed(ctx context.Context, source Source, err *dErrors.Error) {
	if r.metrics != nil {
		r.metrics.RecordSourceFailure(string(source), string(err.Code))
	}
	r.logger.WarnContext(ctx, "verification source unavailable",
		"source", string(source),
		"error_kind", string(err.Code),
		"error", err,
	)
}
