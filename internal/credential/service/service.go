// Package service runs the issuing workflow: create the off-chain record,
// anchor it on the ledger, attach the mint result, revoke.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"certledger/internal/credential/events"
	"certledger/internal/credential/models"
	"certledger/internal/credential/store"
	"certledger/internal/ledger/indexer"
	"certledger/internal/ledger/metadata"
	"certledger/internal/mint"
	"certledger/internal/platform/metrics"
	"certledger/internal/platform/privacy"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/sentinel"
	platformsync "certledger/pkg/platform/sync"
)

// Minter anchors credentials on the ledger.
type Minter interface {
	Mint(ctx context.Context, req mint.Request) mint.Result
	BatchMint(ctx context.Context, reqs []mint.Request) []mint.Result
}

// TxLookup finds included transactions.
type TxLookup interface {
	Transaction(ctx context.Context, txHash string) (*indexer.Transaction, error)
}

// Publisher emits lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// Option configures the Service.
type Option func(*Service)

// Service owns credential records and their issuance.
type Service struct {
	store     store.Store
	minter    Minter
	publisher Publisher
	ledger    TxLookup
	prefix    string
	locks     *platformsync.KeyedMutex
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

const (
	defaultCodePrefix = "CERT"
	codeAttempts      = 3
)

// New creates the service. minter may be nil when the process only manages records.
func New(st store.Store, minter Minter, opts ...Option) *Service {
	s := &Service{
		store:  st,
		minter: minter,
		prefix: defaultCodePrefix,
		locks:  platformsync.NewKeyedMutex(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithLedger enables ConfirmPending.
func WithLedger(l TxLookup) Option {
	return func(s *Service) {
		s.ledger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithCodePrefix sets the institution prefix of generated codes (2-10 letters).
func WithCodePrefix(prefix string) Option {
	return func(s *Service) {
		if prefix != "" {
			s.prefix = strings.ToUpper(prefix)
		}
	}
}

// CreateRequest describes a new credential record.
type CreateRequest struct {
	// Code is optional; a code is generated when empty.
	Code             string
	Metadata         metadata.Credential
	RecipientAddress string
}

// IssueOutcome pairs the record with the mint run that anchored it.
type IssueOutcome struct {
	Code       string             `json:"credentialCode"`
	Credential *models.Credential `json:"credential,omitempty"`
	Mint       *mint.Result       `json:"mint,omitempty"`
	Err        error              `json:"-"`
}

// Create validates and stores a new issued record.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Credential, error) {
	md := req.Metadata
	if strings.TrimSpace(md.SubjectName) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "studentName is required")
	}
	if strings.TrimSpace(md.Program) == "" && strings.TrimSpace(md.Degree) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "program or degree is required")
	}
	if md.Image != "" {
		if err := metadata.ValidateImageURI(md.Image); err != nil {
			return nil, err
		}
	}
	if md.DocumentHash != "" {
		if err := metadata.ValidateDocumentHash(md.DocumentHash); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	explicit := req.Code != ""
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code := s.generateCode(now)
		if explicit {
			var ok bool
			if code, ok = models.ParseCode(req.Code); !ok {
				return nil, dErrors.New(dErrors.CodeValidation, "credentialCode must look like UNI-2024-AB12CD")
			}
		}
		c, err := models.NewCredential(code, md, strings.TrimSpace(req.RecipientAddress), now)
		if err != nil {
			return nil, err
		}
		err = s.store.Create(ctx, c)
		if err == nil {
			s.logger.InfoContext(ctx, "credential created",
				"code", c.Code, "subject_number", privacy.MaskIdentifier(c.Metadata.SubjectNumber, 3))
			if s.metrics != nil {
				s.metrics.IncrementCredentialsCreated()
			}
			s.publish(ctx, events.TypeCreated, c)
			return c, nil
		}
		if !errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store credential")
		}
		if explicit {
			return nil, dErrors.New(dErrors.CodeDuplicate, "credential "+code+" already exists")
		}
	}
	return nil, dErrors.New(dErrors.CodeInternal, "could not allocate a unique credential code")
}

// Get returns the record with the given code.
func (s *Service) Get(ctx context.Context, code string) (*models.Credential, error) {
	normalized, err := parseCode(code)
	if err != nil {
		return nil, err
	}
	c, err := s.store.FindByCode(ctx, normalized)
	if err != nil {
		return nil, translate(err, normalized)
	}
	return c, nil
}

// List pages through records.
func (s *Service) List(ctx context.Context, filter store.ListFilter) ([]*models.Credential, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "status must be issued or revoked")
	}
	out, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list credentials")
	}
	return out, nil
}

// Revoke marks the record revoked. The ledger asset is untouched; verification
// reads revocation from the record.
func (s *Service) Revoke(ctx context.Context, code, reason string) (*models.Credential, error) {
	normalized, err := parseCode(code)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}

	var already bool
	c, err := s.store.Execute(ctx, normalized,
		func(c *models.Credential) error {
			already = c.IsRevoked()
			return nil
		},
		func(c *models.Credential) { c.Revoke(reason, s.now().UTC()) },
	)
	if err != nil {
		return nil, translate(err, normalized)
	}
	if !already {
		s.logger.InfoContext(ctx, "credential revoked", "code", c.Code, "asset_id", c.AssetID)
		if s.metrics != nil {
			s.metrics.IncrementCredentialsRevoked()
		}
		s.publish(ctx, events.TypeRevoked, c)
	}
	return c, nil
}

// Issue mints the record's asset and attaches the result. A failed mint
// leaves the record unchanged and is reported in the outcome's Mint result.
func (s *Service) Issue(ctx context.Context, code string) IssueOutcome {
	normalized, err := parseCode(code)
	if err != nil {
		return IssueOutcome{Code: code, Err: err}
	}
	if s.minter == nil {
		return IssueOutcome{Code: normalized, Err: dErrors.New(dErrors.CodeInternal, "minting is not configured")}
	}

	if err := s.locks.LockContext(ctx, normalized); err != nil {
		return IssueOutcome{Code: normalized, Err: dErrors.Classify(err)}
	}
	defer s.locks.Unlock(normalized)

	c, err := s.mintable(ctx, normalized)
	if err != nil {
		s.countIssue("refused")
		return IssueOutcome{Code: normalized, Credential: c, Err: err}
	}
	res := s.minter.Mint(ctx, mintRequest(c))
	return s.attach(ctx, c, res)
}

// IssueBatch issues several records through one sequential batch. Records
// that cannot be minted get an error outcome without consuming a mint slot.
func (s *Service) IssueBatch(ctx context.Context, codes []string) []IssueOutcome {
	out := make([]IssueOutcome, len(codes))
	if s.minter == nil {
		for i, code := range codes {
			out[i] = IssueOutcome{Code: code, Err: dErrors.New(dErrors.CodeInternal, "minting is not configured")}
		}
		return out
	}

	var (
		reqs    []mint.Request
		records []*models.Credential
		slots   []int
		seen    = map[string]bool{}
	)
	for i, code := range codes {
		normalized, err := parseCode(code)
		if err != nil {
			out[i] = IssueOutcome{Code: code, Err: err}
			continue
		}
		if seen[normalized] {
			out[i] = IssueOutcome{Code: normalized, Err: dErrors.New(dErrors.CodeDuplicate, "credential "+normalized+" appears twice in the batch")}
			continue
		}
		seen[normalized] = true
		s.locks.Lock(normalized)
		c, err := s.mintable(ctx, normalized)
		s.locks.Unlock(normalized)
		if err != nil {
			s.countIssue("refused")
			out[i] = IssueOutcome{Code: normalized, Credential: c, Err: err}
			continue
		}
		reqs = append(reqs, mintRequest(c))
		records = append(records, c)
		slots = append(slots, i)
	}
	if len(reqs) == 0 {
		return out
	}

	results := s.minter.BatchMint(ctx, reqs)
	for j, res := range results {
		out[slots[j]] = s.attach(ctx, records[j], res)
	}
	return out
}

// ConfirmPending checks whether a pending mint has been included and, if so,
// records it as confirmed. Records that are not pending are returned unchanged.
func (s *Service) ConfirmPending(ctx context.Context, code string) (*models.Credential, error) {
	normalized, err := parseCode(code)
	if err != nil {
		return nil, err
	}
	if s.ledger == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "ledger lookups are not configured")
	}
	c, err := s.store.FindByCode(ctx, normalized)
	if err != nil {
		return nil, translate(err, normalized)
	}
	if c.MintState != models.MintPending {
		return c, nil
	}

	included, err := s.ledger.Transaction(ctx, c.TxHash)
	if err != nil {
		if dErrors.HasReason(err, dErrors.CodeLedger, dErrors.ReasonNotFound) {
			return c, dErrors.NewReason(dErrors.CodePending, dErrors.ReasonNotFound, "transaction "+c.TxHash+" is not yet included")
		}
		return c, dErrors.Classify(err)
	}
	mintedAt := included.BlockTime
	updated, err := s.store.Execute(ctx, normalized,
		func(rec *models.Credential) error {
			if rec.TxHash != c.TxHash {
				return dErrors.New(dErrors.CodeDuplicate, "credential "+normalized+" was re-issued while confirming")
			}
			return nil
		},
		func(rec *models.Credential) {
			rec.AttachMint(rec.PolicyID, rec.AssetID, rec.TxHash, &mintedAt, s.now().UTC())
		},
	)
	if err != nil {
		return c, translate(err, normalized)
	}
	s.logger.InfoContext(ctx, "pending mint confirmed", "code", normalized, "tx_hash", updated.TxHash)
	s.publish(ctx, events.TypeMinted, updated)
	return updated, nil
}

func (s *Service) mintable(ctx context.Context, code string) (*models.Credential, error) {
	c, err := s.store.FindByCode(ctx, code)
	if err != nil {
		return nil, translate(err, code)
	}
	if err := c.CanMint(); err != nil {
		return c, err
	}
	return c, nil
}

func (s *Service) attach(ctx context.Context, c *models.Credential, res mint.Result) IssueOutcome {
	outcome := IssueOutcome{Code: c.Code, Credential: c, Mint: &res}
	if !res.Success && !res.Pending() {
		s.countIssue("failed")
		return outcome
	}

	// The transaction is on the wire; persist its identifiers even if the
	// caller has gone away.
	ctx = context.WithoutCancel(ctx)
	updated, err := s.store.Execute(ctx, c.Code,
		func(*models.Credential) error { return nil },
		func(rec *models.Credential) {
			rec.AttachMint(res.PolicyID, res.AssetID, res.TxHash, res.MintedAt, s.now().UTC())
		},
	)
	if err != nil {
		s.logger.ErrorContext(ctx, "mint broadcast but not recorded",
			"code", c.Code, "tx_hash", res.TxHash, "asset_id", res.AssetID, "error", err)
		outcome.Err = dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("minted in %s but failed to record the result", res.TxHash))
		return outcome
	}
	outcome.Credential = updated

	t, label := events.TypeMinted, "confirmed"
	if res.Pending() {
		t, label = events.TypePending, "pending"
	}
	s.countIssue(label)
	s.publish(ctx, t, updated)
	return outcome
}

func (s *Service) countIssue(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementIssueOutcome(outcome)
	}
}

func (s *Service) publish(ctx context.Context, t events.Type, c *models.Credential) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.FromCredential(t, c, s.now())); err != nil {
		s.logger.WarnContext(ctx, "failed to publish credential event", "type", t, "code", c.Code, "error", err)
		if s.metrics != nil {
			s.metrics.IncrementEventPublishErrors()
		}
	}
}

func (s *Service) generateCode(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("%s-%04d-%s", s.prefix, now.Year(), suffix)
}

func mintRequest(c *models.Credential) mint.Request {
	return mint.Request{
		RecipientAddress: c.RecipientAddress,
		Metadata:         c.Metadata,
		NameSeed:         c.Code,
	}
}

func parseCode(code string) (string, error) {
	normalized, ok := models.ParseCode(code)
	if !ok {
		return "", dErrors.New(dErrors.CodeValidation, "credential code "+code+" is malformed")
	}
	return normalized, nil
}

func translate(err error, code string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "credential "+code+" not found")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeDuplicate, "credential "+code+" conflicts with an existing record")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "credential store failure")
}
