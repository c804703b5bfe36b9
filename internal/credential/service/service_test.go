package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certledger/internal/credential/events"
	"certledger/internal/credential/models"
	"certledger/internal/credential/store"
	"certledger/internal/ledger/indexer"
	"certledger/internal/ledger/metadata"
	"certledger/internal/mint"
	"certledger/internal/signer/local"
	dErrors "certledger/pkg/domain-errors"
)

const testSeed = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"

type stubMinter struct {
	mu       sync.Mutex
	requests []mint.Request
	result   func(mint.Request) mint.Result
}

func (m *stubMinter) Mint(_ context.Context, req mint.Request) mint.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return m.result(req)
}

func (m *stubMinter) BatchMint(ctx context.Context, reqs []mint.Request) []mint.Result {
	out := make([]mint.Result, len(reqs))
	for i, r := range reqs {
		out[i] = m.Mint(ctx, r)
	}
	return out
}

type capturePublisher struct {
	events []events.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, e events.Event) error {
	p.events = append(p.events, e)
	return p.err
}

func (p *capturePublisher) types() []events.Type {
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type ServiceSuite struct {
	suite.Suite
	ctx       context.Context
	store     *store.InMemory
	minter    *stubMinter
	publisher *capturePublisher
	service   *Service
	now       time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)
	s.store = store.NewInMemory()
	s.publisher = &capturePublisher{}
	s.minter = &stubMinter{result: func(req mint.Request) mint.Result {
		minted := s.now
		return mint.Result{
			Success:  true,
			TxHash:   "tx-" + req.NameSeed,
			AssetID:  "pol" + req.NameSeed,
			PolicyID: "pol",
			MintedAt: &minted,
			Stage:    mint.StageConfirmed,
		}
	}}
	s.service = New(s.store, s.minter,
		WithPublisher(s.publisher),
		WithClock(func() time.Time { return s.now }),
		WithCodePrefix("uni"),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func validCreate(code string) CreateRequest {
	return CreateRequest{
		Code: code,
		Metadata: metadata.Credential{
			SubjectName:   "Ana Silva",
			SubjectNumber: "STU2024001",
			Program:       "Computer Science",
		},
	}
}

func (s *ServiceSuite) TestCreate() {
	s.Run("generates a code in the institution format", func() {
		c, err := s.service.Create(s.ctx, validCreate(""))
		s.Require().NoError(err)
		code, ok := models.ParseCode(c.Code)
		s.True(ok, c.Code)
		s.Equal(code, c.Code)
		s.Contains(c.Code, "UNI-2024-")
		s.Equal(c.Code, c.Metadata.Code)
		s.Equal(models.StatusIssued, c.Status)
	})

	s.Run("normalizes an explicit code", func() {
		c, err := s.service.Create(s.ctx, validCreate("uni-2024-abc123"))
		s.Require().NoError(err)
		s.Equal("UNI-2024-ABC123", c.Code)
	})

	s.Run("rejects a duplicate explicit code", func() {
		_, err := s.service.Create(s.ctx, validCreate("UNI-2024-ABC123"))
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicate))
	})

	s.Run("validation", func() {
		cases := map[string]func(*CreateRequest){
			"missing name":    func(r *CreateRequest) { r.Metadata.SubjectName = " " },
			"missing program": func(r *CreateRequest) { r.Metadata.Program = "" },
			"bad image":       func(r *CreateRequest) { r.Metadata.Image = "ipfs://not-a-cid" },
			"bad hash":        func(r *CreateRequest) { r.Metadata.DocumentHash = "xyz" },
			"bad code":        func(r *CreateRequest) { r.Code = "nope" },
		}
		for name, mutate := range cases {
			req := validCreate("")
			mutate(&req)
			_, err := s.service.Create(s.ctx, req)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), name)
		}
	})

	s.Equal([]events.Type{events.TypeCreated, events.TypeCreated}, s.publisher.types())
}

func (s *ServiceSuite) TestGetTranslatesNotFound() {
	_, err := s.service.Get(s.ctx, "UNI-2024-ZZZ999")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.Get(s.ctx, "garbage")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestListFiltersByStatus() {
	_, err := s.service.Create(s.ctx, validCreate("UNI-2024-AAA111"))
	s.Require().NoError(err)
	_, err = s.service.Create(s.ctx, validCreate("UNI-2024-BBB222"))
	s.Require().NoError(err)
	_, err = s.service.Revoke(s.ctx, "UNI-2024-BBB222", "issued in error")
	s.Require().NoError(err)

	issued, err := s.service.List(s.ctx, store.ListFilter{Status: models.StatusIssued})
	s.Require().NoError(err)
	s.Require().Len(issued, 1)
	s.Equal("UNI-2024-AAA111", issued[0].Code)

	_, err = s.service.List(s.ctx, store.ListFilter{Status: models.Status("pending")})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestRevokeIsIdempotent() {
	_, err := s.service.Create(s.ctx, validCreate("UNI-2024-ABC123"))
	s.Require().NoError(err)

	_, err = s.service.Revoke(s.ctx, "UNI-2024-ABC123", "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	first, err := s.service.Revoke(s.ctx, "uni-2024-abc123", "issued in error")
	s.Require().NoError(err)
	s.True(first.IsRevoked())

	s.now = s.now.Add(time.Hour)
	second, err := s.service.Revoke(s.ctx, "UNI-2024-ABC123", "again")
	s.Require().NoError(err)
	s.Equal(*first.RevokedAt, *second.RevokedAt)
	s.Equal("issued in error", second.RevocationReason)

	s.Equal([]events.Type{events.TypeCreated, events.TypeRevoked}, s.publisher.types())
}

func (s *ServiceSuite) TestIssue() {
	_, err := s.service.Create(s.ctx, validCreate("UNI-2024-ABC123"))
	s.Require().NoError(err)

	out := s.service.Issue(s.ctx, "UNI-2024-ABC123")
	s.Require().NoError(out.Err)
	s.Require().NotNil(out.Mint)
	s.True(out.Mint.Success)
	s.Equal(models.MintConfirmed, out.Credential.MintState)
	s.Equal("polUNI-2024-ABC123", out.Credential.AssetID)
	s.Equal("UNI-2024-ABC123", s.minter.requests[0].NameSeed)

	s.Run("second issue is refused", func() {
		again := s.service.Issue(s.ctx, "UNI-2024-ABC123")
		s.True(dErrors.HasCode(again.Err, dErrors.CodeDuplicate))
		s.Len(s.minter.requests, 1)
	})

	byAsset, err := s.store.FindByAssetID(s.ctx, "polUNI-2024-ABC123")
	s.Require().NoError(err)
	s.Equal("UNI-2024-ABC123", byAsset.Code)
	s.Contains(s.publisher.types(), events.TypeMinted)
}

func (s *ServiceSuite) TestIssueRevokedIsRefused() {
	_, err := s.service.Create(s.ctx, validCreate("UNI-2024-ABC123"))
	s.Require().NoError(err)
	_, err = s.service.Revoke(s.ctx, "UNI-2024-ABC123", "withdrawn")
	s.Require().NoError(err)

	out := s.service.Issue(s.ctx, "UNI-2024-ABC123")
	s.True(dErrors.HasCode(out.Err, dErrors.CodeValidation))
	s.Empty(s.minter.requests)
}

func (s *ServiceSuite) TestFailedMintLeavesRecordUntouched() {
	_, err := s.service.Create(s.ctx, validCreate("UNI-2024-ABC123"))
	s.Require().NoError(err)
	s.minter.result = func(mint.Request) mint.Result {
		return mint.Result{Stage: mint.StageBuilding, ErrorKind: dErrors.CodeWallet, ErrorReason: dErrors.ReasonNoUTXO}
	}

	out := s.service.Issue(s.ctx, "UNI-2024-ABC123")
	s.NoError(out.Err)
	s.False(out.Mint.Success)

	c, err := s.service.Get(s.ctx, "UNI-2024-ABC123")
	s.Require().NoError(err)
	s.False(c.Minted())
	s.Equal(models.MintNone, c.MintState)
}

type txLookup map[string]*indexer.Transaction

func (l txLookup) Transaction(_ context.Context, hash string) (*indexer.Transaction, error) {
	if t, ok := l[hash]; ok {
		return t, nil
	}
	return nil, dErrors.NewReason(dErrors.CodeLedger, dErrors.ReasonNotFound, "not found")
}

func (s *ServiceSuite) TestPendingMintIsConfirmedLater() {
	_, err := s.service.Create(s.ctx, validCreate("UNI-2024-ABC123"))
	s.Require().NoError(err)
	s.minter.result = func(req mint.Request) mint.Result {
		return mint.Result{
			TxHash: "tx-pending", AssetID: "pol.asset", PolicyID: "pol",
			Stage: mint.StageConfirming, ErrorKind: dErrors.CodePending, ErrorReason: dErrors.ReasonTimeout,
		}
	}
	lookup := txLookup{}
	s.service.ledger = lookup

	out := s.service.Issue(s.ctx, "UNI-2024-ABC123")
	s.Require().NoError(out.Err)
	s.Equal(models.MintPending, out.Credential.MintState)
	s.Equal("tx-pending", out.Credential.TxHash)

	again := s.service.Issue(s.ctx, "UNI-2024-ABC123")
	s.True(dErrors.HasCode(again.Err, dErrors.CodePending))

	_, err = s.service.ConfirmPending(s.ctx, "UNI-2024-ABC123")
	s.True(dErrors.HasCode(err, dErrors.CodePending))

	blockTime := s.now.Add(40 * time.Second)
	lookup["tx-pending"] = &indexer.Transaction{Hash: "tx-pending", BlockTime: blockTime}
	c, err := s.service.ConfirmPending(s.ctx, "UNI-2024-ABC123")
	s.Require().NoError(err)
	s.Equal(models.MintConfirmed, c.MintState)
	s.Equal(blockTime, *c.MintedAt)

	s.Equal([]events.Type{events.TypeCreated, events.TypePending, events.TypeMinted}, s.publisher.types())
}

func (s *ServiceSuite) TestIssueBatch() {
	for _, code := range []string{"UNI-2024-AAA111", "UNI-2024-BBB222"} {
		_, err := s.service.Create(s.ctx, validCreate(code))
		s.Require().NoError(err)
	}
	_, err := s.service.Revoke(s.ctx, "UNI-2024-BBB222", "withdrawn")
	s.Require().NoError(err)

	out := s.service.IssueBatch(s.ctx, []string{"UNI-2024-AAA111", "bad", "UNI-2024-BBB222", "UNI-2024-CCC333", "uni-2024-aaa111"})
	s.Require().Len(out, 5)
	s.NoError(out[0].Err)
	s.True(out[0].Mint.Success)
	s.True(dErrors.HasCode(out[1].Err, dErrors.CodeValidation))
	s.True(dErrors.HasCode(out[2].Err, dErrors.CodeValidation))
	s.True(dErrors.HasCode(out[3].Err, dErrors.CodeNotFound))
	s.True(dErrors.HasCode(out[4].Err, dErrors.CodeDuplicate))
	s.Len(s.minter.requests, 1)
}

func (s *ServiceSuite) TestPublishFailureDoesNotFailOperation() {
	s.publisher.err = errors.New("broker down")
	_, err := s.service.Create(s.ctx, validCreate("UNI-2024-ABC123"))
	s.NoError(err)
}

func (s *ServiceSuite) TestWithoutMinter() {
	svc := New(s.store, nil)
	out := svc.Issue(s.ctx, "UNI-2024-ABC123")
	s.True(dErrors.HasCode(out.Err, dErrors.CodeInternal))
}

// End to end through the real pipeline and the in-memory ledger.
func TestIssueAgainstLedger(t *testing.T) {
	ctx := context.Background()
	ledger := indexer.NewLedger()
	wallet, err := local.New(testSeed, ledger)
	if err != nil {
		t.Fatal(err)
	}
	addr, _ := wallet.Address(ctx)
	if _, err := ledger.Fund(addr, 20_000_000); err != nil {
		t.Fatal(err)
	}
	pipeline := mint.New(wallet, ledger, nil, nil, mint.Config{
		ConfirmTimeout:      time.Second,
		ConfirmPollInterval: 5 * time.Millisecond,
	}, mint.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	svc := New(store.NewInMemory(), pipeline, WithLedger(ledger), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if _, err := svc.Create(ctx, validCreate("UNI-2024-ABC123")); err != nil {
		t.Fatal(err)
	}
	out := svc.Issue(ctx, "UNI-2024-ABC123")
	if out.Err != nil || !out.Mint.Success {
		t.Fatalf("issue failed: %v %+v", out.Err, out.Mint)
	}
	asset, err := ledger.Asset(ctx, out.Credential.AssetID)
	if err != nil {
		t.Fatalf("asset not on ledger: %v", err)
	}
	onChain, err := metadata.ParseOnChain(asset.OnchainMetadata)
	if err != nil {
		t.Fatal(err)
	}
	if got := onChain.Normalize().Code; got != "UNI-2024-ABC123" {
		t.Fatalf("on-chain credential code = %q", got)
	}
}
