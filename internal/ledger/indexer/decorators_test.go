package indexer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certledger/internal/ledger/tx"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/circuit"
)

// stubClient implements Client with overridable lookups and call counters.
type stubClient struct {
	mu            sync.Mutex
	calls         map[string]int
	assetFn       func(ctx context.Context, assetID string) (*Asset, error)
	transactionFn func(ctx context.Context, hash string) (*Transaction, error)
}

func (s *stubClient) count(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[op]++
}

func (s *stubClient) Asset(ctx context.Context, assetID string) (*Asset, error) {
	s.count("asset")
	return s.assetFn(ctx, assetID)
}

func (s *stubClient) AssetHistory(context.Context, string) ([]AssetEvent, error) {
	s.count("history")
	return nil, nil
}

func (s *stubClient) Transaction(ctx context.Context, hash string) (*Transaction, error) {
	s.count("tx")
	return s.transactionFn(ctx, hash)
}

func (s *stubClient) UTXOs(context.Context, string) ([]tx.UTXO, error) {
	s.count("utxos")
	return nil, nil
}

func (s *stubClient) Submit(context.Context, []byte) (string, error) {
	s.count("submit")
	return "", nil
}

func (s *stubClient) Tip(context.Context) (*Tip, error) {
	s.count("tip")
	return &Tip{}, nil
}

type mapStore struct {
	mu      sync.Mutex
	entries map[string][]byte
	failGet bool
}

func (m *mapStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, errors.New("connection refused")
	}
	v, ok := m.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (m *mapStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

type DecoratorSuite struct {
	suite.Suite
	stub  *stubClient
	store *mapStore
}

func TestDecoratorSuite(t *testing.T) {
	suite.Run(t, new(DecoratorSuite))
}

func (s *DecoratorSuite) SetupTest() {
	s.stub = &stubClient{
		assetFn: func(_ context.Context, id string) (*Asset, error) {
			return &Asset{AssetID: id, Quantity: "1"}, nil
		},
		transactionFn: func(_ context.Context, hash string) (*Transaction, error) {
			return &Transaction{Hash: hash, BlockTime: time.Unix(1720000000, 0).UTC()}, nil
		},
	}
	s.store = &mapStore{entries: map[string][]byte{}}
}

func (s *DecoratorSuite) TestCachedServesRepeatLookups() {
	c := NewCached(s.stub, s.store, time.Minute, nil, nil)
	ctx := context.Background()

	for range 3 {
		a, err := c.Asset(ctx, "a1")
		s.Require().NoError(err)
		s.Equal("a1", a.AssetID)
	}
	s.Equal(1, s.stub.calls["asset"])

	for range 2 {
		t, err := c.Transaction(ctx, "t1")
		s.Require().NoError(err)
		s.Equal(time.Unix(1720000000, 0).UTC(), t.BlockTime)
	}
	s.Equal(1, s.stub.calls["tx"])
}

func (s *DecoratorSuite) TestCachedSkipsNegativeAnswers() {
	s.stub.assetFn = func(context.Context, string) (*Asset, error) {
		return nil, dErrors.NewReason(dErrors.CodeLedger, dErrors.ReasonNotFound, "missing")
	}
	c := NewCached(s.stub, s.store, time.Minute, nil, nil)
	for range 2 {
		_, err := c.Asset(context.Background(), "a1")
		s.True(dErrors.HasReason(err, dErrors.CodeLedger, dErrors.ReasonNotFound))
	}
	s.Equal(2, s.stub.calls["asset"])
}

func (s *DecoratorSuite) TestCachedDegradesOnStoreFailure() {
	s.store.failGet = true
	c := NewCached(s.stub, s.store, time.Minute, nil, nil)
	_, err := c.Asset(context.Background(), "a1")
	s.NoError(err)
	s.Equal(1, s.stub.calls["asset"])
}

func (s *DecoratorSuite) TestBreakerCountsOnlyNetworkFailures() {
	b := NewBreaker(s.stub, circuit.New("indexer", circuit.WithFailureThreshold(2)), nil, nil)
	ctx := context.Background()

	s.stub.assetFn = func(context.Context, string) (*Asset, error) {
		return nil, dErrors.NewReason(dErrors.CodeLedger, dErrors.ReasonNotFound, "missing")
	}
	for range 3 {
		_, _ = b.Asset(ctx, "a")
	}
	s.Equal(3, s.stub.calls["asset"], "ledger answers never trip the circuit")

	s.stub.assetFn = func(context.Context, string) (*Asset, error) {
		return nil, dErrors.NewReason(dErrors.CodeNetwork, dErrors.ReasonUnavailable, "down")
	}
	_, _ = b.Asset(ctx, "a")
	_, _ = b.Asset(ctx, "a")
	_, err := b.Asset(ctx, "a")
	s.True(dErrors.HasReason(err, dErrors.CodeNetwork, dErrors.ReasonUnavailable))
	s.Equal(5, s.stub.calls["asset"], "open circuit short-circuits the third call")
}
