// Package local implements a signer backed by an ed25519 key held in process.
package local

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"log/slog"
	"strings"

	"certledger/internal/ledger/indexer"
	"certledger/internal/ledger/tx"
	"certledger/internal/signer"
	dErrors "certledger/pkg/domain-errors"
)

// Signer signs with a service-held key; UTXOs and submission go through the indexer.
type Signer struct {
	priv    ed25519.PrivateKey
	keyHash tx.KeyHash
	address string
	chain   indexer.Client
	logger  *slog.Logger
}

// Option configures a Signer.
type Option func(*Signer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Signer) {
		s.logger = logger
	}
}

// WithAddress overrides the derived enterprise testnet address.
func WithAddress(address string) Option {
	return func(s *Signer) {
		if address != "" {
			s.address = address
		}
	}
}

// New builds a signer from a hex-encoded 32-byte seed.
func New(seedHex string, chain indexer.Client, opts ...Option) (*Signer, error) {
	seed, err := hex.DecodeString(strings.TrimSpace(seedHex))
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, dErrors.NewReason(dErrors.CodeWallet, dErrors.ReasonSignerUnavailable, "signing seed must be 32 hex-encoded bytes")
	}
	return NewFromKey(ed25519.NewKeyFromSeed(seed), chain, opts...)
}

// NewFromKey builds a signer from an existing private key.
func NewFromKey(priv ed25519.PrivateKey, chain indexer.Client, opts ...Option) (*Signer, error) {
	s := &Signer{
		priv:    priv,
		keyHash: tx.HashKey(priv.Public().(ed25519.PublicKey)),
		chain:   chain,
		logger:  slog.Default(),
	}
	addr, err := signer.EnterpriseAddress(s.keyHash, false)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "derive signer address")
	}
	s.address = addr
	for _, opt := range opts {
		opt(s)
	}
	if kh, ok := signer.PaymentKeyHash(s.address); ok && kh != s.keyHash {
		return nil, dErrors.NewReason(dErrors.CodeWallet, dErrors.ReasonSignerUnavailable, "address is not controlled by the signing key")
	}
	return s, nil
}

func (s *Signer) Address(context.Context) (string, error) {
	return s.address, nil
}

func (s *Signer) KeyHash(context.Context) (tx.KeyHash, error) {
	return s.keyHash, nil
}

func (s *Signer) UTXOs(ctx context.Context) ([]tx.UTXO, error) {
	return s.chain.UTXOs(ctx, s.address)
}

// Sign witnesses the body hash. A key signer never declines.
func (s *Signer) Sign(ctx context.Context, unsigned *tx.Unsigned) ([]tx.VKeyWitness, error) {
	if unsigned == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "nothing to sign")
	}
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Classify(err)
	}
	sig := ed25519.Sign(s.priv, unsigned.Hash[:])
	s.logger.DebugContext(ctx, "transaction signed", "tx_hash", unsigned.Hash.Hex())
	return []tx.VKeyWitness{{VKey: s.priv.Public().(ed25519.PublicKey), Signature: sig}}, nil
}

func (s *Signer) Submit(ctx context.Context, signedTx []byte) (string, error) {
	return s.chain.Submit(ctx, signedTx)
}

var _ signer.Connector = (*Signer)(nil)
