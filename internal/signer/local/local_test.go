package local

import (
	"context"
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certledger/internal/ledger/indexer"
	"certledger/internal/ledger/tx"
	"certledger/internal/signer"
	dErrors "certledger/pkg/domain-errors"
)

const testSeed = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"

func TestNew(t *testing.T) {
	t.Run("derives an enterprise testnet address", func(t *testing.T) {
		s, err := New(testSeed, indexer.NewLedger())
		require.NoError(t, err)
		addr, err := s.Address(context.Background())
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(addr, "addr_test1"))

		kh, err := s.KeyHash(context.Background())
		require.NoError(t, err)
		fromAddr, ok := signer.PaymentKeyHash(addr)
		require.True(t, ok)
		assert.Equal(t, kh, fromAddr)
	})

	t.Run("rejects malformed seed", func(t *testing.T) {
		_, err := New("abcd", indexer.NewLedger())
		assert.True(t, dErrors.HasReason(err, dErrors.CodeWallet, dErrors.ReasonSignerUnavailable))
	})

	t.Run("rejects an address owned by another key", func(t *testing.T) {
		other := ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))
		addr, err := signer.EnterpriseAddress(tx.HashKey(other.Public().(ed25519.PublicKey)), false)
		require.NoError(t, err)
		_, err = New(testSeed, indexer.NewLedger(), WithAddress(addr))
		assert.Error(t, err)
	})
}

func TestSignAndSubmit(t *testing.T) {
	ctx := context.Background()
	ledger := indexer.NewLedger()
	s, err := New(testSeed, ledger)
	require.NoError(t, err)

	addr, _ := s.Address(ctx)
	_, err = ledger.Fund(addr, 10_000_000)
	require.NoError(t, err)

	utxos, err := s.UTXOs(ctx)
	require.NoError(t, err)
	require.Len(t, utxos, 1)

	kh, _ := s.KeyHash(ctx)
	script := tx.NewPubKeyScript(kh)
	policyID, err := script.PolicyID()
	require.NoError(t, err)
	u, err := tx.BuildMint(tx.DefaultParams(), tx.MintSpec{
		Available:     utxos,
		ChangeAddress: addr,
		Recipient:     addr,
		Script:        script,
		PolicyID:      policyID,
		AssetName:     []byte("DTEST"),
	})
	require.NoError(t, err)

	witnesses, err := s.Sign(ctx, u)
	require.NoError(t, err)
	require.Len(t, witnesses, 1)
	assert.True(t, ed25519.Verify(witnesses[0].VKey, u.Hash[:], witnesses[0].Signature))

	signed, err := u.Assemble(witnesses)
	require.NoError(t, err)
	hash, err := s.Submit(ctx, signed)
	require.NoError(t, err)
	assert.Equal(t, u.Hash.Hex(), hash)
}

func TestSignRespectsCancellation(t *testing.T) {
	s, err := New(testSeed, indexer.NewLedger())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Sign(ctx, &tx.Unsigned{})
	assert.True(t, dErrors.HasReason(err, dErrors.CodeValidation, dErrors.ReasonCancelled))
}
