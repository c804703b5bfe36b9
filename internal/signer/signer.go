// Package signer defines the issuer wallet contract used by the minting pipeline.
//
// Adapters: local (ed25519 key held by the service, chain access through the
// indexer) and remote (HTTP bridge in front of a browser or hardware wallet).
package signer

import (
	"context"

	"certledger/internal/ledger/tx"
)

// Connector is a connected issuer wallet.
//
// Errors are domain errors: CodeWallet/ReasonUserCancelled when signing is
// declined, CodeWallet/ReasonSignerUnavailable when the wallet cannot be
// reached, CodeNetwork or CodeLedger from Submit.
type Connector interface {
	Address(ctx context.Context) (string, error)
	KeyHash(ctx context.Context) (tx.KeyHash, error)
	UTXOs(ctx context.Context) ([]tx.UTXO, error)
	Sign(ctx context.Context, unsigned *tx.Unsigned) ([]tx.VKeyWitness, error)
	Submit(ctx context.Context, signedTx []byte) (string, error)
}

// Address header bytes for enterprise (payment key only) addresses.
const (
	headerEnterpriseTestnet byte = 0x60
	headerEnterpriseMainnet byte = 0x61
)

// EnterpriseAddress renders the enterprise address controlled by keyHash.
func EnterpriseAddress(keyHash tx.KeyHash, mainnet bool) (string, error) {
	header, hrp := headerEnterpriseTestnet, "addr_test"
	if mainnet {
		header, hrp = headerEnterpriseMainnet, "addr"
	}
	raw := append([]byte{header}, keyHash[:]...)
	return tx.EncodeAddress(hrp, raw)
}

// PaymentKeyHash extracts the payment key hash of a key-based address
// (base, pointer or enterprise). Script addresses yield false.
func PaymentKeyHash(address string) (tx.KeyHash, bool) {
	raw, err := tx.DecodeAddress(address)
	if err != nil || len(raw) < 29 {
		return tx.KeyHash{}, false
	}
	// Header types 0, 2, 4 and 6 carry a key hash as payment credential.
	if kind := raw[0] >> 4; kind > 7 || kind%2 != 0 {
		return tx.KeyHash{}, false
	}
	var kh tx.KeyHash
	copy(kh[:], raw[1:29])
	return kh, true
}
