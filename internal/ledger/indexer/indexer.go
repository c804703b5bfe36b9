// Package indexer is the ledger query surface used by minting and verification:
// asset lookup, asset history, transaction status, address UTXOs and submission.
//
// Adapters: HTTPClient (hosted indexer API), Ledger (in-process, for local runs
// and tests), plus Breaker and Cached decorators.
package indexer

import (
	"context"
	"time"

	"certledger/internal/ledger/tx"
)

// Client is the ledger indexer contract.
//
// Errors are domain errors: CodeLedger/ReasonNotFound when the object does not
// exist (or, for transactions, is not yet included), CodeLedger/ReasonRejected
// when a submission is refused, CodeNetwork for transport failures.
type Client interface {
	Asset(ctx context.Context, assetID string) (*Asset, error)
	AssetHistory(ctx context.Context, assetID string) ([]AssetEvent, error)
	Transaction(ctx context.Context, txHash string) (*Transaction, error)
	UTXOs(ctx context.Context, address string) ([]tx.UTXO, error)
	Submit(ctx context.Context, signedTx []byte) (string, error)
	Tip(ctx context.Context) (*Tip, error)
}

// Asset is a native asset as reported by the indexer.
type Asset struct {
	AssetID           string         `json:"asset"`
	PolicyID          string         `json:"policy_id"`
	AssetNameHex      string         `json:"asset_name"`
	Fingerprint       string         `json:"fingerprint,omitempty"`
	Quantity          string         `json:"quantity"`
	InitialMintTxHash string         `json:"initial_mint_tx_hash"`
	MintOrBurnCount   int            `json:"mint_or_burn_count"`
	OnchainMetadata   map[string]any `json:"onchain_metadata"`
}

// Exists reports whether at least one unit is in circulation. A fully burned
// asset is still known to the indexer but no longer exists on the ledger.
func (a *Asset) Exists() bool {
	return a != nil && a.Quantity != "" && a.Quantity != "0"
}

// AssetAction is a mint or burn.
type AssetAction string

const (
	ActionMinted AssetAction = "minted"
	ActionBurned AssetAction = "burned"
)

// AssetEvent is one entry of an asset's mint/burn history.
type AssetEvent struct {
	TxHash string      `json:"tx_hash"`
	Action AssetAction `json:"action"`
	Amount string      `json:"amount"`
}

// Transaction is the inclusion status of a submitted transaction.
type Transaction struct {
	Hash      string    `json:"hash"`
	Block     string    `json:"block"`
	Height    uint64    `json:"block_height"`
	Slot      uint64    `json:"slot"`
	BlockTime time.Time `json:"-"`
}

// Tip is the latest block known to the indexer.
type Tip struct {
	Slot   uint64    `json:"slot"`
	Height uint64    `json:"height"`
	Hash   string    `json:"hash"`
	Time   time.Time `json:"-"`
}
