package indexer

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"certledger/internal/ledger/metadata"
	"certledger/internal/ledger/tx"
	dErrors "certledger/pkg/domain-errors"
)

// Ledger is an in-process ledger that validates and applies mint transactions.
// It backs local runs without a hosted indexer and the pipeline tests.
type Ledger struct {
	mu             sync.Mutex
	utxos          map[string]tx.UTXO // "hash#index" -> output
	byAddress      map[string][]string
	assets         map[string]*Asset
	history        map[string][]AssetEvent
	txs            map[string]*Transaction
	pendingPolls   map[string]int
	inclusionPolls int
	slot           uint64
	height         uint64
	now            func() time.Time
	seq            int
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithInclusionDelay makes transactions visible only after n status polls.
func WithInclusionDelay(n int) LedgerOption {
	return func(l *Ledger) {
		l.inclusionPolls = n
	}
}

// WithClock overrides the block time source.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		l.now = now
	}
}

// NewLedger creates an empty ledger.
func NewLedger(opts ...LedgerOption) *Ledger {
	l := &Ledger{
		utxos:        map[string]tx.UTXO{},
		byAddress:    map[string][]string{},
		assets:       map[string]*Asset{},
		history:      map[string][]AssetEvent{},
		txs:          map[string]*Transaction{},
		pendingPolls: map[string]int{},
		slot:         100_000,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Fund creates a spendable output at address (genesis-style, no inputs).
func (l *Ledger) Fund(address string, lovelace uint64) (tx.UTXO, error) {
	raw, err := tx.DecodeAddress(address)
	if err != nil {
		return tx.UTXO{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	hash := tx.Blake2b256([]byte(fmt.Sprintf("fund:%s:%d", address, l.seq)))
	u := tx.UTXO{TxHash: hash.Hex(), Index: 0, Address: address, Lovelace: lovelace}
	l.addUTXO(hex.EncodeToString(raw), u)
	return u, nil
}

// PutAsset seeds an asset directly, bypassing transaction validation.
func (l *Ledger) PutAsset(a Asset) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := a
	l.assets[a.AssetID] = &cp
}

// SubmittedCount reports how many transactions were accepted.
func (l *Ledger) SubmittedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.txs) + len(l.pendingPolls)
}

func (l *Ledger) Asset(_ context.Context, assetID string) (*Asset, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.assets[assetID]
	if !ok {
		return nil, dErrors.NewReason(dErrors.CodeLedger, dErrors.ReasonNotFound, "asset not found on ledger")
	}
	cp := *a
	return &cp, nil
}

func (l *Ledger) AssetHistory(_ context.Context, assetID string) ([]AssetEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.history[assetID]
	if !ok {
		return nil, dErrors.NewReason(dErrors.CodeLedger, dErrors.ReasonNotFound, "asset not found on ledger")
	}
	return append([]AssetEvent(nil), h...), nil
}

func (l *Ledger) Transaction(_ context.Context, txHash string) (*Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if remaining, ok := l.pendingPolls[txHash]; ok {
		if remaining > 0 {
			l.pendingPolls[txHash] = remaining - 1
			return nil, dErrors.NewReason(dErrors.CodeLedger, dErrors.ReasonNotFound, "transaction not yet included")
		}
		delete(l.pendingPolls, txHash)
		l.includeLocked(txHash)
	}
	t, ok := l.txs[txHash]
	if !ok {
		return nil, dErrors.NewReason(dErrors.CodeLedger, dErrors.ReasonNotFound, "transaction not found")
	}
	cp := *t
	return &cp, nil
}

func (l *Ledger) UTXOs(_ context.Context, address string) ([]tx.UTXO, error) {
	raw, err := tx.DecodeAddress(address)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	refs := l.byAddress[hex.EncodeToString(raw)]
	out := make([]tx.UTXO, 0, len(refs))
	for _, ref := range refs {
		if u, ok := l.utxos[ref]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (l *Ledger) Tip(context.Context) (*Tip, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Tip{Slot: l.slot, Height: l.height, Time: l.now().UTC()}, nil
}

type ledgerOutput struct {
	_       struct{} `cbor:",toarray"`
	Address []byte
	Amount  cbor.RawMessage
}

type ledgerBody struct {
	Inputs  []tx.Input     `cbor:"0,keyasint"`
	Outputs []ledgerOutput `cbor:"1,keyasint"`
	Fee     uint64         `cbor:"2,keyasint"`
	TTL     uint64         `cbor:"3,keyasint,omitempty"`
	Mint    tx.MultiAsset  `cbor:"9,keyasint,omitempty"`
}

var metadataDecMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// Submit validates witnesses and inputs, then applies the transaction.
func (l *Ledger) Submit(_ context.Context, signedTx []byte) (string, error) {
	var parts []cbor.RawMessage
	if err := cbor.Unmarshal(signedTx, &parts); err != nil || len(parts) != 4 {
		return "", dErrors.NewReason(dErrors.CodeLedger, dErrors.ReasonRejected, "transaction is not a 4-element array")
	}
	hash := tx.Blake2b256(parts[0])

	var body ledgerBody
	if err := cbor.Unmarshal(parts[0], &body); err != nil {
		return "", dErrors.NewReason(dErrors.CodeLedger, dErrors.ReasonRejected, "malformed transaction body")
	}
	ws, err := tx.DecodeWitnessSet(parts[1])
	if err != nil {
		return "", dErrors.NewReason(dErrors.CodeLedger, dErrors.ReasonRejected, "malformed witness set")
	}
	if err := verifyScripts(hash, ws); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.txs[hash.Hex()]; dup {
		return "", dErrors.NewReason(dErrors.CodeLedger, dErrors.ReasonRejected, "transaction already applied")
	}
	var inTotal uint64
	for _, in := range body.Inputs {
		ref := refOf(hex.EncodeToString(in.TxHash), in.Index)
		u, ok := l.utxos[ref]
		if !ok {
			return "", dErrors.NewReason(dErrors.CodeLedger, dErrors.ReasonRejected, "input "+ref+" is spent or unknown")
		}
		inTotal += u.Lovelace
	}
	var outTotal uint64
	for _, o := range body.Outputs {
		coin, _, err := decodeAmount(o.Amount)
		if err != nil {
			return "", err
		}
		outTotal += coin
	}
	if inTotal != outTotal+body.Fee {
		return "", dErrors.NewReason(dErrors.CodeLedger, dErrors.ReasonRejected,
			fmt.Sprintf("value not conserved: in %d, out %d, fee %d", inTotal, outTotal, body.Fee))
	}

	for _, in := range body.Inputs {
		l.spendLocked(refOf(hex.EncodeToString(in.TxHash), in.Index))
	}
	for i, o := range body.Outputs {
		coin, assets, _ := decodeAmount(o.Amount) //nolint:errcheck // decoded above
		u := tx.UTXO{TxHash: hash.Hex(), Index: uint32(i), Address: hex.EncodeToString(o.Address), Lovelace: coin, Assets: assets}
		l.addUTXO(hex.EncodeToString(o.Address), u)
	}

	assetMeta := decodeAssetMetadata(parts[3])
	for pid, names := range body.Mint {
		policyHex := hex.EncodeToString([]byte(pid))
		for name, qty := range names {
			nameHex := hex.EncodeToString([]byte(name))
			unit := policyHex + nameHex
			a, ok := l.assets[unit]
			if !ok {
				a = &Asset{AssetID: unit, PolicyID: policyHex, AssetNameHex: nameHex, Quantity: "0", InitialMintTxHash: hash.Hex()}
				l.assets[unit] = a
			}
			current, _ := strconv.ParseUint(a.Quantity, 10, 64) //nolint:errcheck // always written by us
			a.Quantity = strconv.FormatUint(current+qty, 10)
			a.MintOrBurnCount++
			if m, ok := assetMeta[policyHex][string(name)]; ok {
				a.OnchainMetadata = m
			}
			l.history[unit] = append(l.history[unit], AssetEvent{TxHash: hash.Hex(), Action: ActionMinted, Amount: strconv.FormatUint(qty, 10)})
		}
	}

	if l.inclusionPolls > 0 {
		l.pendingPolls[hash.Hex()] = l.inclusionPolls
	} else {
		l.includeLocked(hash.Hex())
	}
	return hash.Hex(), nil
}

func (l *Ledger) includeLocked(hash string) {
	l.slot += 20
	l.height++
	l.txs[hash] = &Transaction{
		Hash:      hash,
		Block:     tx.Blake2b256([]byte(hash + strconv.FormatUint(l.height, 10))).Hex(),
		Height:    l.height,
		Slot:      l.slot,
		BlockTime: l.now().UTC().Truncate(time.Second),
	}
}

func (l *Ledger) addUTXO(addrKey string, u tx.UTXO) {
	ref := refOf(u.TxHash, u.Index)
	l.utxos[ref] = u
	l.byAddress[addrKey] = append(l.byAddress[addrKey], ref)
}

func (l *Ledger) spendLocked(ref string) {
	u, ok := l.utxos[ref]
	if !ok {
		return
	}
	delete(l.utxos, ref)
	raw, err := tx.DecodeAddress(u.Address)
	if err != nil {
		return
	}
	key := hex.EncodeToString(raw)
	refs := l.byAddress[key]
	for i, r := range refs {
		if r == ref {
			l.byAddress[key] = append(refs[:i], refs[i+1:]...)
			break
		}
	}
}

func refOf(hash string, index uint32) string {
	return hash + "#" + strconv.FormatUint(uint64(index), 10)
}

// verifyScripts requires every native script to be satisfied by a valid key witness.
func verifyScripts(hash tx.Hash32, ws tx.WitnessSet) error {
	signed := map[tx.KeyHash]bool{}
	for _, w := range ws.VKeys {
		if len(w.VKey) != ed25519.PublicKeySize || !ed25519.Verify(w.VKey, hash[:], w.Signature) {
			return dErrors.NewReason(dErrors.CodeLedger, dErrors.ReasonRejected, "invalid key witness signature")
		}
		signed[tx.HashKey(w.VKey)] = true
	}
	for _, s := range ws.Scripts {
		var kh tx.KeyHash
		copy(kh[:], s.KeyHash)
		if s.Type != 0 || !signed[kh] {
			return dErrors.NewReason(dErrors.CodeLedger, dErrors.ReasonRejected, "minting policy script not satisfied")
		}
	}
	return nil
}

func decodeAmount(raw cbor.RawMessage) (uint64, map[string]uint64, error) {
	var coin uint64
	if err := cbor.Unmarshal(raw, &coin); err == nil {
		return coin, nil, nil
	}
	var v tx.Value
	if err := cbor.Unmarshal(raw, &v); err != nil {
		return 0, nil, dErrors.NewReason(dErrors.CodeLedger, dErrors.ReasonRejected, "malformed output value")
	}
	assets := map[string]uint64{}
	for pid, names := range v.Assets {
		for name, qty := range names {
			assets[hex.EncodeToString([]byte(pid))+hex.EncodeToString([]byte(name))] = qty
		}
	}
	return v.Coin, assets, nil
}

// decodeAssetMetadata extracts label-721 objects as policy hex -> asset name -> fields.
func decodeAssetMetadata(raw cbor.RawMessage) map[string]map[string]map[string]any {
	out := map[string]map[string]map[string]any{}
	var aux map[uint64]map[string]cbor.RawMessage
	if err := cbor.Unmarshal(raw, &aux); err != nil {
		return out
	}
	for key, policyRaw := range aux[metadata.Label] {
		if key == "version" {
			continue
		}
		var assets map[string]map[string]any
		if err := metadataDecMode.Unmarshal(policyRaw, &assets); err != nil {
			continue
		}
		out[key] = assets
	}
	return out
}
