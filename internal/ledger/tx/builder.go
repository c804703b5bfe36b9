package tx

import (
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"

	dErrors "certledger/pkg/domain-errors"
)

// Params are the protocol parameters the builder needs.
type Params struct {
	MinUTxO  uint64 // lovelace accompanying each output
	FeeA     uint64 // per-byte fee coefficient
	FeeB     uint64 // constant fee
	TTLSlots uint64 // validity window added to the current slot
}

// DefaultParams mirrors current mainnet values closely enough for estimation.
func DefaultParams() Params {
	return Params{
		MinUTxO:  1_500_000,
		FeeA:     44,
		FeeB:     155_381,
		TTLSlots: 7200,
	}
}

// MintSpec describes a single-unit mint paid to Recipient.
type MintSpec struct {
	Available     []UTXO
	ChangeAddress string
	Recipient     string
	Script        NativeScript
	PolicyID      string
	AssetName     []byte
	AuxData       any // encoded as transaction auxiliary data (metadata map)
	CurrentSlot   uint64
}

// Unsigned is a built mint transaction awaiting witnesses.
type Unsigned struct {
	Body     Body
	BodyCBOR []byte
	Hash     Hash32
	Script   NativeScript
	AuxData  any
	Fee      uint64
	Inputs   []UTXO
}

// CBOR encodes the transaction without key witnesses (wallets sign this form).
func (u *Unsigned) CBOR() ([]byte, error) {
	return encMode.Marshal(Transaction{
		Body:      u.Body,
		Witnesses: WitnessSet{Scripts: []NativeScript{u.Script}},
		IsValid:   true,
		AuxData:   u.AuxData,
	})
}

// Assemble attaches key witnesses and returns the signed transaction bytes.
func (u *Unsigned) Assemble(witnesses []VKeyWitness) ([]byte, error) {
	if len(witnesses) == 0 {
		return nil, dErrors.New(dErrors.CodeWallet, "no key witnesses supplied")
	}
	raw, err := encMode.Marshal(Transaction{
		Body:      u.Body,
		Witnesses: WitnessSet{VKeys: witnesses, Scripts: []NativeScript{u.Script}},
		IsValid:   true,
		AuxData:   u.AuxData,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncoding, "encode signed transaction")
	}
	return raw, nil
}

// placeholder witness used for fee estimation: 32-byte key, 64-byte signature.
var placeholderWitness = VKeyWitness{VKey: make([]byte, 32), Signature: make([]byte, 64)}

const maxFeeIterations = 6

// BuildMint selects inputs largest-first and builds the mint body with a
// change output. It returns NoUTXO when nothing is spendable and
// InsufficientFunds when the available value cannot cover outputs and fee.
func BuildMint(p Params, spec MintSpec) (*Unsigned, error) {
	if len(spec.Available) == 0 {
		return nil, dErrors.NewReason(dErrors.CodeWallet, dErrors.ReasonNoUTXO, "wallet has no spendable outputs")
	}
	recipient, err := DecodeAddress(spec.Recipient)
	if err != nil {
		return nil, err
	}
	change, err := DecodeAddress(spec.ChangeAddress)
	if err != nil {
		return nil, err
	}
	mint, err := mintOne(spec.PolicyID, spec.AssetName)
	if err != nil {
		return nil, err
	}

	// auxiliary data is encoded once so the body hash and the transaction agree
	var auxHash []byte
	var auxRaw any
	if spec.AuxData != nil {
		raw, err := encMode.Marshal(spec.AuxData)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeEncoding, "encode metadata")
		}
		h := Blake2b256(raw)
		auxHash = h[:]
		auxRaw = cbor.RawMessage(raw)
	}

	utxos := append([]UTXO(nil), spec.Available...)
	sort.SliceStable(utxos, func(i, j int) bool { return utxos[i].Lovelace > utxos[j].Lovelace })

	var ttl uint64
	if spec.CurrentSlot > 0 {
		ttl = spec.CurrentSlot + p.TTLSlots
	}

	fee := p.FeeB
	selected := 0
	for iteration := 0; ; {
		if selected < len(utxos) && TotalLovelace(utxos[:selected]) < p.MinUTxO+fee+p.MinUTxO {
			selected++
			continue
		}

		body, err := assembleBody(p, utxos[:selected], recipient, change, mint, fee, ttl, auxHash)
		if err != nil {
			if dErrors.HasReason(err, dErrors.CodeWallet, dErrors.ReasonInsufficientFunds) && selected < len(utxos) {
				selected++
				continue
			}
			return nil, err
		}

		u := &Unsigned{Body: body, Script: spec.Script, AuxData: auxRaw, Fee: body.Fee, Inputs: utxos[:selected]}
		estimated, err := estimateFee(p, u)
		if err != nil {
			return nil, err
		}
		if estimated <= fee {
			u.BodyCBOR, err = encMode.Marshal(u.Body)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeEncoding, "encode transaction body")
			}
			u.Hash = Blake2b256(u.BodyCBOR)
			return u, nil
		}
		fee = estimated
		iteration++
		if iteration > maxFeeIterations {
			return nil, dErrors.New(dErrors.CodeInternal, "fee estimation did not converge")
		}
	}
}

func assembleBody(p Params, inputs []UTXO, recipient, change []byte, mint MultiAsset, fee, ttl uint64, auxHash []byte) (Body, error) {
	var carried MultiAsset
	ins := make([]Input, 0, len(inputs))
	for _, u := range inputs {
		h, err := hex.DecodeString(u.TxHash)
		if err != nil || len(h) != 32 {
			return Body{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("utxo %s#%d has a malformed hash", u.TxHash, u.Index))
		}
		ins = append(ins, Input{TxHash: h, Index: u.Index})
		assets, err := unitsToMultiAsset(u.Assets)
		if err != nil {
			return Body{}, err
		}
		if assets != nil {
			carried = mergeAssets(carried, assets)
		}
	}

	total := TotalLovelace(inputs)
	need := p.MinUTxO + fee
	if total < need {
		return Body{}, dErrors.NewReason(dErrors.CodeWallet, dErrors.ReasonInsufficientFunds,
			fmt.Sprintf("wallet holds %d lovelace, mint needs %d", total, need))
	}
	leftover := total - need

	outputs := []Output{{Address: recipient, Amount: Value{Coin: p.MinUTxO, Assets: mint}}}
	switch {
	case leftover >= p.MinUTxO:
		var amount any = leftover
		if len(carried) > 0 {
			amount = Value{Coin: leftover, Assets: carried}
		}
		outputs = append(outputs, Output{Address: change, Amount: amount})
	case len(carried) > 0:
		return Body{}, dErrors.NewReason(dErrors.CodeWallet, dErrors.ReasonInsufficientFunds,
			"not enough lovelace to return native assets as change")
	default:
		// dust below the minimum output value goes to the fee
		fee += leftover
	}

	return Body{
		Inputs:      ins,
		Outputs:     outputs,
		Fee:         fee,
		TTL:         ttl,
		AuxDataHash: auxHash,
		Mint:        mint,
	}, nil
}

func estimateFee(p Params, u *Unsigned) (uint64, error) {
	raw, err := u.Assemble([]VKeyWitness{placeholderWitness})
	if err != nil {
		return 0, err
	}
	return p.FeeA*uint64(len(raw)) + p.FeeB, nil
}
