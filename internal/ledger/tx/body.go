package tx

import (
	"encoding/hex"

	"github.com/fxamacker/cbor/v2"

	dErrors "certledger/pkg/domain-errors"
)

// MultiAsset maps policy id bytes to asset name bytes to quantity.
type MultiAsset map[cbor.ByteString]map[cbor.ByteString]uint64

// Input references a previous output.
type Input struct {
	_      struct{} `cbor:",toarray"`
	TxHash []byte
	Index  uint32
}

// Value is a coin amount with native assets, encoded as [coin, multiasset].
type Value struct {
	_      struct{} `cbor:",toarray"`
	Coin   uint64
	Assets MultiAsset
}

// Output pays Amount (a uint64 coin or a Value) to Address.
type Output struct {
	_       struct{} `cbor:",toarray"`
	Address []byte
	Amount  any
}

// Body is the subset of transaction body fields a mint transaction uses.
type Body struct {
	Inputs      []Input    `cbor:"0,keyasint"`
	Outputs     []Output   `cbor:"1,keyasint"`
	Fee         uint64     `cbor:"2,keyasint"`
	TTL         uint64     `cbor:"3,keyasint,omitempty"`
	AuxDataHash []byte     `cbor:"7,keyasint,omitempty"`
	Mint        MultiAsset `cbor:"9,keyasint,omitempty"`
}

// VKeyWitness is an ed25519 verification key and signature over the body hash.
type VKeyWitness struct {
	_         struct{} `cbor:",toarray"`
	VKey      []byte
	Signature []byte
}

// WitnessSet carries key witnesses and the native scripts being satisfied.
type WitnessSet struct {
	VKeys   []VKeyWitness  `cbor:"0,keyasint,omitempty"`
	Scripts []NativeScript `cbor:"1,keyasint,omitempty"`
}

// Transaction is [body, witnesses, isValid, auxiliaryData].
type Transaction struct {
	_         struct{} `cbor:",toarray"`
	Body      Body
	Witnesses WitnessSet
	IsValid   bool
	AuxData   any
}

// DecodeWitnessSet parses a CBOR witness set returned by a wallet.
func DecodeWitnessSet(raw []byte) (WitnessSet, error) {
	var ws WitnessSet
	if err := cbor.Unmarshal(raw, &ws); err != nil {
		return ws, dErrors.Wrap(err, dErrors.CodeEncoding, "decode witness set")
	}
	return ws, nil
}

// EncodeWitnessSet renders a witness set as CBOR.
func EncodeWitnessSet(ws WitnessSet) ([]byte, error) {
	return encMode.Marshal(ws)
}

func mintOne(policyID string, name []byte) (MultiAsset, error) {
	pid, err := hex.DecodeString(policyID)
	if err != nil || len(pid) != 28 {
		return nil, dErrors.New(dErrors.CodeValidation, "policy id must be 56 hex characters")
	}
	return MultiAsset{
		cbor.ByteString(pid): {cbor.ByteString(name): 1},
	}, nil
}

// unitsToMultiAsset converts indexer units (policy hex + name hex) to a MultiAsset.
func unitsToMultiAsset(units map[string]uint64) (MultiAsset, error) {
	if len(units) == 0 {
		return nil, nil
	}
	out := MultiAsset{}
	for unit, qty := range units {
		if len(unit) < 56 {
			return nil, dErrors.New(dErrors.CodeValidation, "asset unit is shorter than a policy id")
		}
		pid, err := hex.DecodeString(unit[:56])
		if err != nil {
			return nil, dErrors.New(dErrors.CodeValidation, "asset unit policy part is not hex")
		}
		name, err := hex.DecodeString(unit[56:])
		if err != nil {
			return nil, dErrors.New(dErrors.CodeValidation, "asset unit name part is not hex")
		}
		key := cbor.ByteString(pid)
		if out[key] == nil {
			out[key] = map[cbor.ByteString]uint64{}
		}
		out[key][cbor.ByteString(name)] += qty
	}
	return out, nil
}

func mergeAssets(dst, src MultiAsset) MultiAsset {
	if dst == nil {
		dst = MultiAsset{}
	}
	for pid, names := range src {
		if dst[pid] == nil {
			dst[pid] = map[cbor.ByteString]uint64{}
		}
		for name, qty := range names {
			dst[pid][name] += qty
		}
	}
	return dst
}
