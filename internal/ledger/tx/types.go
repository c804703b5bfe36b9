// Package tx holds the ledger primitives the minting pipeline needs: key and
// transaction hashes, unspent outputs, native scripts and a single-purpose
// mint transaction builder. It is not a general transaction library.
package tx

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"

	dErrors "certledger/pkg/domain-errors"
)

// KeyHash is the 28-byte blake2b-224 hash of a verification key.
type KeyHash [28]byte

// Hex returns the lowercase hex form.
func (k KeyHash) Hex() string {
	return hex.EncodeToString(k[:])
}

// IsZero reports whether the hash is unset.
func (k KeyHash) IsZero() bool {
	return k == KeyHash{}
}

// ParseKeyHash decodes a 56-character hex key hash.
func ParseKeyHash(s string) (KeyHash, error) {
	var k KeyHash
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(k) {
		return k, dErrors.New(dErrors.CodeValidation, "key hash must be 56 hex characters")
	}
	copy(k[:], raw)
	return k, nil
}

// HashKey derives the key hash of a verification key.
func HashKey(vkey []byte) KeyHash {
	return KeyHash(Blake2b224(vkey))
}

// Hash32 is a blake2b-256 digest (transaction ids, auxiliary data hashes).
type Hash32 [32]byte

// Hex returns the lowercase hex form.
func (h Hash32) Hex() string {
	return hex.EncodeToString(h[:])
}

// ParseHash32 decodes a 64-character hex hash.
func ParseHash32(s string) (Hash32, error) {
	var h Hash32
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(h) {
		return h, dErrors.New(dErrors.CodeValidation, "hash must be 64 hex characters")
	}
	copy(h[:], raw)
	return h, nil
}

// Blake2b224 hashes data to 28 bytes.
func Blake2b224(data []byte) [28]byte {
	var out [28]byte
	h, _ := blake2b.New(28, nil) //nolint:errcheck // fixed valid size, nil key
	h.Write(data)
	copy(out[:], h.Sum(nil))
	return out
}

// Blake2b256 hashes data to 32 bytes.
func Blake2b256(data []byte) Hash32 {
	return Hash32(blake2b.Sum256(data))
}

// UTXO is an unspent output as reported by an indexer or wallet.
type UTXO struct {
	TxHash   string            `json:"tx_hash"`
	Index    uint32            `json:"output_index"`
	Address  string            `json:"address"`
	Lovelace uint64            `json:"lovelace"`
	Assets   map[string]uint64 `json:"assets,omitempty"` // unit (policy hex + name hex) -> quantity
}

// TotalLovelace sums the ada value of utxos.
func TotalLovelace(utxos []UTXO) uint64 {
	var total uint64
	for _, u := range utxos {
		total += u.Lovelace
	}
	return total
}

// NativeScript is the single-signature script form: [0, keyhash].
type NativeScript struct {
	_       struct{} `cbor:",toarray"`
	Type    uint64
	KeyHash []byte
}

// NewPubKeyScript returns the script that requires a signature from keyHash.
func NewPubKeyScript(keyHash KeyHash) NativeScript {
	return NativeScript{Type: 0, KeyHash: append([]byte(nil), keyHash[:]...)}
}

// CBOR returns the canonical encoding of the script.
func (s NativeScript) CBOR() ([]byte, error) {
	return encMode.Marshal(s)
}

// PolicyID hashes the script with its native-script tag byte.
func (s NativeScript) PolicyID() (string, error) {
	raw, err := s.CBOR()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeEncoding, "encode native script")
	}
	id := Blake2b224(append([]byte{0x00}, raw...))
	return hex.EncodeToString(id[:]), nil
}

// DecodeAddress returns the raw bytes of a bech32 address. Hex-encoded raw
// addresses are accepted too.
func DecodeAddress(addr string) ([]byte, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "address is required")
	}
	if raw, err := hex.DecodeString(addr); err == nil && len(raw) > 0 {
		return raw, nil
	}
	hrp, data, err := bech32.DecodeNoLimit(addr)
	if err != nil {
		return nil, dErrors.WrapReason(err, dErrors.CodeValidation, dErrors.ReasonNone, "address is not valid bech32")
	}
	if !strings.HasPrefix(hrp, "addr") {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unexpected address prefix %q", hrp))
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, dErrors.WrapReason(err, dErrors.CodeValidation, dErrors.ReasonNone, "address payload is malformed")
	}
	return raw, nil
}

// EncodeAddress renders raw address bytes as bech32 under hrp.
func EncodeAddress(hrp string, raw []byte) (string, error) {
	conv, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(hrp, conv)
}

// encMode produces canonical (core deterministic) CBOR so hashes are stable.
var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()
