package metadata

import (
	"encoding/hex"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	dErrors "certledger/pkg/domain-errors"
)

const ipfsScheme = "ipfs://"

// ValidateImageURI accepts ipfs://<cid>[/path] and https:// URIs.
// The CID must parse; the core never dereferences it.
func ValidateImageURI(uri string) error {
	switch {
	case strings.HasPrefix(uri, ipfsScheme):
		ref := strings.TrimPrefix(uri, ipfsScheme)
		if i := strings.IndexByte(ref, '/'); i >= 0 {
			ref = ref[:i]
		}
		if _, err := cid.Decode(ref); err != nil {
			return dErrors.WrapReason(err, dErrors.CodeValidation, dErrors.ReasonNone, "image uri carries an invalid content identifier")
		}
		return nil
	case strings.HasPrefix(uri, "https://"):
		return nil
	default:
		return dErrors.New(dErrors.CodeValidation, "image uri must use ipfs:// or https://")
	}
}

// DocumentCID returns the CIDv1 (raw codec, sha2-256) of a credential document.
func DocumentCID(data []byte) (string, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "hash document")
	}
	return cid.NewCidV1(cid.Raw, sum).String(), nil
}

// ValidateDocumentHash accepts a CID or a 64-character hex sha2-256 digest.
func ValidateDocumentHash(h string) error {
	if len(h) == 64 {
		if _, err := hex.DecodeString(h); err == nil {
			return nil
		}
	}
	if _, err := cid.Decode(h); err == nil {
		return nil
	}
	return dErrors.New(dErrors.CodeValidation, "document hash must be a CID or hex sha-256 digest")
}

// SameDocumentHash compares two document hashes, treating a hex digest and a
// raw sha2-256 CID over the same bytes as equal.
func SameDocumentHash(a, b string) bool {
	if a == b {
		return true
	}
	da, okA := digestOf(a)
	db, okB := digestOf(b)
	return okA && okB && da == db
}

func digestOf(h string) (string, bool) {
	if len(h) == 64 {
		if _, err := hex.DecodeString(h); err == nil {
			return strings.ToLower(h), true
		}
	}
	c, err := cid.Decode(h)
	if err != nil {
		return "", false
	}
	decoded, err := multihash.Decode(c.Hash())
	if err != nil || decoded.Code != multihash.SHA2_256 {
		return "", false
	}
	return hex.EncodeToString(decoded.Digest), true
}
