// Package assetname derives the on-ledger token name for a credential.
//
// Names are deterministic per (subject, time bucket): the normalized subject
// identifier followed by a base-36 bucket number and a short hash of the raw
// subject and bucket. The ledger caps names at 32 bytes.
package assetname

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	dErrors "certledger/pkg/domain-errors"
)

// MaxBytes is the ledger limit on asset name length.
const MaxBytes = 32

// PolicyIDHexLen is the hex length of a 28-byte policy hash.
const PolicyIDHexLen = 56

const hashSuffixLen = 4

// Name is a validated asset name.
type Name string

// Hex returns the hex encoding used in asset ids.
func (n Name) Hex() string {
	return hex.EncodeToString([]byte(n))
}

func (n Name) String() string {
	return string(n)
}

// Deriver derives names with a fixed class prefix and bucket width.
type Deriver struct {
	prefix          string
	bucket          time.Duration
	maxSubjectChars int
}

// Option configures a Deriver.
type Option func(*Deriver)

// WithPrefix sets the credential class prefix (default "D").
func WithPrefix(prefix string) Option {
	return func(d *Deriver) {
		d.prefix = prefix
	}
}

// WithBucket sets the timestamp coarsening width (default 10 minutes).
// Widths under one second are ignored.
func WithBucket(width time.Duration) Option {
	return func(d *Deriver) {
		if width >= time.Second {
			d.bucket = width
		}
	}
}

// WithMaxSubjectChars sets how many normalized subject characters are kept (default 16).
func WithMaxSubjectChars(n int) Option {
	return func(d *Deriver) {
		if n > 0 {
			d.maxSubjectChars = n
		}
	}
}

// NewDeriver creates a Deriver.
func NewDeriver(opts ...Option) *Deriver {
	d := &Deriver{
		prefix:          "D",
		bucket:          10 * time.Minute,
		maxSubjectChars: 16,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Derive returns the asset name for subjectID at time t. The same subject in
// the same bucket always yields the same name.
func (d *Deriver) Derive(subjectID string, t time.Time) (Name, error) {
	normalized := normalize(subjectID)
	if normalized == "" {
		return "", dErrors.New(dErrors.CodeValidation, "subject identifier has no alphanumeric characters")
	}
	if len(normalized) > d.maxSubjectChars {
		normalized = normalized[:d.maxSubjectChars]
	}

	bucket := d.bucketOf(t)
	name := d.prefix + normalized + strings.ToUpper(strconv.FormatUint(bucket, 36)) + shortHash(subjectID, bucket)
	if err := Validate(name); err != nil {
		return "", err
	}
	return Name(name), nil
}

func (d *Deriver) bucketOf(t time.Time) uint64 {
	secs := t.Unix()
	if secs < 0 {
		secs = 0
	}
	return uint64(secs) / uint64(d.bucket/time.Second)
}

// Validate checks a caller-supplied or derived name against the ledger limit.
func Validate(name string) error {
	if name == "" {
		return dErrors.New(dErrors.CodeValidation, "asset name is required")
	}
	if len(name) > MaxBytes {
		return dErrors.NewReason(dErrors.CodeEncoding, dErrors.ReasonAssetNameTooLong,
			fmt.Sprintf("asset name is %d bytes, limit is %d", len(name), MaxBytes))
	}
	return nil
}

// AssetID joins a policy id and name into the concatenated hex asset id.
func AssetID(policyID string, name Name) string {
	return policyID + name.Hex()
}

// SplitAssetID accepts "<policy hex><name hex>" or "<policy hex>.<name>".
func SplitAssetID(assetID string) (policyID string, name Name, err error) {
	assetID = strings.TrimSpace(assetID)
	if policy, rawName, ok := strings.Cut(assetID, "."); ok {
		if !isHex(policy, PolicyIDHexLen) {
			return "", "", dErrors.New(dErrors.CodeValidation, "asset id has an invalid policy id")
		}
		if err := Validate(rawName); err != nil {
			return "", "", asInput(err)
		}
		return strings.ToLower(policy), Name(rawName), nil
	}
	if len(assetID) <= PolicyIDHexLen || !isHex(assetID[:PolicyIDHexLen], PolicyIDHexLen) {
		return "", "", dErrors.New(dErrors.CodeValidation, "asset id must start with a 56-character policy id")
	}
	raw, decodeErr := hex.DecodeString(assetID[PolicyIDHexLen:])
	if decodeErr != nil {
		return "", "", dErrors.New(dErrors.CodeValidation, "asset id name part is not hex")
	}
	if err := Validate(string(raw)); err != nil {
		return "", "", asInput(err)
	}
	return strings.ToLower(assetID[:PolicyIDHexLen]), Name(raw), nil
}

// asInput reports a name that breaks the ledger limit as bad caller input.
func asInput(err error) error {
	if !dErrors.HasCode(err, dErrors.CodeEncoding) {
		return err
	}
	return &dErrors.Error{Code: dErrors.CodeValidation, Reason: dErrors.ReasonOf(err), Message: "invalid asset name", Err: err}
}

func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
			b.WriteByte(c - 'a' + 'A')
		case (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9'):
			b.WriteByte(c)
		}
	}
	return b.String()
}

func shortHash(subjectID string, bucket uint64) string {
	h, _ := blake2b.New256(nil) //nolint:errcheck // nil key never errors
	h.Write([]byte(subjectID))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], bucket)
	h.Write(buf[:])
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil))[:hashSuffixLen])
}

func isHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
