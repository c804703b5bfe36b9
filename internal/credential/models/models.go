// Package models defines the off-chain credential record.
package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"certledger/internal/ledger/metadata"
	dErrors "certledger/pkg/domain-errors"
)

// Status is the off-chain lifecycle state. Only an explicit revoke changes it.
type Status string

const (
	StatusIssued  Status = "issued"
	StatusRevoked Status = "revoked"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	return s == StatusIssued || s == StatusRevoked
}

// MintState tracks how far the ledger anchoring of a record has progressed.
type MintState string

const (
	MintNone      MintState = ""
	MintPending   MintState = "pending"
	MintConfirmed MintState = "confirmed"
)

var codePattern = regexp.MustCompile(`^[A-Z]{2,10}-[0-9]{4}-[A-Z0-9]{3,16}$`)

// ParseCode normalizes a human-entered credential code to upper case and
// reports whether it has the structured code shape (e.g. UNI-2024-AB12CD).
func ParseCode(s string) (string, bool) {
	code := strings.ToUpper(strings.TrimSpace(s))
	return code, codePattern.MatchString(code)
}

// Credential is the authoritative off-chain record of one issued credential.
type Credential struct {
	ID       uuid.UUID           `json:"id"`
	Code     string              `json:"credentialCode"`
	Metadata metadata.Credential `json:"metadata"`
	Status   Status              `json:"status"`

	RecipientAddress string     `json:"recipientAddress,omitempty"`
	PolicyID         string     `json:"policyId,omitempty"`
	AssetID          string     `json:"assetId,omitempty"`
	TxHash           string     `json:"txHash,omitempty"`
	MintState        MintState  `json:"mintState,omitempty"`
	MintedAt         *time.Time `json:"mintedAt,omitempty"`

	RevokedAt        *time.Time `json:"revokedAt,omitempty"`
	RevocationReason string     `json:"revocationReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewCredential creates an issued record. The code must already be normalized.
func NewCredential(code string, md metadata.Credential, recipient string, now time.Time) (*Credential, error) {
	if _, ok := ParseCode(code); !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "credential code "+code+" does not match the code format")
	}
	md.Code = code
	return &Credential{
		ID:               uuid.New(),
		Code:             code,
		Metadata:         md,
		Status:           StatusIssued,
		RecipientAddress: recipient,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// IsRevoked reports whether the record has been revoked.
func (c *Credential) IsRevoked() bool {
	return c.Status == StatusRevoked
}

// Minted reports whether a mint transaction was broadcast for this record.
func (c *Credential) Minted() bool {
	return c.AssetID != "" && c.MintState != MintNone
}

// CanMint returns an error when the record must not be anchored again.
func (c *Credential) CanMint() error {
	if c.IsRevoked() {
		return dErrors.New(dErrors.CodeValidation, "credential "+c.Code+" is revoked")
	}
	switch c.MintState {
	case MintConfirmed:
		return dErrors.New(dErrors.CodeDuplicate, "credential "+c.Code+" is already anchored as "+c.AssetID)
	case MintPending:
		return dErrors.New(dErrors.CodePending, "credential "+c.Code+" has a mint awaiting confirmation in "+c.TxHash)
	}
	return nil
}

// AttachMint records the ledger identifiers of a broadcast mint.
func (c *Credential) AttachMint(policyID, assetID, txHash string, mintedAt *time.Time, now time.Time) {
	c.PolicyID = policyID
	c.AssetID = assetID
	c.TxHash = txHash
	c.MintState = MintPending
	if mintedAt != nil {
		t := *mintedAt
		c.MintedAt = &t
		c.MintState = MintConfirmed
	}
	c.UpdatedAt = now
}

// Revoke marks the record revoked. Revoking twice keeps the first timestamp.
func (c *Credential) Revoke(reason string, now time.Time) {
	if c.IsRevoked() {
		return
	}
	c.Status = StatusRevoked
	c.RevokedAt = &now
	c.RevocationReason = reason
	c.UpdatedAt = now
}
