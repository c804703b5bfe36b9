package verify

import (
	"time"

	"certledger/internal/credential/models"
	"certledger/internal/ledger/metadata"
	dErrors "certledger/pkg/domain-errors"
)

// Source names which sources of truth backed a verification result. On a
// failed result it names the path that was taken, not a source that answered:
// a query that is not a credential code is routed to the ledger path and
// reports SourceLedger with a validation ErrorKind even though the ledger was
// never consulted. Read ErrorKind first, and Blockchain for ledger evidence.
type Source string

const (
	SourceLedger Source = "ledger"
	SourceRecord Source = "record"
	SourceBoth   Source = "both"
)

// Result is the merged outcome of one verification query.
type Result struct {
	Valid      bool           `json:"valid"`
	Source     Source         `json:"source"`
	Document   *Document      `json:"document,omitempty"`
	Blockchain *Blockchain    `json:"blockchain,omitempty"`
	Conflict   *Conflict      `json:"conflict,omitempty"`
	Error      string         `json:"error,omitempty"`
	ErrorKind  dErrors.Code   `json:"errorKind,omitempty"`
	Reason     dErrors.Reason `json:"-"`
}

// Document is the credential snapshot shown to the verifier. Record fields
// take precedence over on-chain metadata when both are known.
type Document struct {
	metadata.Credential
	Status    models.Status `json:"status,omitempty"`
	RevokedAt *time.Time    `json:"revokedAt,omitempty"`
	IPFSURL   string        `json:"ipfsUrl,omitempty"`
	TxHash    string        `json:"txHash,omitempty"`
	AssetID   string        `json:"assetId,omitempty"`
	PolicyID  string        `json:"policyId,omitempty"`
}

// Blockchain is the ledger corroboration of a credential.
type Blockchain struct {
	Verified bool       `json:"verified"`
	TxHash   string     `json:"txHash,omitempty"`
	MintedAt *time.Time `json:"mintedAt,omitempty"`
	PolicyID string     `json:"policyId,omitempty"`
}

// Conflict carries what each source reported when they disagree.
type Conflict struct {
	Reasons []ConflictReason `json:"reasons"`
	Record  *Observation     `json:"record"`
	Ledger  *Observation     `json:"ledger"`
}

// ConflictReason names one disagreement between the sources.
type ConflictReason string

const (
	ConflictAssetMissing   ConflictReason = "asset_missing"
	ConflictCodeMismatch   ConflictReason = "code_mismatch"
	ConflictHashMismatch   ConflictReason = "document_hash_mismatch"
	ConflictAssetMismatch  ConflictReason = "asset_mismatch"
	ConflictPolicyMismatch ConflictReason = "policy_mismatch"
)

// Observation is one source's view of the credential.
type Observation struct {
	Exists       bool   `json:"exists"`
	Code         string `json:"credentialCode,omitempty"`
	DocumentHash string `json:"documentHash,omitempty"`
	AssetID      string `json:"assetId,omitempty"`
	PolicyID     string `json:"policyId,omitempty"`
	TxHash       string `json:"txHash,omitempty"`
	Status       string `json:"status,omitempty"`
}

func failed(source Source, err error) Result {
	derr := dErrors.Classify(err)
	return Result{
		Valid:     false,
		Source:    source,
		Error:     derr.Message,
		ErrorKind: derr.Code,
		Reason:    derr.Reason,
	}
}
