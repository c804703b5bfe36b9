package mint

import (
	"strings"
	"time"

	"certledger/internal/ledger/metadata"
	"certledger/internal/ledger/tx"
	dErrors "certledger/pkg/domain-errors"
)

// Request asks for one credential token.
type Request struct {
	// RecipientAddress receives the token; defaults to the signer's own address.
	RecipientAddress string              `json:"recipientAddress,omitempty"`
	Metadata         metadata.Credential `json:"metadata"`
	// PolicyID, when set, must match the policy derived from the signer's key.
	PolicyID string `json:"policyId,omitempty"`
	// AssetName overrides the derived name. It must fit the 32-byte limit.
	AssetName string `json:"assetName,omitempty"`
	// NameSeed, when set, replaces the subject number as the name derivation input.
	NameSeed string `json:"-"`
}

// SubjectID is the identifier asset names are derived from.
func (r Request) SubjectID() string {
	if s := strings.TrimSpace(r.NameSeed); s != "" {
		return s
	}
	if s := strings.TrimSpace(r.Metadata.SubjectNumber); s != "" {
		return s
	}
	return strings.TrimSpace(r.Metadata.Code)
}

func (r Request) validate() error {
	switch {
	case strings.TrimSpace(r.Metadata.SubjectName) == "":
		return dErrors.New(dErrors.CodeValidation, "metadata.studentName is required")
	case strings.TrimSpace(r.Metadata.Program) == "" && strings.TrimSpace(r.Metadata.Degree) == "":
		return dErrors.New(dErrors.CodeValidation, "metadata.program or metadata.degree is required")
	case r.AssetName == "" && r.SubjectID() == "":
		return dErrors.New(dErrors.CodeValidation, "metadata.studentNumber or metadata.credentialCode is required to name the asset")
	}
	return nil
}

// Result is the immutable outcome of one mint run.
//
// On success TxHash, AssetID and PolicyID are set. On failure ErrorKind and
// Stage (the stage that failed) are set; a pending result also carries TxHash,
// since the transaction was broadcast.
type Result struct {
	Success     bool           `json:"success"`
	TxHash      string         `json:"txHash,omitempty"`
	AssetID     string         `json:"assetId,omitempty"`
	AssetName   string         `json:"assetName,omitempty"`
	PolicyID    string         `json:"policyId,omitempty"`
	MintedAt    *time.Time     `json:"mintedAt,omitempty"`
	Stage       Stage          `json:"stage,omitempty"`
	ErrorKind   dErrors.Code   `json:"errorKind,omitempty"`
	ErrorReason dErrors.Reason `json:"errorReason,omitempty"`
	Error       string         `json:"error,omitempty"`
	Retryable   bool           `json:"retryable,omitempty"`

	Err error `json:"-"`
}

// Pending reports whether the transaction was broadcast but not yet seen on the ledger.
func (r Result) Pending() bool {
	return r.ErrorKind == dErrors.CodePending
}

// Config tunes the pipeline.
type Config struct {
	Params              tx.Params
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration
	BatchDelay          time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Params:              tx.DefaultParams(),
		ConfirmTimeout:      3 * time.Minute,
		ConfirmPollInterval: 5 * time.Second,
		BatchDelay:          2 * time.Second,
	}
}
