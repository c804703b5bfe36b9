package testutil

import (
	"fmt"
	"time"

	"certledger/internal/credential/models"
	"certledger/internal/ledger/metadata"
)

// TestCodes are well-formed credential codes for deterministic test data.
var TestCodes = struct {
	Code1 string
	Code2 string
	Code3 string
}{
	Code1: "UNI-2024-AAA111",
	Code2: "UNI-2024-BBB222",
	Code3: "UNI-2024-CCC333",
}

// CredentialBuilder provides a fluent interface for building test records.
type CredentialBuilder struct {
	code      string
	md        metadata.Credential
	recipient string
	createdAt time.Time

	mint *mintFixture

	revokeReason string
	revokedAt    time.Time
}

type mintFixture struct {
	policyID, assetID, txHash string
	mintedAt                  *time.Time
}

// NewCredentialBuilder creates a builder with sensible defaults.
func NewCredentialBuilder(code string) *CredentialBuilder {
	return &CredentialBuilder{
		code: code,
		md: metadata.Credential{
			SubjectName:   "Ana Silva",
			SubjectNumber: "STU2024001",
			Program:       "Computer Science",
		},
		createdAt: time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC),
	}
}

func (b *CredentialBuilder) WithMetadata(md metadata.Credential) *CredentialBuilder {
	b.md = md
	return b
}

func (b *CredentialBuilder) WithRecipient(addr string) *CredentialBuilder {
	b.recipient = addr
	return b
}

func (b *CredentialBuilder) CreatedAt(t time.Time) *CredentialBuilder {
	b.createdAt = t
	return b
}

// Minted attaches a confirmed mint at mintedAt.
func (b *CredentialBuilder) Minted(policyID, assetID, txHash string, mintedAt time.Time) *CredentialBuilder {
	b.mint = &mintFixture{policyID: policyID, assetID: assetID, txHash: txHash, mintedAt: &mintedAt}
	return b
}

// Pending attaches a submitted but unconfirmed mint.
func (b *CredentialBuilder) Pending(policyID, assetID, txHash string) *CredentialBuilder {
	b.mint = &mintFixture{policyID: policyID, assetID: assetID, txHash: txHash}
	return b
}

func (b *CredentialBuilder) Revoked(reason string, at time.Time) *CredentialBuilder {
	b.revokeReason = reason
	b.revokedAt = at
	return b
}

// Build returns the record. It panics on invalid input since fixtures are
// static test data.
func (b *CredentialBuilder) Build() *models.Credential {
	c, err := models.NewCredential(b.code, b.md, b.recipient, b.createdAt)
	if err != nil {
		panic(fmt.Sprintf("testutil: invalid credential fixture %q: %v", b.code, err))
	}
	if b.mint != nil {
		c.AttachMint(b.mint.policyID, b.mint.assetID, b.mint.txHash, b.mint.mintedAt, b.createdAt)
	}
	if b.revokeReason != "" {
		c.Revoke(b.revokeReason, b.revokedAt)
	}
	return c
}
