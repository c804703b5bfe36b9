package verify

import (
	"strings"

	"certledger/internal/credential/models"
	"certledger/internal/ledger/assetname"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/validation"
)

// QueryKind selects which source a verification starts from.
type QueryKind string

const (
	QueryCode  QueryKind = "code"
	QueryAsset QueryKind = "asset"
)

// Query is a classified verification query.
type Query struct {
	Kind     QueryKind
	Code     string // upper-cased credential code, for QueryCode
	AssetID  string // canonical <policy hex><name hex>, for QueryAsset
	PolicyID string
}

// Classify recognizes a credential code (case-insensitive) or a raw asset id.
// Anything else is a validation error.
func Classify(raw string) (Query, error) {
	q := strings.TrimSpace(raw)
	if q == "" {
		return Query{}, dErrors.New(dErrors.CodeValidation, "query is required")
	}
	if len(q) > validation.MaxQueryLength {
		return Query{}, dErrors.New(dErrors.CodeValidation, "query is too long")
	}
	if code, ok := models.ParseCode(q); ok {
		return Query{Kind: QueryCode, Code: code}, nil
	}
	policyID, name, err := assetname.SplitAssetID(q)
	if err != nil {
		return Query{}, &dErrors.Error{
			Code:    dErrors.CodeValidation,
			Message: "query is neither a credential code nor an asset id",
			Err:     err,
		}
	}
	return Query{
		Kind:     QueryAsset,
		AssetID:  assetname.AssetID(policyID, name),
		PolicyID: policyID,
	}, nil
}
