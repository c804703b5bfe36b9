// Package store persists off-chain credential records.
//
// Implementations return sentinel.ErrNotFound for missing records and
// sentinel.ErrAlreadyUsed when a code or asset id is already taken.
package store

import (
	"context"

	"certledger/internal/credential/models"
)

// ListFilter narrows List results. Zero values mean no constraint.
type ListFilter struct {
	Status models.Status
	Limit  int
	Offset int
}

const defaultListLimit = 50

func (f ListFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 500 {
		return defaultListLimit
	}
	return f.Limit
}

type Store interface {
	Create(ctx context.Context, c *models.Credential) error
	FindByCode(ctx context.Context, code string) (*models.Credential, error)
	FindByAssetID(ctx context.Context, assetID string) (*models.Credential, error)
	List(ctx context.Context, filter ListFilter) ([]*models.Credential, error)
	// Execute atomically validates and mutates the record with the given code.
	Execute(ctx context.Context, code string, validate func(*models.Credential) error, mutate func(*models.Credential)) (*models.Credential, error)
}
