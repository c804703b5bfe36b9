package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"certledger/internal/credential/models"
	"certledger/pkg/platform/sentinel"
)

// PostgresStore persists credential records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed credential store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const credentialColumns = `id, code, metadata, status, recipient_address, policy_id, asset_id,
	tx_hash, mint_state, minted_at, revoked_at, revocation_reason, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, c *models.Credential) error {
	if c == nil {
		return fmt.Errorf("credential is required")
	}
	md, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("marshal credential metadata: %w", err)
	}
	query := `
		INSERT INTO credentials (` + credentialColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = s.db.ExecContext(ctx, query,
		c.ID,
		c.Code,
		md,
		string(c.Status),
		c.RecipientAddress,
		c.PolicyID,
		c.AssetID,
		c.TxHash,
		string(c.MintState),
		c.MintedAt,
		c.RevokedAt,
		c.RevocationReason,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("credential code must be unique: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByCode(ctx context.Context, code string) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE code = $1`
	c, err := scanCredential(s.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find credential by code: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) FindByAssetID(ctx context.Context, assetID string) (*models.Credential, error) {
	if assetID == "" {
		return nil, sentinel.ErrNotFound
	}
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE asset_id = $1`
	c, err := scanCredential(s.db.QueryRowContext(ctx, query, assetID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find credential by asset id: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*models.Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM credentials
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, code
		LIMIT $2 OFFSET $3
	`
	rows, err := s.db.QueryContext(ctx, query, string(filter.Status), filter.limit(), filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	out := []*models.Credential{}
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return out, nil
}

// Execute atomically validates and mutates a record under a row lock.
func (s *PostgresStore) Execute(ctx context.Context, code string, validate func(*models.Credential) error, mutate func(*models.Credential)) (*models.Credential, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin credential execute tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE code = $1 FOR UPDATE`
	c, err := scanCredential(tx.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find credential for execute: %w", err)
	}

	if err := validate(c); err != nil {
		return nil, err
	}
	mutate(c)

	update := `
		UPDATE credentials
		SET status = $2, recipient_address = $3, policy_id = $4, asset_id = $5, tx_hash = $6,
			mint_state = $7, minted_at = $8, revoked_at = $9, revocation_reason = $10, updated_at = $11
		WHERE id = $1
	`
	_, err = tx.ExecContext(ctx, update,
		c.ID,
		string(c.Status),
		c.RecipientAddress,
		c.PolicyID,
		c.AssetID,
		c.TxHash,
		string(c.MintState),
		c.MintedAt,
		c.RevokedAt,
		c.RevocationReason,
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("asset id already attached to another credential: %w", sentinel.ErrAlreadyUsed)
		}
		return nil, fmt.Errorf("update credential: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit credential execute: %w", err)
	}
	return c, nil
}

type credentialRow interface {
	Scan(dest ...any) error
}

func scanCredential(row credentialRow) (*models.Credential, error) {
	var (
		c         models.Credential
		id        uuid.UUID
		md        []byte
		status    string
		mintState string
		mintedAt  sql.NullTime
		revokedAt sql.NullTime
	)
	if err := row.Scan(&id, &c.Code, &md, &status, &c.RecipientAddress, &c.PolicyID, &c.AssetID,
		&c.TxHash, &mintState, &mintedAt, &revokedAt, &c.RevocationReason, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(md, &c.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal credential metadata: %w", err)
	}
	c.ID = id
	c.Status = models.Status(status)
	c.MintState = models.MintState(mintState)
	if mintedAt.Valid {
		t := mintedAt.Time
		c.MintedAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		c.RevokedAt = &t
	}
	return &c, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
