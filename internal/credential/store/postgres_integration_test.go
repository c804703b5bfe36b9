//go:build integration

package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certledger/internal/credential/models"
	"certledger/internal/credential/store"
	"certledger/internal/ledger/metadata"
	"certledger/pkg/platform/sentinel"
	"certledger/pkg/testutil"
	"certledger/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateAll(context.Background()))
	s.now = time.Now().UTC().Truncate(time.Microsecond)
}

func (s *PostgresStoreSuite) create(code string) *models.Credential {
	c := testutil.NewCredentialBuilder(code).
		WithMetadata(metadata.Credential{
			SubjectName:   "Ana Silva",
			SubjectNumber: "STU2024001",
			Program:       "Computer Science",
			Description:   "Awarded with distinction",
		}).
		CreatedAt(s.now).
		Build()
	s.Require().NoError(s.store.Create(context.Background(), c))
	return c
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	want := s.create("UNI-2024-AAA111")

	got, err := s.store.FindByCode(ctx, want.Code)
	s.Require().NoError(err)
	s.Equal(want.ID, got.ID)
	s.Equal(want.Metadata, got.Metadata)
	s.Equal(models.StatusIssued, got.Status)
	s.Nil(got.MintedAt)
	s.True(want.CreatedAt.Equal(got.CreatedAt))

	_, err = s.store.FindByAssetID(ctx, "")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDuplicateCode() {
	s.create("UNI-2024-AAA111")
	dup, err := models.NewCredential("UNI-2024-AAA111", metadata.Credential{SubjectName: "Other"}, "", s.now)
	s.Require().NoError(err)
	s.ErrorIs(s.store.Create(context.Background(), dup), sentinel.ErrAlreadyUsed)
}

func (s *PostgresStoreSuite) TestAttachAndRevoke() {
	ctx := context.Background()
	s.create("UNI-2024-AAA111")
	minted := s.now.Add(time.Minute)

	_, err := s.store.Execute(ctx, "UNI-2024-AAA111",
		func(c *models.Credential) error { return c.CanMint() },
		func(c *models.Credential) { c.AttachMint("pol", "pol.asset1", "tx1", &minted, s.now) })
	s.Require().NoError(err)

	byAsset, err := s.store.FindByAssetID(ctx, "pol.asset1")
	s.Require().NoError(err)
	s.Equal(models.MintConfirmed, byAsset.MintState)
	s.Require().NotNil(byAsset.MintedAt)
	s.True(minted.Equal(*byAsset.MintedAt))

	revoked, err := s.store.Execute(ctx, "UNI-2024-AAA111",
		func(*models.Credential) error { return nil },
		func(c *models.Credential) { c.Revoke("issued in error", s.now) })
	s.Require().NoError(err)
	s.True(revoked.IsRevoked())

	list, err := s.store.List(ctx, store.ListFilter{Status: models.StatusRevoked})
	s.Require().NoError(err)
	s.Len(list, 1)
}

func (s *PostgresStoreSuite) TestAssetIDUniqueAcrossRecords() {
	ctx := context.Background()
	s.create("UNI-2024-AAA111")
	s.create("UNI-2024-BBB222")
	attach := func(c *models.Credential) { c.AttachMint("pol", "pol.shared", "tx", nil, s.now) }
	ok := func(*models.Credential) error { return nil }

	_, err := s.store.Execute(ctx, "UNI-2024-AAA111", ok, attach)
	s.Require().NoError(err)
	_, err = s.store.Execute(ctx, "UNI-2024-BBB222", ok, attach)
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)
}

func (s *PostgresStoreSuite) TestConcurrentAttachSingleWinner() {
	ctx := context.Background()
	s.create("UNI-2024-AAA111")

	result := testutil.RunConcurrent(10, func(idx int) error {
		_, err := s.store.Execute(ctx, "UNI-2024-AAA111",
			func(c *models.Credential) error {
				if c.Minted() {
					return sentinel.ErrConflict
				}
				return nil
			},
			func(c *models.Credential) { c.AttachMint("pol", fmt.Sprintf("pol.a%d", idx), "tx", nil, s.now) })
		return err
	})
	s.Equal(int32(1), result.Successes)
	s.Equal(int32(9), result.Conflicts)
}
