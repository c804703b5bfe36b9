package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certledger/internal/credential/models"
	"certledger/pkg/platform/sentinel"
	"certledger/pkg/testutil"
)

type InMemorySuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemory
	now   time.Time
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemory()
	s.now = time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)
}

func (s *InMemorySuite) newRecord(code string, offset time.Duration) *models.Credential {
	return testutil.NewCredentialBuilder(code).CreatedAt(s.now.Add(offset)).Build()
}

func (s *InMemorySuite) TestCreateRejectsDuplicateCode() {
	s.Require().NoError(s.store.Create(s.ctx, s.newRecord("UNI-2024-AAA111", 0)))
	err := s.store.Create(s.ctx, s.newRecord("UNI-2024-AAA111", 0))
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)
}

func (s *InMemorySuite) TestFindReturnsCopies() {
	s.Require().NoError(s.store.Create(s.ctx, s.newRecord("UNI-2024-AAA111", 0)))

	got, err := s.store.FindByCode(s.ctx, "UNI-2024-AAA111")
	s.Require().NoError(err)
	got.Status = models.StatusRevoked

	again, err := s.store.FindByCode(s.ctx, "UNI-2024-AAA111")
	s.Require().NoError(err)
	s.Equal(models.StatusIssued, again.Status)

	_, err = s.store.FindByCode(s.ctx, "UNI-2024-ZZZ999")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemorySuite) TestExecuteIndexesAssetID() {
	s.Require().NoError(s.store.Create(s.ctx, s.newRecord("UNI-2024-AAA111", 0)))
	s.Require().NoError(s.store.Create(s.ctx, s.newRecord("UNI-2024-BBB222", 0)))

	attach := func(assetID string) func(*models.Credential) {
		return func(c *models.Credential) { c.AttachMint("pol", assetID, "tx", nil, s.now) }
	}
	noCheck := func(*models.Credential) error { return nil }

	_, err := s.store.Execute(s.ctx, "UNI-2024-AAA111", noCheck, attach("pol.asset1"))
	s.Require().NoError(err)

	got, err := s.store.FindByAssetID(s.ctx, "pol.asset1")
	s.Require().NoError(err)
	s.Equal("UNI-2024-AAA111", got.Code)
	s.Equal(models.MintPending, got.MintState)

	_, err = s.store.Execute(s.ctx, "UNI-2024-BBB222", noCheck, attach("pol.asset1"))
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	_, err = s.store.Execute(s.ctx, "UNI-2024-CCC333", noCheck, attach("pol.asset2"))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemorySuite) TestExecuteValidationAbortsMutation() {
	s.Require().NoError(s.store.Create(s.ctx, s.newRecord("UNI-2024-AAA111", 0)))
	refuse := errors.New("refused")

	_, err := s.store.Execute(s.ctx, "UNI-2024-AAA111",
		func(*models.Credential) error { return refuse },
		func(c *models.Credential) { c.Revoke("never", s.now) })
	s.ErrorIs(err, refuse)

	got, err := s.store.FindByCode(s.ctx, "UNI-2024-AAA111")
	s.Require().NoError(err)
	s.False(got.IsRevoked())
}

func (s *InMemorySuite) TestConcurrentAttachSingleWinner() {
	s.Require().NoError(s.store.Create(s.ctx, s.newRecord("UNI-2024-AAA111", 0)))

	result := testutil.RunConcurrent(20, func(idx int) error {
		_, err := s.store.Execute(s.ctx, "UNI-2024-AAA111",
			func(c *models.Credential) error {
				if c.Minted() {
					return sentinel.ErrConflict
				}
				return nil
			},
			func(c *models.Credential) { c.AttachMint("pol", fmt.Sprintf("pol.asset%d", idx), "tx", nil, s.now) })
		return err
	})

	s.Equal(int32(1), result.Successes)
	s.Equal(int32(19), result.Conflicts)
}

func (s *InMemorySuite) TestListNewestFirst() {
	for i, code := range []string{"UNI-2024-AAA111", "UNI-2024-BBB222", "UNI-2024-CCC333"} {
		s.Require().NoError(s.store.Create(s.ctx, s.newRecord(code, time.Duration(i)*time.Minute)))
	}
	_, err := s.store.Execute(s.ctx, "UNI-2024-BBB222",
		func(*models.Credential) error { return nil },
		func(c *models.Credential) { c.Revoke("error in transcript", s.now) })
	s.Require().NoError(err)

	all, err := s.store.List(s.ctx, ListFilter{})
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal("UNI-2024-CCC333", all[0].Code)

	issued, err := s.store.List(s.ctx, ListFilter{Status: models.StatusIssued, Limit: 1})
	s.Require().NoError(err)
	s.Require().Len(issued, 1)
	s.Equal("UNI-2024-CCC333", issued[0].Code)

	page, err := s.store.List(s.ctx, ListFilter{Offset: 5})
	s.Require().NoError(err)
	s.Empty(page)
}
