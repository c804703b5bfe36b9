package validation

import (
	"strings"
	"testing"

	dErrors "certledger/pkg/domain-errors"

	"github.com/stretchr/testify/suite"
)

// LimitsSuite tests the validation helper functions.
//
// Justification: These are trust-boundary validators. The invariants
// "max+1 must fail" and "max must pass" are security-critical.
type LimitsSuite struct {
	suite.Suite
}

func TestLimitsSuite(t *testing.T) {
	suite.Run(t, new(LimitsSuite))
}

func (s *LimitsSuite) TestCheckSliceCount() {
	s.Run("passes when count equals max", func() {
		err := CheckSliceCount("requests", 20, 20)
		s.NoError(err)
	})

	s.Run("passes when count is below max", func() {
		err := CheckSliceCount("requests", 5, 20)
		s.NoError(err)
	})

	s.Run("passes when count is zero", func() {
		err := CheckSliceCount("requests", 0, 20)
		s.NoError(err)
	})

	s.Run("fails when count exceeds max", func() {
		err := CheckSliceCount("requests", 21, 20)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(err.Error(), "too many requests")
		s.Contains(err.Error(), "max 20 allowed")
	})
}

func (s *LimitsSuite) TestCheckStringLength() {
	s.Run("passes when length equals max", func() {
		str := strings.Repeat("a", 100)
		err := CheckStringLength("reason", str, 100)
		s.NoError(err)
	})

	s.Run("passes when length is below max", func() {
		err := CheckStringLength("reason", "short", 100)
		s.NoError(err)
	})

	s.Run("passes for empty string", func() {
		err := CheckStringLength("reason", "", 100)
		s.NoError(err)
	})

	s.Run("fails when length exceeds max", func() {
		str := strings.Repeat("a", 101)
		err := CheckStringLength("reason", str, 100)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(err.Error(), "reason exceeds max length of 100")
	})
}

func (s *LimitsSuite) TestCheckEachStringLength() {
	s.Run("passes when all elements are within limit", func() {
		values := []string{"short", "also short", strings.Repeat("a", 100)}
		err := CheckEachStringLength("reason", values, 100)
		s.NoError(err)
	})

	s.Run("passes for empty slice", func() {
		err := CheckEachStringLength("reason", []string{}, 100)
		s.NoError(err)
	})

	s.Run("passes for nil slice", func() {
		err := CheckEachStringLength("reason", nil, 100)
		s.NoError(err)
	})

	s.Run("fails when any element exceeds max", func() {
		values := []string{"short", strings.Repeat("a", 101), "also short"}
		err := CheckEachStringLength("reason", values, 100)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(err.Error(), "reason exceeds max length of 100")
	})

	s.Run("fails on first exceeding element", func() {
		values := []string{strings.Repeat("a", 101), strings.Repeat("b", 102)}
		err := CheckEachStringLength("reason", values, 100)
		s.Require().Error(err)
		// Only one error, not multiple
		s.Contains(err.Error(), "reason exceeds max length of 100")
	})
}
