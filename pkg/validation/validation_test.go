package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certledger/pkg/domain-errors"
)

type inner struct {
	StudentName string `json:"studentName" validate:"notblank"`
}

type outer struct {
	Metadata inner    `json:"metadata"`
	PolicyID string   `json:"policyId,omitempty" validate:"omitempty,len=56,hexadecimal"`
	Codes    []string `json:"codes" validate:"required,min=1,max=3"`
}

func TestValidateUsesWireNames(t *testing.T) {
	err := Validate(outer{Metadata: inner{StudentName: " "}, Codes: []string{"a"}})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.Equal(t, "metadata.studentName must not be blank", err.Error())
}

func TestValidateMessages(t *testing.T) {
	ok := inner{StudentName: "Ana"}

	err := Validate(outer{Metadata: ok})
	assert.EqualError(t, err, "codes is required")

	err = Validate(outer{Metadata: ok, Codes: []string{"a", "b", "c", "d"}})
	assert.EqualError(t, err, "codes must be at most 3")

	err = Validate(outer{Metadata: ok, Codes: []string{"a"}, PolicyID: "abc"})
	assert.EqualError(t, err, "policyId must have length 56")

	assert.NoError(t, Validate(outer{Metadata: ok, Codes: []string{"a"}}))
}
