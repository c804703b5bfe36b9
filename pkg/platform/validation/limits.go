package validation

import (
	"fmt"

	dErrors "certledger/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize bounds single-credential request bodies (64 KB).
	MaxBodySize = 64 * 1024

	// MaxBatchBodySize bounds batch mint and batch issue bodies (1 MB).
	MaxBatchBodySize = 1024 * 1024
)

// Slice element count limits
const (
	// MaxBatchSize is the maximum number of mints or issues in one batch request.
	MaxBatchSize = 50
)

// String element length limits
const (
	// MaxQueryLength bounds the verification query (a code, asset id or tx hash).
	MaxQueryLength = 200

	// MaxReasonLength bounds revocation reasons.
	MaxReasonLength = 500

	// MaxAddressLength bounds bech32 recipient addresses.
	MaxAddressLength = 128
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("too many %s: max %d allowed", fieldName, max))
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// CheckEachStringLength validates that each string in a slice does not exceed the maximum length.
func CheckEachStringLength(fieldName string, values []string, max int) error {
	for _, v := range values {
		if len(v) > max {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
		}
	}
	return nil
}
