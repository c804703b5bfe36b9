package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "certledger/pkg/domain-errors"
)

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Errors after WriteHeader cannot change the status code, so we ignore encoding errors.
	// The response body may be incomplete, but headers are already sent.
	_ = json.NewEncoder(w).Encode(response)
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error       string `json:"error"`
	Reason      string `json:"reason,omitempty"`
	Description string `json:"error_description,omitempty"`
	Retryable   bool   `json:"retryable,omitempty"`
}

// WriteError centralizes domain error translation to HTTP responses.
// It translates transport-agnostic domain errors into HTTP status codes and error responses.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		WriteJSON(w, DomainErrorToHTTPStatus(domainErr), ErrorResponse{
			Error:       string(domainErr.Code),
			Reason:      string(domainErr.Reason),
			Description: domainErr.Message,
			Retryable:   domainErr.Retryable(),
		})
		return
	}

	// Fallback for unexpected errors
	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: string(dErrors.CodeInternal)})
}

// DomainErrorToHTTPStatus translates a domain error to an HTTP status. Wallet
// and ledger errors are refined by reason.
func DomainErrorToHTTPStatus(err *dErrors.Error) int {
	switch err.Code {
	case dErrors.CodeWallet:
		switch err.Reason {
		case dErrors.ReasonInsufficientFunds, dErrors.ReasonNoUTXO:
			return http.StatusPaymentRequired
		case dErrors.ReasonSignerUnavailable:
			return http.StatusServiceUnavailable
		}
		return http.StatusConflict
	case dErrors.CodeLedger:
		if err.Reason == dErrors.ReasonNotFound {
			return http.StatusNotFound
		}
		return http.StatusUnprocessableEntity
	}
	return DomainCodeToHTTPStatus(err.Code)
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation, dErrors.CodeEncoding:
		return http.StatusBadRequest
	case dErrors.CodeWallet, dErrors.CodeConflict, dErrors.CodeDuplicate:
		return http.StatusConflict
	case dErrors.CodeNetwork:
		return http.StatusServiceUnavailable
	case dErrors.CodeLedger:
		return http.StatusUnprocessableEntity
	case dErrors.CodePending:
		return http.StatusAccepted
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
