package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	dErrors "certledger/pkg/domain-errors"
)

// Sanitizable requests trim and canonicalize their fields before validation.
type Sanitizable interface {
	Sanitize()
}

// Validatable requests reject themselves before reaching a service.
type Validatable interface {
	Validate() error
}

// DecodeJSON decodes a single JSON value from the request body. On failure it
// writes a validation error naming what was wrong and returns nil, false.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	if err := decodeBody(r.Body, &req); err != nil {
		logger.WarnContext(ctx, "failed to decode request body",
			"error", err,
			"request_id", requestID,
		)
		WriteError(w, err)
		return nil, false
	}
	return &req, true
}

// DecodeAndPrepare decodes the body, then sanitizes and validates it when the
// type supports it. Domain errors from Validate keep their code; anything else
// is reported as a validation error.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	req, ok := DecodeJSON[T](w, r, logger, ctx, requestID)
	if !ok {
		return nil, false
	}
	if err := PrepareRequest(req); err != nil {
		logger.WarnContext(ctx, "invalid request",
			"error", err,
			"request_id", requestID,
		)
		var domainErr *dErrors.Error
		if !errors.As(err, &domainErr) {
			err = dErrors.New(dErrors.CodeValidation, err.Error())
		}
		WriteError(w, err)
		return nil, false
	}
	return req, true
}

// PrepareRequest runs Sanitize then Validate on req where implemented.
func PrepareRequest(req any) error {
	if s, ok := req.(Sanitizable); ok {
		s.Sanitize()
	}
	if v, ok := req.(Validatable); ok {
		return v.Validate()
	}
	return nil
}

func decodeBody(body io.Reader, dst any) error {
	if body == nil {
		return dErrors.New(dErrors.CodeValidation, "request body is empty")
	}
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return dErrors.New(dErrors.CodeValidation, "request body must contain a single JSON value")
	}
	return nil
}

func decodeError(err error) error {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		tooLarge  *http.MaxBytesError
	)
	switch {
	case errors.Is(err, io.EOF):
		return dErrors.New(dErrors.CodeValidation, "request body is empty")
	case errors.As(err, &tooLarge):
		return dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
	case errors.As(err, &syntaxErr):
		return dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset))
	case errors.Is(err, io.ErrUnexpectedEOF):
		return dErrors.Wrap(err, dErrors.CodeValidation, "malformed JSON: unexpected end of body")
	case errors.As(err, &typeErr):
		if typeErr.Field != "" {
			return dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("field %s must be %s", typeErr.Field, typeErr.Type))
		}
		return dErrors.Wrap(err, dErrors.CodeValidation, "request body has the wrong shape")
	}
	return dErrors.Wrap(err, dErrors.CodeValidation, "invalid request body")
}
