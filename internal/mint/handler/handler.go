// Package handler exposes the minting pipeline over HTTP.
package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"certledger/internal/ledger/metadata"
	"certledger/internal/mint"
	"certledger/internal/platform/middleware"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/httputil"
	"certledger/pkg/platform/validation"
	structval "certledger/pkg/validation"
)

// Service is the subset of the pipeline the handler drives.
type Service interface {
	Mint(ctx context.Context, req mint.Request) mint.Result
	BatchMint(ctx context.Context, reqs []mint.Request) []mint.Result
}

// Handler wires mint endpoints to the pipeline.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts mint endpoints. Callers guard the router with the admin token.
func (h *Handler) Register(r chi.Router) {
	r.Post("/mint", h.HandleMint)
	r.With(middleware.BodyLimit(validation.MaxBatchBodySize)).Post("/mint/batch", h.HandleBatchMint)
}

// MintRequest is the body of POST /mint and one element of a batch.
type MintRequest struct {
	RecipientAddress string              `json:"recipientAddress,omitempty" validate:"max=128"`
	Metadata         metadata.Credential `json:"metadata"`
	PolicyID         string              `json:"policyId,omitempty" validate:"omitempty,len=56,hexadecimal"`
	AssetName        string              `json:"assetName,omitempty"`
}

func (r *MintRequest) Sanitize() {
	r.RecipientAddress = strings.TrimSpace(r.RecipientAddress)
	r.PolicyID = strings.ToLower(strings.TrimSpace(r.PolicyID))
}

func (r *MintRequest) Validate() error {
	return structval.Validate(r)
}

func (r *MintRequest) toRequest() mint.Request {
	return mint.Request{
		RecipientAddress: r.RecipientAddress,
		Metadata:         r.Metadata,
		PolicyID:         r.PolicyID,
		AssetName:        r.AssetName,
	}
}

// BatchRequest is the body of POST /mint/batch.
type BatchRequest struct {
	Requests []MintRequest `json:"requests"`
}

func (r *BatchRequest) Sanitize() {
	for i := range r.Requests {
		r.Requests[i].Sanitize()
	}
}

func (r *BatchRequest) Validate() error {
	if len(r.Requests) == 0 {
		return dErrors.New(dErrors.CodeValidation, "requests must not be empty")
	}
	if err := validation.CheckSliceCount("requests", len(r.Requests), validation.MaxBatchSize); err != nil {
		return err
	}
	for i := range r.Requests {
		if err := r.Requests[i].Validate(); err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("requests[%d]: %s", i, err.Error()))
		}
	}
	return nil
}

// BatchResponse carries one result per request, in request order.
type BatchResponse struct {
	Results []mint.Result `json:"results"`
}

// HandleMint handles POST /mint. A failed mint still returns the result body,
// with the status derived from its error kind.
func (h *Handler) HandleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[MintRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res := h.service.Mint(ctx, req.toRequest())
	if !res.Success {
		h.logger.WarnContext(ctx, "mint request failed",
			"request_id", requestID,
			"kind", res.ErrorKind,
			"stage", res.Stage,
		)
	}
	httputil.WriteJSON(w, StatusOf(res), res)
}

// HandleBatchMint handles POST /mint/batch.
func (h *Handler) HandleBatchMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[BatchRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	reqs := make([]mint.Request, len(req.Requests))
	for i := range req.Requests {
		reqs[i] = req.Requests[i].toRequest()
	}
	results := h.service.BatchMint(ctx, reqs)
	httputil.WriteJSON(w, http.StatusOK, BatchResponse{Results: results})
}

// StatusOf maps a mint result to its HTTP status.
func StatusOf(res mint.Result) int {
	if res.Success {
		return http.StatusOK
	}
	return httputil.DomainErrorToHTTPStatus(&dErrors.Error{Code: res.ErrorKind, Reason: res.ErrorReason})
}
