// Package handler exposes credential record operations to issuers.
package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"certledger/internal/credential/models"
	"certledger/internal/credential/service"
	"certledger/internal/credential/store"
	"certledger/internal/ledger/metadata"
	"certledger/internal/mint"
	mintHandler "certledger/internal/mint/handler"
	"certledger/internal/platform/middleware"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/httputil"
	"certledger/pkg/platform/validation"
	structval "certledger/pkg/validation"
)

// Service defines the record operations used by the handler.
type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (*models.Credential, error)
	Get(ctx context.Context, code string) (*models.Credential, error)
	List(ctx context.Context, filter store.ListFilter) ([]*models.Credential, error)
	Revoke(ctx context.Context, code, reason string) (*models.Credential, error)
	Issue(ctx context.Context, code string) service.IssueOutcome
	IssueBatch(ctx context.Context, codes []string) []service.IssueOutcome
	ConfirmPending(ctx context.Context, code string) (*models.Credential, error)
}

// Handler wires credential endpoints to the service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the issuer endpoints. Callers guard the router with the admin token.
func (h *Handler) Register(r chi.Router) {
	r.Post("/credentials", h.HandleCreate)
	r.Get("/credentials", h.HandleList)
	r.Post("/credentials/issue-batch", h.HandleIssueBatch)
	r.Get("/credentials/{code}", h.HandleGet)
	r.Post("/credentials/{code}/revoke", h.HandleRevoke)
	r.Post("/credentials/{code}/issue", h.HandleIssue)
	r.Post("/credentials/{code}/confirm", h.HandleConfirm)
}

// CreateRequest is the body of POST /credentials.
type CreateRequest struct {
	Code             string              `json:"credentialCode,omitempty" validate:"max=40"`
	Metadata         metadata.Credential `json:"metadata"`
	RecipientAddress string              `json:"recipientAddress,omitempty" validate:"max=128"`
}

func (r *CreateRequest) Sanitize() {
	r.Code = strings.TrimSpace(r.Code)
	r.RecipientAddress = strings.TrimSpace(r.RecipientAddress)
	r.Metadata.SubjectName = strings.TrimSpace(r.Metadata.SubjectName)
	r.Metadata.SubjectNumber = strings.TrimSpace(r.Metadata.SubjectNumber)
}

func (r *CreateRequest) Validate() error {
	return structval.Validate(r)
}

// RevokeRequest is the body of POST /credentials/{code}/revoke.
type RevokeRequest struct {
	Reason string `json:"reason" validate:"notblank,max=500"`
}

func (r *RevokeRequest) Validate() error {
	return structval.Validate(r)
}

// IssueBatchRequest is the body of POST /credentials/issue-batch.
type IssueBatchRequest struct {
	Codes []string `json:"codes"`
}

func (r *IssueBatchRequest) Validate() error {
	if len(r.Codes) == 0 {
		return dErrors.New(dErrors.CodeValidation, "codes must not be empty")
	}
	if err := validation.CheckSliceCount("codes", len(r.Codes), validation.MaxBatchSize); err != nil {
		return err
	}
	return validation.CheckEachStringLength("codes", r.Codes, 40)
}

// IssueResponse reports one issue attempt.
type IssueResponse struct {
	Code       string             `json:"credentialCode"`
	Credential *models.Credential `json:"credential,omitempty"`
	Mint       *mint.Result       `json:"mint,omitempty"`
	Error      string             `json:"error,omitempty"`
	ErrorKind  dErrors.Code       `json:"errorKind,omitempty"`
}

// IssueBatchResponse carries one entry per requested code, in request order.
type IssueBatchResponse struct {
	Results []IssueResponse `json:"results"`
}

// ListResponse is one page of records.
type ListResponse struct {
	Credentials []*models.Credential `json:"credentials"`
	Limit       int                  `json:"limit"`
	Offset      int                  `json:"offset"`
}

func toIssueResponse(o service.IssueOutcome) IssueResponse {
	resp := IssueResponse{Code: o.Code, Credential: o.Credential, Mint: o.Mint}
	if o.Err != nil {
		resp.Error = o.Err.Error()
		resp.ErrorKind = dErrors.CodeOf(o.Err)
	}
	return resp
}

// HandleCreate handles POST /credentials.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	c, err := h.service.Create(ctx, service.CreateRequest{
		Code:             req.Code,
		Metadata:         req.Metadata,
		RecipientAddress: req.RecipientAddress,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "failed to create credential",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

// HandleList handles GET /credentials?status=&limit=&offset=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := store.ListFilter{Status: models.Status(strings.ToLower(q.Get("status")))}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a non-negative integer"))
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "offset must be a non-negative integer"))
		return
	}

	out, err := h.service.List(ctx, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if out == nil {
		out = []*models.Credential{}
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Credentials: out, Limit: filter.Limit, Offset: filter.Offset})
}

// HandleGet handles GET /credentials/{code}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

// HandleRevoke handles POST /credentials/{code}/revoke.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RevokeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	code := chi.URLParam(r, "code")
	c, err := h.service.Revoke(ctx, code, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "revoke requested",
		"request_id", requestID,
		"code", c.Code,
		"actor", middleware.GetAdminActorID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, c)
}

// HandleIssue handles POST /credentials/{code}/issue. Refusals (revoked,
// already minted, unknown code) are written as errors; mint failures return
// the outcome with the status of the mint error kind.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	out := h.service.Issue(ctx, chi.URLParam(r, "code"))
	if out.Err != nil && out.Mint == nil {
		httputil.WriteError(w, out.Err)
		return
	}

	status := http.StatusOK
	switch {
	case out.Err != nil:
		h.logger.ErrorContext(ctx, "issued credential not recorded",
			"request_id", requestID,
			"code", out.Code,
			"error", out.Err,
		)
		status = http.StatusInternalServerError
	case out.Mint != nil:
		status = mintHandler.StatusOf(*out.Mint)
	}
	httputil.WriteJSON(w, status, toIssueResponse(out))
}

// HandleIssueBatch handles POST /credentials/issue-batch.
func (h *Handler) HandleIssueBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[IssueBatchRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	outcomes := h.service.IssueBatch(ctx, req.Codes)
	resp := IssueBatchResponse{Results: make([]IssueResponse, len(outcomes))}
	for i, o := range outcomes {
		resp.Results[i] = toIssueResponse(o)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleConfirm handles POST /credentials/{code}/confirm.
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.ConfirmPending(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodePending) && c != nil {
			httputil.WriteJSON(w, http.StatusAccepted, c)
			return
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "invalid integer")
	}
	return n, nil
}
