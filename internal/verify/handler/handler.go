// Package handler exposes credential verification over HTTP.
package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Verifier

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"certledger/internal/platform/middleware"
	"certledger/internal/verify"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/httputil"
)

// Verifier reconciles a verification query.
type Verifier interface {
	Verify(ctx context.Context, q string) verify.Result
}

// Handler serves the public verification endpoint.
type Handler struct {
	verifier Verifier
	logger   *slog.Logger
}

func New(verifier Verifier, logger *slog.Logger) *Handler {
	return &Handler{verifier: verifier, logger: logger}
}

// Register mounts GET /verify. The endpoint is public.
func (h *Handler) Register(r chi.Router) {
	r.Get("/verify", h.HandleVerify)
}

// HandleVerify answers GET /verify?q=<credential code | asset id>.
//
// Every response body is a verify.Result. A result that carries a document is
// an answer (including revoked and conflicting credentials) and is sent with
// 200; otherwise the status follows the error kind.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	res := h.verifier.Verify(ctx, r.URL.Query().Get("q"))

	status := StatusOf(res)
	if status >= http.StatusInternalServerError {
		h.logger.WarnContext(ctx, "verification could not reach any source",
			"request_id", requestID,
			"source", string(res.Source),
			"error_kind", string(res.ErrorKind),
		)
	}
	httputil.WriteJSON(w, status, res)
}

// StatusOf maps a verification result to its HTTP status.
func StatusOf(res verify.Result) int {
	if res.ErrorKind == "" || res.Document != nil {
		return http.StatusOK
	}
	return httputil.DomainErrorToHTTPStatus(&dErrors.Error{Code: res.ErrorKind, Reason: res.Reason})
}
