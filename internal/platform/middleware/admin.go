package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/httputil"
)

type adminActorKey struct{}

// GetAdminActorID returns the X-Admin-Actor-ID of an authorized issuer request,
// or "" when absent.
func GetAdminActorID(ctx context.Context) string {
	if actor, ok := ctx.Value(adminActorKey{}).(string); ok {
		return actor
	}
	return ""
}

// RequireAdminToken guards issuer endpoints with the X-Admin-Token header.
// An empty expected token rejects every request.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := r.Header.Get("X-Admin-Token")
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", GetRequestID(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
				return
			}

			if actor := r.Header.Get("X-Admin-Actor-ID"); actor != "" {
				ctx = context.WithValue(ctx, adminActorKey{}, actor)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
