package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/pulsefit/backend/internal/contextx"
	apphttpx "github.com/pulsefit/backend/internal/httpx"
	"github.com/pulsefit/backend/internal/session"
)

// SessionAuthHuma is a router-agnostic Huma middleware that resolves an
// opaque bearer session and injects the user ID into the request context
// under contextx.UserIDKey. On failure it writes an RFC 7807 problem+json
// response with code ErrUnauthorized.
func SessionAuthHuma(sessions session.Provider, logger *slog.Logger) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		r, w := humachi.Unwrap(ctx)

		writeUnauthorized := func(detail string) {
			reqID := chimw.GetReqID(r.Context())
			p := &apphttpx.Problem{
				Type:      "urn:problem:auth/err-unauthorized",
				Title:     http.StatusText(http.StatusUnauthorized),
				Status:    http.StatusUnauthorized,
				Detail:    detail,
				Code:      "ErrUnauthorized",
				RequestID: reqID,
			}
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(p.GetStatus())
			_ = json.NewEncoder(w).Encode(p)
		}

		// 1. Authorization header.
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeUnauthorized("missing authorization header")
			return
		}

		// 2. Bearer token.
		sessionID, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			writeUnauthorized("invalid authorization header format")
			return
		}

		// 3. Validate the session and extend its sliding TTL.
		userID, err := sessions.GetAndExtend(r.Context(), sessionID)
		if err != nil {
			logger.Warn("invalid session token", "error", err)
			writeUnauthorized("invalid or expired session")
			return
		}

		// 4. Inject user ID into context for downstream handlers.
		ctx = huma.WithValue(ctx, contextx.UserIDKey, userID)
		next(ctx)
	}
}

// AdminSecretHuma guards administrative endpoints with a shared bearer
// secret. A missing (unconfigured) secret is reported as a server
// configuration problem rather than 401, so a misconfiguration fails
// loudly instead of silently rejecting every retry request.
func AdminSecretHuma(adminSecret string, logger *slog.Logger) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		r, w := humachi.Unwrap(ctx)

		writeProblem := func(p *apphttpx.Problem) {
			p.RequestID = chimw.GetReqID(r.Context())
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(p.GetStatus())
			_ = json.NewEncoder(w).Encode(p)
		}

		if adminSecret == "" {
			logger.Error("admin secret is not configured")
			writeProblem(&apphttpx.Problem{
				Type:   "urn:problem:admin/err-config",
				Title:  http.StatusText(http.StatusInternalServerError),
				Status: http.StatusInternalServerError,
				Detail: "admin secret is not configured",
				Code:   "ErrConfig",
			})
			return
		}

		authHeader := r.Header.Get("Authorization")
		secret, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || subtle.ConstantTimeCompare([]byte(secret), []byte(adminSecret)) != 1 {
			logger.Warn("admin authentication failed")
			writeProblem(&apphttpx.Problem{
				Type:   "urn:problem:admin/err-unauthorized",
				Title:  http.StatusText(http.StatusUnauthorized),
				Status: http.StatusUnauthorized,
				Detail: "invalid admin credentials",
				Code:   "ErrUnauthorized",
			})
			return
		}

		next(ctx)
	}
}
