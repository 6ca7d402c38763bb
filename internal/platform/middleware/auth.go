package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"vouchsafe/pkg/domain"
	"vouchsafe/pkg/requestcontext"
	"vouchsafe/pkg/secrets"
)

// TokenValidator validates a bearer token and yields the caller address it
// certifies.
type TokenValidator interface {
	ValidateToken(tokenString string) (domain.Address, error)
}

// OperatorKey enables the X-API-Key auth path for machine callers. A request
// presenting the matching key is attributed to Addr.
type OperatorKey struct {
	Addr domain.Address
	Hash string // bcrypt hash of the key
}

// RequireAuth authenticates the caller and attaches its address to the
// request context. It accepts either a Bearer token (validated by the
// identity service) or, when configured, the operator API key. It performs
// no authorization: role checks against owner/admins happen in the service.
func RequireAuth(validator TokenValidator, operator *OperatorKey, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			if token, ok := strings.CutPrefix(authHeader, bearerPrefix); ok {
				addr, err := validator.ValidateToken(token)
				if err != nil {
					logger.WarnContext(ctx, "unauthorized access - invalid token",
						"error", err,
						"request_id", requestID,
					)
					writeUnauthorized(w, "Invalid or expired token")
					return
				}
				next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(ctx, addr)))
				return
			}

			if apiKey := r.Header.Get("X-API-Key"); apiKey != "" && operator != nil && operator.Hash != "" {
				if err := secrets.Verify(apiKey, operator.Hash); err != nil {
					logger.WarnContext(ctx, "unauthorized access - invalid api key",
						"request_id", requestID,
					)
					writeUnauthorized(w, "Invalid API key")
					return
				}
				next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(ctx, operator.Addr)))
				return
			}

			logger.WarnContext(ctx, "unauthorized access - missing credentials",
				"request_id", requestID,
			)
			writeUnauthorized(w, "Missing or invalid Authorization header")
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
