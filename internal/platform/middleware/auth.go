package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	id "quizdeck/pkg/domain"
	"quizdeck/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT access tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator.
type JWTClaims struct {
	UserID string
}

// GetUserID retrieves the authenticated user ID from the context. Returns
// the zero value for unauthenticated (guest) requests.
func GetUserID(ctx context.Context) id.UserID {
	return requestcontext.UserID(ctx)
}

const bearerPrefix = "Bearer "

func authenticate(r *http.Request, validator JWTValidator) (id.UserID, bool, error) {
	authHeader := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(authHeader, bearerPrefix)
	if !ok {
		return "", false, nil
	}
	claims, err := validator.ValidateToken(token)
	if err != nil {
		return "", true, err
	}
	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return "", true, err
	}
	return userID, true, nil
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","details":"Invalid or expired token"}`))
}

// RequireAuth rejects requests without a valid bearer token and stores the
// authenticated user ID in the request context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, present, err := authenticate(r, validator)
			if !present || err != nil {
				if err != nil {
					logger.WarnContext(r.Context(), "unauthorized access - invalid token",
						"error", err,
						"request_id", GetRequestID(r.Context()),
					)
				}
				writeUnauthorized(w)
				return
			}
			ctx := requestcontext.WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth authenticates when a bearer token is present but lets
// anonymous requests through; guest-capable routes use it so handlers can
// branch on GetUserID being set.
func OptionalAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, present, err := authenticate(r, validator)
			if present && err != nil {
				// A malformed token on an optional route is still a client
				// error: do not silently downgrade to guest.
				logger.WarnContext(r.Context(), "invalid token on guest-capable route",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				writeUnauthorized(w)
				return
			}
			ctx := r.Context()
			if present {
				ctx = requestcontext.WithUserID(ctx, userID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
