package middleware

import (
	"context"
	"log/slog"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/splitsession/internal/auth"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// claimsKey is the context key for the validated organizer claims.
const claimsKey contextKey = "organizer_claims"

// GetClaims extracts the organizer claims from the context, or nil.
func GetClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// GetSessionID returns the session the caller is organizer of.
// Returns empty string if the request carried no token.
func GetSessionID(ctx context.Context) string {
	if claims := GetClaims(ctx); claims != nil {
		return claims.SessionID
	}
	return ""
}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// OrganizerAuth validates an organizer token when one is sent and adds its claims
// to the request context. Requests without a token pass through; handlers decide
// whether the procedure needs one. A token that is present but invalid is rejected.
func OrganizerAuth(jwtManager *auth.JWTManager) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			authHeader := req.Header().Get("Authorization")
			if authHeader == "" {
				return next(ctx, req)
			}

			// Parse Bearer token
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				slog.Warn("malformed authorization header", "procedure", req.Spec().Procedure)
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidToken)
			}

			claims, err := jwtManager.Validate(parts[1])
			if err != nil {
				slog.Warn("rejected organizer token", "procedure", req.Spec().Procedure, "error", err)
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}

			return next(WithClaims(ctx, claims), req)
		}
	}
}
