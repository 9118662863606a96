package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	AuthenticatedOperatorContextKey = ContextKey("authenticatedOperator")
)

// AuthenticatedOperator is the caller of an operator endpoint, taken from the
// access token's claims.
type AuthenticatedOperator struct {
	ID       string
	Username string
	IsAdmin  bool
}

// OperatorFromContext returns the operator AuthMiddleware stored, if any.
func OperatorFromContext(ctx context.Context) (AuthenticatedOperator, bool) {
	op, ok := ctx.Value(AuthenticatedOperatorContextKey).(AuthenticatedOperator)
	return op, ok
}

// AuthMiddleware requires an HS256 access token signed with accessSecret in the
// Authorization header ("Bearer <token>").
func AuthMiddleware(accessSecret string, logger *slog.Logger) func(next http.Handler) http.Handler {
	logger = logger.With("middleware", "auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				logger.WarnContext(r.Context(), "Authorization header missing or malformed")
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(accessSecret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				logger.WarnContext(r.Context(), "Token validation failed", "error", err)
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}
			operatorID, _ := claims["sub"].(string)
			if operatorID == "" {
				logger.WarnContext(r.Context(), "Token has no subject")
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}
			username, _ := claims["unm"].(string)
			isAdmin, _ := claims["adm"].(bool)

			op := AuthenticatedOperator{ID: operatorID, Username: username, IsAdmin: isAdmin}
			ctx := context.WithValue(r.Context(), AuthenticatedOperatorContextKey, op)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
