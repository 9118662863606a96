package middleware

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PayloadHashClaim carries the hex SHA-256 of the request body.
const PayloadHashClaim = "payload_hash"

// SignWebhookPayload returns a token binding body to secret, valid for ttl.
// Providers or relays posting callbacks send it as "Authorization: Bearer <token>".
func SignWebhookPayload(secret string, body []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		PayloadHashClaim: hashPayload(body),
		"iat":            now.Unix(),
		"exp":            now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// WebhookSignatureMiddleware rejects callbacks whose body does not match a
// token signed with secret. The body is buffered (up to maxBodyBytes) and
// handed on unchanged.
func WebhookSignatureMiddleware(secret string, maxBodyBytes int64, logger *slog.Logger) func(next http.Handler) http.Handler {
	logger = logger.With("middleware", "webhook_signature")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tokenString, ok := bearerToken(r)
			if !ok {
				logger.WarnContext(ctx, "Webhook signature missing", "remote_addr", r.RemoteAddr)
				http.Error(w, "Webhook signature required", http.StatusUnauthorized)
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
					return
				}
				logger.ErrorContext(ctx, "Failed to read webhook body", "error", err)
				http.Error(w, "Error reading request body", http.StatusBadRequest)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				logger.WarnContext(ctx, "Webhook signature verification failed", "error", err)
				http.Error(w, "Webhook signature verification failed", http.StatusUnauthorized)
				return
			}
			claims, _ := token.Claims.(jwt.MapClaims)
			want, _ := claims[PayloadHashClaim].(string)
			if subtle.ConstantTimeCompare([]byte(want), []byte(hashPayload(body))) != 1 {
				logger.WarnContext(ctx, "Webhook payload does not match signature")
				http.Error(w, "Webhook signature verification failed", http.StatusUnauthorized)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			next.ServeHTTP(w, r)
		})
	}
}

func hashPayload(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
