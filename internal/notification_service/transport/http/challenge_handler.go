package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aradsms/notification_service/internal/notification_service/domain"
	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// Challenger issues and checks one-time verification codes.
type Challenger interface {
	Start(ctx context.Context, recipient string) (domain.Outcome, error)
	Verify(ctx context.Context, recipient, code string) error
}

type ChallengeHandler struct {
	challenges Challenger
	validate   *validator.Validate
	logger     *slog.Logger
}

func NewChallengeHandler(challenges Challenger, validate *validator.Validate, logger *slog.Logger) *ChallengeHandler {
	return &ChallengeHandler{
		challenges: challenges,
		validate:   validate,
		logger:     logger.With("handler", "challenge"),
	}
}

// RegisterRoutes registers challenge routes with the given router.
func (h *ChallengeHandler) RegisterRoutes(r chi.Router) {
	r.Post("/challenges/start", h.handleStart)
	r.Post("/challenges/verify", h.handleVerify)
}

func (h *ChallengeHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req StartChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, logger, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		jsonError(w, logger, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	out, err := h.challenges.Start(ctx, req.Recipient)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to start challenge", "error", err)
		jsonError(w, logger, "Failed to send verification code", http.StatusInternalServerError)
		return
	}
	if !out.Success {
		writeJSON(w, logger, http.StatusUnprocessableEntity, out)
		return
	}
	writeJSON(w, logger, http.StatusOK, out)
}

func (h *ChallengeHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req VerifyChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, logger, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		jsonError(w, logger, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	err := h.challenges.Verify(ctx, req.Recipient, req.Code)
	switch {
	case err == nil:
		writeJSON(w, logger, http.StatusOK, VerifyChallengeResponse{Verified: true})
	case errors.Is(err, domain.ErrChallengeNotFound):
		jsonError(w, logger, "No active verification code", http.StatusNotFound)
	case errors.Is(err, domain.ErrChallengeMismatch):
		jsonError(w, logger, "Incorrect verification code", http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrChallengeAttemptsExhausted):
		jsonError(w, logger, "Too many incorrect attempts; request a new code", http.StatusTooManyRequests)
	default:
		logger.ErrorContext(ctx, "Failed to verify challenge", "error", err)
		jsonError(w, logger, "Failed to verify code", http.StatusInternalServerError)
	}
}
