package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/aradsms/notification_service/internal/notification_service/app"
	"github.com/aradsms/notification_service/internal/notification_service/domain"
	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// MessageReader looks up logged messages.
type MessageReader interface {
	GetByID(ctx context.Context, id string) (*domain.MessageRecord, error)
}

// MessageHandler exposes single sends and message status lookups.
type MessageHandler struct {
	dispatcher app.MessageDispatcher
	messages   MessageReader
	validate   *validator.Validate
	logger     *slog.Logger
}

func NewMessageHandler(dispatcher app.MessageDispatcher, messages MessageReader, validate *validator.Validate, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{
		dispatcher: dispatcher,
		messages:   messages,
		validate:   validate,
		logger:     logger.With("handler", "message"),
	}
}

// RegisterRoutes registers message routes with the given router.
func (h *MessageHandler) RegisterRoutes(r chi.Router) {
	r.Post("/messages/send", h.handleSendMessage)
	r.Get("/messages/{messageID}", h.handleGetMessage)
}

// handleSendMessage dispatches inline. A rejected message is still a 200: the
// outcome carries the reason.
func (h *MessageHandler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			jsonError(w, logger, "Request body is empty", http.StatusBadRequest)
			return
		}
		jsonError(w, logger, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		jsonError(w, logger, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	out, err := h.dispatcher.Send(ctx, req.Recipient, req.Body, app.SendOptions{SkipLog: req.Test})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to dispatch message", "error", err)
		jsonError(w, logger, "Failed to send message (database error)", http.StatusInternalServerError)
		return
	}
	writeJSON(w, logger, http.StatusOK, out)
}

func (h *MessageHandler) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))
	messageID := chi.URLParam(r, "messageID")

	rec, err := h.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			jsonError(w, logger, "Message not found", http.StatusNotFound)
			return
		}
		logger.ErrorContext(ctx, "Failed to get message", "error", err, "message_id", messageID)
		jsonError(w, logger, "Failed to retrieve message", http.StatusInternalServerError)
		return
	}
	writeJSON(w, logger, http.StatusOK, rec)
}
