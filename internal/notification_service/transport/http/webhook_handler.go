package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/aradsms/notification_service/internal/notification_service/app"
	"github.com/aradsms/notification_service/internal/notification_service/domain"
	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
)

const DefaultMaxWebhookBodyBytes = 64 << 10

// DeliveryReconciler applies a normalized callback.
type DeliveryReconciler interface {
	Ingest(ctx context.Context, source string, event domain.DeliveryEvent) (app.AckResult, error)
}

// WebhookHandler receives provider delivery-status callbacks.
type WebhookHandler struct {
	reconciler   DeliveryReconciler
	maxBodyBytes int64
	logger       *slog.Logger
}

func NewWebhookHandler(reconciler DeliveryReconciler, maxBodyBytes int64, logger *slog.Logger) *WebhookHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxWebhookBodyBytes
	}
	return &WebhookHandler{
		reconciler:   reconciler,
		maxBodyBytes: maxBodyBytes,
		logger:       logger.With("handler", "webhook"),
	}
}

// RegisterRoutes registers webhook routes with the given router.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/{providerName}", h.handleDeliveryCallback)
}

// jsonCallback is the generic JSON callback shape. Field aliases cover the
// providers we have seen.
type jsonCallback struct {
	ProviderMessageID string `json:"provider_message_id"`
	MessageID         string `json:"message_id"`
	Status            string `json:"status"`
	ErrorText         string `json:"error_text"`
	ErrorDescription  string `json:"error_description"`
	ErrorCode         string `json:"error_code"`
}

func (h *WebhookHandler) handleDeliveryCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	source := strings.ToLower(chi.URLParam(r, "providerName"))
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx), "source", source)

	rawPayload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, logger, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		logger.ErrorContext(ctx, "Failed to read webhook request body", "error", err)
		jsonError(w, logger, "Error reading request body", http.StatusBadRequest)
		return
	}
	logger.InfoContext(ctx, "Received delivery callback", "remote_addr", r.RemoteAddr, "payload_size", len(rawPayload))

	event := parseDeliveryCallback(r.Header.Get("Content-Type"), rawPayload)
	ack, err := h.reconciler.Ingest(ctx, source, event)
	if err != nil {
		logger.ErrorContext(ctx, "Error processing delivery callback", "error", err)
		jsonError(w, logger, "Internal server error processing webhook", http.StatusInternalServerError)
		return
	}

	switch ack.Outcome {
	case domain.WebhookOutcomeInvalid:
		jsonError(w, logger, "Invalid callback: "+ack.Detail, http.StatusBadRequest)
	case domain.WebhookOutcomeError:
		jsonError(w, logger, "Internal server error processing webhook", http.StatusInternalServerError)
	default:
		writeJSON(w, logger, http.StatusOK, ack)
	}
}

// parseDeliveryCallback normalizes a form-encoded (Twilio style) or JSON body.
func parseDeliveryCallback(contentType string, raw []byte) domain.DeliveryEvent {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/json" {
		var cb jsonCallback
		if err := json.Unmarshal(raw, &cb); err != nil {
			return domain.MalformedEvent{Raw: string(raw), Reason: "invalid JSON body"}
		}
		return domain.NewDeliveryEvent(
			firstNonEmpty(cb.ProviderMessageID, cb.MessageID),
			cb.Status,
			errorText(cb.ErrorCode, firstNonEmpty(cb.ErrorText, cb.ErrorDescription)),
			string(raw),
		)
	}

	form, err := url.ParseQuery(string(raw))
	if err != nil {
		return domain.MalformedEvent{Raw: string(raw), Reason: "invalid form body"}
	}
	return domain.NewDeliveryEvent(
		firstNonEmpty(form.Get("MessageSid"), form.Get("SmsSid")),
		firstNonEmpty(form.Get("MessageStatus"), form.Get("SmsStatus")),
		errorText(form.Get("ErrorCode"), form.Get("ErrorMessage")),
		string(raw),
	)
}

func errorText(code, message string) string {
	switch {
	case code != "" && message != "":
		return code + ": " + message
	case code != "":
		return "error code " + code
	}
	return message
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
