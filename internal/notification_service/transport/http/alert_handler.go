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
	"github.com/aradsms/notification_service/internal/platform/messagebroker"
	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// BulkSender runs a bulk send inline.
type BulkSender interface {
	SendBulk(ctx context.Context, recipients []string, body string, opts app.SendOptions) (*domain.BulkSendResult, error)
}

// AlertHandler triggers alert fan-out to a recipient list.
type AlertHandler struct {
	bulk         BulkSender
	publisher    messagebroker.Publisher // nil disables async alerts
	alertSubject string
	validate     *validator.Validate
	logger       *slog.Logger
}

func NewAlertHandler(bulk BulkSender, publisher messagebroker.Publisher, alertSubject string, validate *validator.Validate, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{
		bulk:         bulk,
		publisher:    publisher,
		alertSubject: alertSubject,
		validate:     validate,
		logger:       logger.With("handler", "alert"),
	}
}

// RegisterRoutes registers alert routes with the given router.
func (h *AlertHandler) RegisterRoutes(r chi.Router) {
	r.Post("/alerts/send", h.handleSendAlert)
}

func (h *AlertHandler) handleSendAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req SendAlertRequest
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
	if req.AlertID == "" {
		req.AlertID = uuid.NewString()
	}
	logger = logger.With("alert_id", req.AlertID, "recipients", len(req.Recipients), "test", req.Test)

	if req.Async {
		h.queueAlert(ctx, w, logger, req)
		return
	}

	// The run covers the whole list even if the client goes away.
	logger.InfoContext(ctx, "Sending alert")
	res, err := h.bulk.SendBulk(context.WithoutCancel(ctx), req.Recipients, req.Body, app.SendOptions{SkipLog: req.Test})

	resp := SendAlertResponse{AlertID: req.AlertID}
	if res != nil {
		resp.Status = string(res.Status())
		resp.SuccessCount = res.SuccessCount
		resp.FailedCount = res.FailedCount
		resp.Outcomes = res.Outcomes
	}
	if err != nil {
		logger.ErrorContext(ctx, "Alert send stopped early", "error", err,
			"success_count", resp.SuccessCount, "failed_count", resp.FailedCount)
		resp.Status = "aborted"
		resp.Error = "Alert send interrupted; some recipients were not attempted"
		writeJSON(w, logger, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, logger, http.StatusOK, resp)
}

func (h *AlertHandler) queueAlert(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, req SendAlertRequest) {
	if h.publisher == nil {
		jsonError(w, logger, "Async alerts are unavailable: message broker not configured", http.StatusServiceUnavailable)
		return
	}
	payload, err := json.Marshal(app.AlertJob{
		AlertID:    req.AlertID,
		Recipients: req.Recipients,
		Body:       req.Body,
		Test:       req.Test,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to marshal alert job", "error", err)
		jsonError(w, logger, "Failed to queue alert", http.StatusInternalServerError)
		return
	}
	if err := h.publisher.Publish(ctx, h.alertSubject, payload); err != nil {
		logger.ErrorContext(ctx, "Failed to publish alert job to NATS", "error", err, "subject", h.alertSubject)
		jsonError(w, logger, "Failed to queue alert", http.StatusInternalServerError)
		return
	}
	logger.InfoContext(ctx, "Alert job published to NATS", "subject", h.alertSubject)
	writeJSON(w, logger, http.StatusAccepted, SendAlertResponse{AlertID: req.AlertID, Status: "queued"})
}
