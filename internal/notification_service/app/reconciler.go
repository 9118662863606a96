package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aradsms/notification_service/internal/notification_service/domain"
	"github.com/aradsms/notification_service/internal/platform/messagebroker"
)

// StatusSubjectPrefix prefixes the subjects applied transitions are published on,
// e.g. "sms.status.delivered".
const StatusSubjectPrefix = "sms.status."

// AckResult is what the webhook caller is told about one callback.
type AckResult struct {
	Outcome   domain.WebhookOutcome `json:"outcome"`
	MessageID string                `json:"message_id,omitempty"`
	State     domain.MessageState   `json:"state,omitempty"`
	Applied   bool                  `json:"applied"`
	Detail    string                `json:"detail,omitempty"`
}

// StatusEvent is published after a callback moves a record to a new state.
type StatusEvent struct {
	MessageID         string              `json:"message_id"`
	ProviderMessageID string              `json:"provider_message_id"`
	State             domain.MessageState `json:"state"`
	ErrorDetail       string              `json:"error_detail,omitempty"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// Reconciler applies provider delivery callbacks to the Message Log Store.
type Reconciler struct {
	store     domain.MessageLogStore
	events    domain.WebhookEventStore
	publisher messagebroker.Publisher // optional
	logger    *slog.Logger
}

func NewReconciler(store domain.MessageLogStore, events domain.WebhookEventStore, publisher messagebroker.Publisher, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		events:    events,
		publisher: publisher,
		logger:    logger.With("component", "reconciler"),
	}
}

// Ingest reconciles one callback. Unknown provider ids, unknown statuses and
// stale or repeated statuses are acknowledged without changing anything.
// The returned error is set only when the store failed, so the provider retries.
func (r *Reconciler) Ingest(ctx context.Context, source string, event domain.DeliveryEvent) (AckResult, error) {
	audit := &domain.WebhookEventRecord{Source: source}
	if event != nil {
		audit.RawPayload = event.RawPayload()
	}

	ack, err := r.reconcile(ctx, event, audit)
	audit.Outcome = ack.Outcome
	if ack.Detail != "" {
		detail := ack.Detail
		audit.Detail = &detail
	}
	r.record(ctx, audit)
	webhookEventsTotal.WithLabelValues(source, string(ack.Outcome)).Inc()
	return ack, err
}

func (r *Reconciler) reconcile(ctx context.Context, event domain.DeliveryEvent, audit *domain.WebhookEventRecord) (AckResult, error) {
	var ev domain.ValidEvent
	switch e := event.(type) {
	case domain.ValidEvent:
		ev = e
	case domain.MalformedEvent:
		r.logger.WarnContext(ctx, "Rejected malformed delivery callback", "source", audit.Source, "reason", e.Reason)
		return AckResult{Outcome: domain.WebhookOutcomeInvalid, Detail: e.Reason}, nil
	default:
		return AckResult{Outcome: domain.WebhookOutcomeInvalid, Detail: "empty callback"}, nil
	}

	pid, status := ev.ProviderMessageID, ev.Status
	audit.ProviderMessageID = &pid
	audit.Status = &status
	logger := r.logger.With("source", audit.Source, "provider_message_id", pid, "status", status)

	rec, err := r.store.FindByProviderMessageID(ctx, pid)
	if err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			logger.InfoContext(ctx, "Delivery callback for unknown message")
			return AckResult{Outcome: domain.WebhookOutcomeReceived, Detail: "no matching message"}, nil
		}
		logger.ErrorContext(ctx, "Failed to look up message for callback", "error", err)
		return AckResult{Outcome: domain.WebhookOutcomeError, Detail: "lookup failed"}, fmt.Errorf("failed to look up provider message id %s: %w", pid, err)
	}
	ack := AckResult{MessageID: rec.ID, State: rec.State}

	target, known := domain.MapProviderStatus(status)
	if !known {
		logger.InfoContext(ctx, "Ignoring unrecognized provider status", "message_id", rec.ID)
		ack.Outcome = domain.WebhookOutcomeReceived
		ack.Detail = "unrecognized status"
		return ack, nil
	}
	if rec.State.IsTerminal() || rec.State == target || !rec.State.CanTransitionTo(target) {
		logger.DebugContext(ctx, "Callback does not advance message state", "message_id", rec.ID, "current_state", rec.State, "target_state", target)
		ack.Outcome = domain.WebhookOutcomeProcessed
		ack.Detail = "no state change"
		return ack, nil
	}

	upd := domain.StateUpdate{To: target}
	if target == domain.MessageStateFailed {
		detail := ev.ErrorText
		if detail == "" {
			detail = status
		}
		upd.ErrorDetail = &detail
	}
	updated, err := r.store.UpdateState(ctx, rec.ID, upd)
	if err != nil {
		// A concurrent writer reached a terminal state first.
		if errors.Is(err, domain.ErrInvalidTransition) {
			logger.InfoContext(ctx, "Callback lost race with another update", "message_id", rec.ID)
			ack.Outcome = domain.WebhookOutcomeProcessed
			ack.Detail = "no state change"
			return ack, nil
		}
		logger.ErrorContext(ctx, "Failed to apply delivery callback", "message_id", rec.ID, "error", err)
		ack.Outcome = domain.WebhookOutcomeError
		ack.Detail = "update failed"
		return ack, fmt.Errorf("failed to update message %s to %s: %w", rec.ID, target, err)
	}

	logger.InfoContext(ctx, "Applied delivery callback", "message_id", rec.ID, "from", rec.State, "to", updated.State)
	r.publish(ctx, updated)
	return AckResult{
		Outcome:   domain.WebhookOutcomeProcessed,
		MessageID: updated.ID,
		State:     updated.State,
		Applied:   true,
	}, nil
}

func (r *Reconciler) publish(ctx context.Context, rec *domain.MessageRecord) {
	if r.publisher == nil {
		return
	}
	ev := StatusEvent{
		MessageID: rec.ID,
		State:     rec.State,
		UpdatedAt: rec.UpdatedAt,
	}
	if rec.ProviderMessageID != nil {
		ev.ProviderMessageID = *rec.ProviderMessageID
	}
	if rec.ErrorDetail != nil {
		ev.ErrorDetail = *rec.ErrorDetail
	}
	data, err := json.Marshal(ev)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to marshal status event", "error", err, "message_id", rec.ID)
		return
	}
	subject := StatusSubjectPrefix + strings.ToLower(string(rec.State))
	if err := r.publisher.Publish(ctx, subject, data); err != nil {
		r.logger.ErrorContext(ctx, "Failed to publish status event", "error", err, "subject", subject, "message_id", rec.ID)
	}
}

func (r *Reconciler) record(ctx context.Context, audit *domain.WebhookEventRecord) {
	if r.events == nil {
		return
	}
	if err := r.events.Record(context.WithoutCancel(ctx), audit); err != nil {
		r.logger.ErrorContext(ctx, "Failed to record webhook event", "error", err, "outcome", audit.Outcome)
	}
}
