package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aradsms/notification_service/internal/notification_service/domain"
	"github.com/aradsms/notification_service/internal/notification_service/provider"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const (
	defaultProviderTimeout = 10 * time.Second
	finalWriteTimeout      = 5 * time.Second
)

// SendOptions tunes a single dispatch.
type SendOptions struct {
	// SkipLog suppresses the MessageRecord, for non-production test sends.
	SkipLog bool
	// LoggedBody, when set, is stored on the MessageRecord in place of the
	// transmitted body.
	LoggedBody string
}

// MessageDispatcher sends one message and reports the outcome.
type MessageDispatcher interface {
	Send(ctx context.Context, recipient, body string, opts SendOptions) (domain.Outcome, error)
}

// DispatcherConfig holds the Dispatcher's tunables.
type DispatcherConfig struct {
	ProviderTimeout   time.Duration
	StatusCallbackURL string
	// MaxRPS caps provider calls per second across all callers; 0 disables the cap.
	MaxRPS float64
}

// Dispatcher validates, transmits and records one outbound message.
type Dispatcher struct {
	store       domain.MessageLogStore
	provider    provider.SMSSenderProvider
	limiter     *rate.Limiter
	timeout     time.Duration
	callbackURL string
	logger      *slog.Logger
}

var _ MessageDispatcher = (*Dispatcher)(nil)

func NewDispatcher(store domain.MessageLogStore, smsProvider provider.SMSSenderProvider, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	timeout := cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.MaxRPS > 0 {
		burst := int(cfg.MaxRPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxRPS), burst)
	}
	return &Dispatcher{
		store:       store,
		provider:    smsProvider,
		limiter:     limiter,
		timeout:     timeout,
		callbackURL: cfg.StatusCallbackURL,
		logger:      logger.With("component", "dispatcher"),
	}
}

// Send runs the checks in order (recipient format, body, provider configuration)
// and stops at the first failure. Each path writes exactly one state change.
// Failures are reported in the Outcome; an error means the Message Log Store
// itself failed.
func (d *Dispatcher) Send(ctx context.Context, recipient, body string, opts SendOptions) (domain.Outcome, error) {
	outcome := domain.Outcome{Recipient: recipient}

	var rec *domain.MessageRecord
	if !opts.SkipLog {
		var err error
		logged := body
		if opts.LoggedBody != "" {
			logged = opts.LoggedBody
		}
		rec, err = d.store.Create(ctx, &domain.MessageRecord{
			Recipient: recipient,
			Body:      logged,
			State:     domain.MessageStatePending,
		})
		if err != nil {
			d.logger.ErrorContext(ctx, "Failed to create message record", "error", err, "recipient", recipient)
			return outcome, fmt.Errorf("failed to create message record: %w", err)
		}
		outcome.MessageID = rec.ID
	}
	logger := d.logger.With("message_id", outcome.MessageID, "recipient", recipient, "skip_log", opts.SkipLog)

	if !IsValidRecipient(recipient) {
		logger.WarnContext(ctx, "Rejected message: invalid recipient")
		return d.fail(ctx, rec, outcome, ReasonInvalidRecipient, "invalid_recipient")
	}
	if reason := validateBody(body); reason != "" {
		logger.WarnContext(ctx, "Rejected message: invalid body", "reason", reason)
		return d.fail(ctx, rec, outcome, reason, "invalid_body")
	}
	if !d.provider.IsConfigured() {
		logger.ErrorContext(ctx, "Rejected message: provider not configured", "provider", d.provider.GetName())
		return d.fail(ctx, rec, outcome, ReasonNotConfigured, "not_configured")
	}

	resp, err := d.transmit(ctx, provider.SendRequestDetails{
		InternalMessageID: outcome.MessageID,
		SenderAddress:     d.provider.SenderAddress(),
		Recipient:         recipient,
		Content:           body,
		StatusCallbackURL: d.callbackURL,
	})

	// The provider may already have accepted the message; record the result
	// even if the caller has gone away.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
	defer cancel()

	if err != nil {
		if isTimeout(err) {
			logger.WarnContext(ctx, "Provider call timed out", "provider", d.provider.GetName(), "timeout", d.timeout)
			return d.fail(writeCtx, rec, outcome, ReasonTimeout, "timeout")
		}
		logger.ErrorContext(ctx, "Provider rejected message", "provider", d.provider.GetName(), "error", err)
		return d.fail(writeCtx, rec, outcome, err.Error(), "provider_error")
	}
	if resp == nil || resp.ProviderMessageID == "" {
		logger.ErrorContext(ctx, "Provider accepted message without an id", "provider", d.provider.GetName())
		return d.fail(writeCtx, rec, outcome, ReasonNoProviderID, "provider_error")
	}

	providerMessageID := resp.ProviderMessageID
	if rec != nil {
		_, err := d.store.UpdateState(writeCtx, rec.ID, domain.StateUpdate{
			To:                domain.MessageStateSent,
			ProviderMessageID: &providerMessageID,
		})
		if err != nil {
			logger.ErrorContext(ctx, "Failed to record sent message", "error", err, "provider_message_id", providerMessageID)
			return outcome, fmt.Errorf("failed to mark message %s sent: %w", rec.ID, err)
		}
	}

	dispatchTotal.WithLabelValues(d.provider.GetName(), "sent").Inc()
	logger.InfoContext(ctx, "Message accepted by provider", "provider", d.provider.GetName(), "provider_message_id", providerMessageID)
	outcome.Success = true
	outcome.ProviderMessageID = providerMessageID
	return outcome, nil
}

// transmit calls the provider under the dispatch timeout, waiting for the
// shared rate limiter first.
func (d *Dispatcher) transmit(ctx context.Context, details provider.SendRequestDetails) (*provider.SendResponseDetails, error) {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.limiter.Wait(sendCtx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		// Wait fails early when the deadline would pass before a token frees up.
		return nil, fmt.Errorf("waiting for provider rate limit: %w", context.DeadlineExceeded)
	}

	timer := prometheus.NewTimer(providerRequestDurationHist.WithLabelValues(d.provider.GetName()))
	defer timer.ObserveDuration()
	return d.provider.Send(sendCtx, details)
}

func (d *Dispatcher) fail(ctx context.Context, rec *domain.MessageRecord, outcome domain.Outcome, reason, result string) (domain.Outcome, error) {
	dispatchTotal.WithLabelValues(d.provider.GetName(), result).Inc()
	outcome.Success = false
	outcome.ErrorReason = reason
	if rec == nil {
		return outcome, nil
	}
	if _, err := d.store.UpdateState(ctx, rec.ID, domain.StateUpdate{To: domain.MessageStateFailed, ErrorDetail: &reason}); err != nil {
		d.logger.ErrorContext(ctx, "Failed to record failed message", "error", err, "message_id", rec.ID, "reason", reason)
		return outcome, fmt.Errorf("failed to mark message %s failed: %w", rec.ID, err)
	}
	return outcome, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
