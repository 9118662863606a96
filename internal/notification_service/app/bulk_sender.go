package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aradsms/notification_service/internal/notification_service/domain"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// BulkSenderOption configures a BulkSender.
type BulkSenderOption func(*BulkSender)

// WithSleeper replaces the pacing sleep, mainly for tests.
func WithSleeper(s Sleeper) BulkSenderOption {
	return func(b *BulkSender) { b.sleep = s }
}

// BulkSender dispatches one body to many recipients, one at a time.
type BulkSender struct {
	dispatcher MessageDispatcher
	pacing     time.Duration
	sleep      Sleeper
	logger     *slog.Logger
}

func NewBulkSender(dispatcher MessageDispatcher, pacing time.Duration, logger *slog.Logger, opts ...BulkSenderOption) *BulkSender {
	b := &BulkSender{
		dispatcher: dispatcher,
		pacing:     pacing,
		sleep:      sleepContext,
		logger:     logger.With("component", "bulk_sender"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SendBulk sends body to each recipient in order, pausing the pacing interval
// between consecutive sends. A failed recipient never stops the run. A store
// failure or cancelled context does, and the partial result is returned with
// the error.
func (b *BulkSender) SendBulk(ctx context.Context, recipients []string, body string, opts SendOptions) (*domain.BulkSendResult, error) {
	result := &domain.BulkSendResult{Outcomes: make([]domain.Outcome, 0, len(recipients))}
	started := time.Now()

	for i, recipient := range recipients {
		if i > 0 {
			if err := b.sleep(ctx, b.pacing); err != nil {
				return b.abort(ctx, result, fmt.Errorf("bulk send interrupted after %d of %d recipients: %w", i, len(recipients), err))
			}
		}
		outcome, err := b.dispatcher.Send(ctx, recipient, body, opts)
		if err != nil {
			return b.abort(ctx, result, fmt.Errorf("bulk send aborted at recipient %d of %d: %w", i+1, len(recipients), err))
		}
		result.Add(outcome)
		if outcome.Success {
			bulkRecipientsTotal.WithLabelValues("success").Inc()
		} else {
			bulkRecipientsTotal.WithLabelValues("failed").Inc()
		}
	}

	status := result.Status()
	bulkSendsTotal.WithLabelValues(string(status)).Inc()
	attrs := []any{
		"recipients", len(recipients),
		"success_count", result.SuccessCount,
		"failed_count", result.FailedCount,
		"status", status,
		"duration", time.Since(started),
	}
	if result.HasFailures() {
		b.logger.WarnContext(ctx, "Bulk send completed with failures", attrs...)
	} else {
		b.logger.InfoContext(ctx, "Bulk send completed", attrs...)
	}
	return result, nil
}

func (b *BulkSender) abort(ctx context.Context, result *domain.BulkSendResult, err error) (*domain.BulkSendResult, error) {
	bulkSendsTotal.WithLabelValues("aborted").Inc()
	b.logger.ErrorContext(ctx, "Bulk send stopped early", "error", err,
		"success_count", result.SuccessCount, "failed_count", result.FailedCount)
	return result, err
}
