package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aradsms/notification_service/internal/notification_service/domain"
	"github.com/google/uuid"
)

type WebhookEventStore struct {
	db *sql.DB
}

var _ domain.WebhookEventStore = (*WebhookEventStore)(nil)

func NewWebhookEventStore(db *sql.DB) *WebhookEventStore {
	return &WebhookEventStore{db: db}
}

func (s *WebhookEventStore) Record(ctx context.Context, ev *domain.WebhookEventRecord) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_events (id, source, raw_payload, outcome, provider_message_id, status, detail, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Source, ev.RawPayload, string(ev.Outcome),
		nullString(ev.ProviderMessageID), nullString(ev.Status), nullString(ev.Detail),
		ev.ReceivedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert webhook event: %w", err)
	}
	return nil
}

// CountByOutcome returns how many events were recorded with outcome.
func (s *WebhookEventStore) CountByOutcome(ctx context.Context, outcome domain.WebhookOutcome) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhook_events WHERE outcome = ?`, string(outcome)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count webhook events: %w", err)
	}
	return n, nil
}
