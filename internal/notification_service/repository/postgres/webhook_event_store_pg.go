package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/aradsms/notification_service/internal/notification_service/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgWebhookEventStore struct {
	db *pgxpool.Pool
}

// NewPgWebhookEventStore creates a WebhookEventStore backed by PostgreSQL.
func NewPgWebhookEventStore(db *pgxpool.Pool) domain.WebhookEventStore {
	return &pgWebhookEventStore{db: db}
}

func (r *pgWebhookEventStore) Record(ctx context.Context, ev *domain.WebhookEventRecord) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO webhook_events (id, source, raw_payload, outcome, provider_message_id, status, detail, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Exec(ctx, query,
		ev.ID, ev.Source, ev.RawPayload, string(ev.Outcome), ev.ProviderMessageID, ev.Status, ev.Detail, ev.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert webhook event: %w", err)
	}
	return nil
}
