package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aradsms/notification_service/internal/notification_service/domain"
	"github.com/google/uuid"
)

// WebhookEventStore appends audit records to a slice.
type WebhookEventStore struct {
	mu     sync.Mutex
	events []domain.WebhookEventRecord
}

var _ domain.WebhookEventStore = (*WebhookEventStore)(nil)

func NewWebhookEventStore() *WebhookEventStore {
	return &WebhookEventStore{}
}

func (s *WebhookEventStore) Record(ctx context.Context, ev *domain.WebhookEventRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.events = append(s.events, *ev)
	s.mu.Unlock()
	return nil
}

// Events returns a copy of everything recorded, oldest first.
func (s *WebhookEventStore) Events() []domain.WebhookEventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.WebhookEventRecord, len(s.events))
	copy(out, s.events)
	return out
}
