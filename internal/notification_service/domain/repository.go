package domain

import "context"

// MessageLogStore persists MessageRecords.
//
// UpdateState must be atomic per record: it re-reads the current state under a
// lock, rejects transitions the state machine forbids with ErrInvalidTransition,
// and rejects a provider id change with ErrProviderMessageIDImmutable.
type MessageLogStore interface {
	Create(ctx context.Context, rec *MessageRecord) (*MessageRecord, error)
	GetByID(ctx context.Context, id string) (*MessageRecord, error)
	FindByProviderMessageID(ctx context.Context, providerMessageID string) (*MessageRecord, error)
	UpdateState(ctx context.Context, id string, upd StateUpdate) (*MessageRecord, error)
}

// WebhookEventStore persists the webhook audit trail.
type WebhookEventStore interface {
	Record(ctx context.Context, ev *WebhookEventRecord) error
}
