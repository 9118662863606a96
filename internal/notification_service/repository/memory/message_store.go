// Package memory provides process-local stores for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aradsms/notification_service/internal/notification_service/domain"
	"github.com/google/uuid"
)

// MessageStore keeps MessageRecords in a map guarded by a single mutex,
// which serializes every UpdateState.
type MessageStore struct {
	mu         sync.RWMutex
	records    map[string]*domain.MessageRecord
	byProvider map[string]string // provider message id -> record id
	now        func() time.Time
}

var _ domain.MessageLogStore = (*MessageStore)(nil)

// NewMessageStore returns an empty store.
func NewMessageStore() *MessageStore {
	return &MessageStore{
		records:    make(map[string]*domain.MessageRecord),
		byProvider: make(map[string]string),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *MessageStore) Create(ctx context.Context, rec *domain.MessageRecord) (*domain.MessageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := rec.Clone()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.State == "" {
		c.State = domain.MessageStatePending
	}
	now := s.now()
	c.CreatedAt = now
	c.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[c.ID]; exists {
		return nil, fmt.Errorf("message %s already exists", c.ID)
	}
	if c.ProviderMessageID != nil {
		if _, taken := s.byProvider[*c.ProviderMessageID]; taken {
			return nil, domain.ErrDuplicateProviderMessageID
		}
		s.byProvider[*c.ProviderMessageID] = c.ID
	}
	s.records[c.ID] = c
	return c.Clone(), nil
}

func (s *MessageStore) GetByID(ctx context.Context, id string) (*domain.MessageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return rec.Clone(), nil
}

func (s *MessageStore) FindByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.MessageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byProvider[providerMessageID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return s.records[id].Clone(), nil
}

func (s *MessageStore) UpdateState(ctx context.Context, id string, upd domain.StateUpdate) (*domain.MessageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	if upd.ProviderMessageID != nil {
		if owner, taken := s.byProvider[*upd.ProviderMessageID]; taken && owner != id {
			return nil, domain.ErrDuplicateProviderMessageID
		}
	}

	next := rec.Clone()
	if err := domain.ApplyUpdate(next, upd, s.now()); err != nil {
		return nil, err
	}
	if next.ProviderMessageID != nil {
		s.byProvider[*next.ProviderMessageID] = id
	}
	s.records[id] = next
	return next.Clone(), nil
}

// Len is the number of stored records.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Ping always succeeds.
func (s *MessageStore) Ping(ctx context.Context) error {
	return ctx.Err()
}
