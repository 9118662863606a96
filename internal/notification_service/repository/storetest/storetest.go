// Package storetest holds behavioural tests shared by every MessageLogStore adapter.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aradsms/notification_service/internal/notification_service/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

// RunMessageLogStoreTests exercises the MessageLogStore contract against stores
// produced by newStore. Each subtest gets a fresh store.
func RunMessageLogStoreTests(t *testing.T, newStore func(t *testing.T) domain.MessageLogStore) {
	ctx := context.Background()

	t.Run("create assigns id and timestamps", func(t *testing.T) {
		s := newStore(t)
		rec, err := s.Create(ctx, &domain.MessageRecord{Recipient: "+14155551234", Body: "hello"})
		require.NoError(t, err)
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, domain.MessageStatePending, rec.State)
		assert.False(t, rec.CreatedAt.IsZero())
		assert.Equal(t, rec.CreatedAt, rec.UpdatedAt)
		assert.Nil(t, rec.ProviderMessageID)

		got, err := s.GetByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.Recipient, got.Recipient)
		assert.Equal(t, rec.Body, got.Body)
		assert.Equal(t, domain.MessageStatePending, got.State)
	})

	t.Run("unknown ids are not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, domain.ErrMessageNotFound)
		_, err = s.FindByProviderMessageID(ctx, "nope")
		assert.ErrorIs(t, err, domain.ErrMessageNotFound)
		_, err = s.UpdateState(ctx, "00000000-0000-0000-0000-000000000000", domain.StateUpdate{To: domain.MessageStateSent})
		assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	})

	t.Run("sent then delivered", func(t *testing.T) {
		s := newStore(t)
		rec, err := s.Create(ctx, &domain.MessageRecord{Recipient: "+14155551234", Body: "hi"})
		require.NoError(t, err)

		sent, err := s.UpdateState(ctx, rec.ID, domain.StateUpdate{To: domain.MessageStateSent, ProviderMessageID: ptr("SM1")})
		require.NoError(t, err)
		assert.Equal(t, domain.MessageStateSent, sent.State)
		require.NotNil(t, sent.ProviderMessageID)
		assert.Equal(t, "SM1", *sent.ProviderMessageID)
		assert.False(t, sent.UpdatedAt.Before(rec.UpdatedAt))

		found, err := s.FindByProviderMessageID(ctx, "SM1")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, found.ID)

		delivered, err := s.UpdateState(ctx, rec.ID, domain.StateUpdate{To: domain.MessageStateDelivered})
		require.NoError(t, err)
		assert.Equal(t, domain.MessageStateDelivered, delivered.State)
		assert.Equal(t, "SM1", *delivered.ProviderMessageID)
	})

	t.Run("failed records error detail", func(t *testing.T) {
		s := newStore(t)
		rec, err := s.Create(ctx, &domain.MessageRecord{Recipient: "bad", Body: "hi"})
		require.NoError(t, err)

		failed, err := s.UpdateState(ctx, rec.ID, domain.StateUpdate{To: domain.MessageStateFailed, ErrorDetail: ptr("invalid phone number format")})
		require.NoError(t, err)
		require.NotNil(t, failed.ErrorDetail)
		assert.Equal(t, "invalid phone number format", *failed.ErrorDetail)

		got, err := s.GetByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.MessageStateFailed, got.State)
		assert.Equal(t, "invalid phone number format", *got.ErrorDetail)
	})

	t.Run("terminal states reject transitions", func(t *testing.T) {
		s := newStore(t)
		rec, err := s.Create(ctx, &domain.MessageRecord{Recipient: "+14155551234", Body: "hi"})
		require.NoError(t, err)
		_, err = s.UpdateState(ctx, rec.ID, domain.StateUpdate{To: domain.MessageStateFailed, ErrorDetail: ptr("boom")})
		require.NoError(t, err)

		_, err = s.UpdateState(ctx, rec.ID, domain.StateUpdate{To: domain.MessageStateDelivered})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		got, err := s.GetByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.MessageStateFailed, got.State)
		assert.Equal(t, "boom", *got.ErrorDetail)
	})

	t.Run("provider id is unique", func(t *testing.T) {
		s := newStore(t)
		a, err := s.Create(ctx, &domain.MessageRecord{Recipient: "+14155551234", Body: "a"})
		require.NoError(t, err)
		b, err := s.Create(ctx, &domain.MessageRecord{Recipient: "+14155551235", Body: "b"})
		require.NoError(t, err)

		_, err = s.UpdateState(ctx, a.ID, domain.StateUpdate{To: domain.MessageStateSent, ProviderMessageID: ptr("SM-dup")})
		require.NoError(t, err)
		_, err = s.UpdateState(ctx, b.ID, domain.StateUpdate{To: domain.MessageStateSent, ProviderMessageID: ptr("SM-dup")})
		assert.ErrorIs(t, err, domain.ErrDuplicateProviderMessageID)

		got, err := s.GetByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.MessageStatePending, got.State)
	})

	t.Run("provider id is immutable", func(t *testing.T) {
		s := newStore(t)
		rec, err := s.Create(ctx, &domain.MessageRecord{Recipient: "+14155551234", Body: "a"})
		require.NoError(t, err)
		_, err = s.UpdateState(ctx, rec.ID, domain.StateUpdate{To: domain.MessageStateSent, ProviderMessageID: ptr("SM-1")})
		require.NoError(t, err)

		_, err = s.UpdateState(ctx, rec.ID, domain.StateUpdate{To: domain.MessageStateDelivered, ProviderMessageID: ptr("SM-2")})
		assert.ErrorIs(t, err, domain.ErrProviderMessageIDImmutable)

		got, err := s.FindByProviderMessageID(ctx, "SM-1")
		require.NoError(t, err)
		assert.Equal(t, domain.MessageStateSent, got.State)
	})

	t.Run("create with provider id supports early callbacks", func(t *testing.T) {
		s := newStore(t)
		rec, err := s.Create(ctx, &domain.MessageRecord{Recipient: "+14155551234", Body: "a", ProviderMessageID: ptr("SM-early")})
		require.NoError(t, err)
		found, err := s.FindByProviderMessageID(ctx, "SM-early")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, found.ID)
		assert.Equal(t, domain.MessageStatePending, found.State)

		delivered, err := s.UpdateState(ctx, rec.ID, domain.StateUpdate{To: domain.MessageStateDelivered})
		require.NoError(t, err)
		assert.Equal(t, domain.MessageStateDelivered, delivered.State)
	})

	t.Run("concurrent terminal transitions serialize", func(t *testing.T) {
		s := newStore(t)
		rec, err := s.Create(ctx, &domain.MessageRecord{Recipient: "+14155551234", Body: "a"})
		require.NoError(t, err)
		_, err = s.UpdateState(ctx, rec.ID, domain.StateUpdate{To: domain.MessageStateSent, ProviderMessageID: ptr("SM-race")})
		require.NoError(t, err)

		const workers = 16
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
			rejected  int
			others    []error
		)
		for i := 0; i < workers; i++ {
			to := domain.MessageStateDelivered
			if i%2 == 1 {
				to = domain.MessageStateFailed
			}
			wg.Add(1)
			go func(to domain.MessageState) {
				defer wg.Done()
				_, err := s.UpdateState(ctx, rec.ID, domain.StateUpdate{To: to})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, domain.ErrInvalidTransition):
					rejected++
				default:
					others = append(others, err)
				}
			}(to)
		}
		wg.Wait()

		assert.Empty(t, others)
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, workers-1, rejected)

		got, err := s.GetByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.True(t, got.State.IsTerminal())
	})
}
