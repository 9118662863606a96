package sqlite

import (
	"context"
	"testing"

	"github.com/aradsms/notification_service/internal/notification_service/domain"
	"github.com/aradsms/notification_service/internal/notification_service/repository/storetest"
	"github.com/aradsms/notification_service/internal/platform/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *MessageStore {
	t.Helper()
	db, err := database.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(context.Background(), db))
	return NewMessageStore(db)
}

func TestMessageStore_Contract(t *testing.T) {
	storetest.RunMessageLogStoreTests(t, func(t *testing.T) domain.MessageLogStore {
		return openTestDB(t)
	})
}

func TestMigrate_Idempotent(t *testing.T) {
	s := openTestDB(t)
	assert.NoError(t, Migrate(context.Background(), s.db))
}

func TestMessageStore_TimestampsRoundTrip(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	rec, err := s.Create(ctx, &domain.MessageRecord{Recipient: "+14155551234", Body: "hi"})
	require.NoError(t, err)

	got, err := s.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, rec.UpdatedAt.Equal(got.UpdatedAt))
}

func TestWebhookEventStore_Record(t *testing.T) {
	s := openTestDB(t)
	events := NewWebhookEventStore(s.db)
	ctx := context.Background()

	pid := "SM1"
	require.NoError(t, events.Record(ctx, &domain.WebhookEventRecord{
		Source: "twilio", RawPayload: "MessageSid=SM1&MessageStatus=delivered",
		Outcome: domain.WebhookOutcomeProcessed, ProviderMessageID: &pid,
	}))
	require.NoError(t, events.Record(ctx, &domain.WebhookEventRecord{
		Source: "twilio", RawPayload: "garbage", Outcome: domain.WebhookOutcomeInvalid,
	}))

	n, err := events.CountByOutcome(ctx, domain.WebhookOutcomeProcessed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = events.CountByOutcome(ctx, domain.WebhookOutcomeInvalid)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
