package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/aradsms/notification_service/internal/notification_service/domain"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/mock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mocks ---

type MockMessageLogStore struct {
	mock.Mock
}

func (m *MockMessageLogStore) Create(ctx context.Context, rec *domain.MessageRecord) (*domain.MessageRecord, error) {
	args := m.Called(ctx, rec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MessageRecord), args.Error(1)
}

func (m *MockMessageLogStore) GetByID(ctx context.Context, id string) (*domain.MessageRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MessageRecord), args.Error(1)
}

func (m *MockMessageLogStore) FindByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.MessageRecord, error) {
	args := m.Called(ctx, providerMessageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MessageRecord), args.Error(1)
}

func (m *MockMessageLogStore) UpdateState(ctx context.Context, id string, upd domain.StateUpdate) (*domain.MessageRecord, error) {
	args := m.Called(ctx, id, upd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MessageRecord), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

type MockSubscriber struct {
	mock.Mock
}

func (m *MockSubscriber) Subscribe(ctx context.Context, subject, queueGroup string, handler nats.MsgHandler) (*nats.Subscription, error) {
	args := m.Called(ctx, subject, queueGroup, handler)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*nats.Subscription), args.Error(1)
}

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Send(ctx context.Context, recipient, body string, opts SendOptions) (domain.Outcome, error) {
	args := m.Called(ctx, recipient, body, opts)
	return args.Get(0).(domain.Outcome), args.Error(1)
}

type MockBulkRunner struct {
	mock.Mock
}

func (m *MockBulkRunner) SendBulk(ctx context.Context, recipients []string, body string, opts SendOptions) (*domain.BulkSendResult, error) {
	args := m.Called(ctx, recipients, body, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BulkSendResult), args.Error(1)
}
