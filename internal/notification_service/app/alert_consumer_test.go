package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aradsms/notification_service/internal/notification_service/domain"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAlertConsumer_Start(t *testing.T) {
	sub := new(MockSubscriber)
	bulk := new(MockBulkRunner)
	pub := new(MockPublisher)
	c := NewAlertConsumer(sub, pub, bulk, "alerts.send", "alerts.result", "workers", testLogger())

	var captured nats.MsgHandler
	sub.On("Subscribe", mock.Anything, "alerts.send", "workers", mock.MatchedBy(func(h nats.MsgHandler) bool {
		captured = h
		return true
	})).Return(nil, nil).Once()

	require.NoError(t, c.Start(context.Background()))
	require.NotNil(t, captured)

	bulk.On("SendBulk", mock.Anything, []string{"+14155551234"}, "disk full", SendOptions{}).
		Return(&domain.BulkSendResult{SuccessCount: 1, Outcomes: []domain.Outcome{{Recipient: "+14155551234", Success: true}}}, nil).Once()
	pub.On("Publish", mock.Anything, "alerts.result", mock.Anything).Return(nil).Once()

	captured(&nats.Msg{Subject: "alerts.send", Data: []byte(`{"alert_id":"a-1","recipients":["+14155551234"],"body":"disk full"}`)})

	bulk.AssertExpectations(t)
	pub.AssertExpectations(t)
	c.Stop()
}

func TestAlertConsumer_Start_SubscribeError(t *testing.T) {
	sub := new(MockSubscriber)
	c := NewAlertConsumer(sub, nil, new(MockBulkRunner), "alerts.send", "", "", testLogger())
	sub.On("Subscribe", mock.Anything, "alerts.send", "", mock.Anything).Return(nil, errors.New("not connected"))

	err := c.Start(context.Background())
	assert.ErrorContains(t, err, "alerts.send")
}

func TestAlertConsumer_Start_NoClient(t *testing.T) {
	c := NewAlertConsumer(nil, nil, new(MockBulkRunner), "alerts.send", "", "", testLogger())
	assert.Error(t, c.Start(context.Background()))
}

func TestAlertConsumer_Handle(t *testing.T) {
	t.Run("publishes result", func(t *testing.T) {
		bulk := new(MockBulkRunner)
		pub := new(MockPublisher)
		c := NewAlertConsumer(new(MockSubscriber), pub, bulk, "alerts.send", "alerts.result", "", testLogger())

		res := &domain.BulkSendResult{}
		res.Add(domain.Outcome{Recipient: "+14155551234", Success: true})
		res.Add(domain.Outcome{Recipient: "bad", ErrorReason: ReasonInvalidRecipient})
		bulk.On("SendBulk", mock.Anything, []string{"+14155551234", "bad"}, "hi", SendOptions{SkipLog: true}).Return(res, nil).Once()

		var got AlertResult
		pub.On("Publish", mock.Anything, "alerts.result", mock.Anything).Run(func(args mock.Arguments) {
			require.NoError(t, json.Unmarshal(args.Get(2).([]byte), &got))
		}).Return(nil).Once()

		c.handle(context.Background(), []byte(`{"alert_id":"a-2","recipients":["+14155551234","bad"],"body":"hi","test":true}`))

		bulk.AssertExpectations(t)
		pub.AssertExpectations(t)
		assert.Equal(t, "a-2", got.AlertID)
		assert.Equal(t, 1, got.SuccessCount)
		assert.Equal(t, 1, got.FailedCount)
		assert.Equal(t, string(domain.BulkStatusPartialFailure), got.Status)
		assert.Len(t, got.Outcomes, 2)
		assert.Empty(t, got.Error)
	})

	t.Run("aborted run reports error", func(t *testing.T) {
		bulk := new(MockBulkRunner)
		pub := new(MockPublisher)
		c := NewAlertConsumer(new(MockSubscriber), pub, bulk, "alerts.send", "alerts.result", "", testLogger())

		bulk.On("SendBulk", mock.Anything, mock.Anything, "hi", SendOptions{}).
			Return(&domain.BulkSendResult{}, errors.New("store unavailable")).Once()

		var got AlertResult
		pub.On("Publish", mock.Anything, "alerts.result", mock.Anything).Run(func(args mock.Arguments) {
			require.NoError(t, json.Unmarshal(args.Get(2).([]byte), &got))
		}).Return(nil).Once()

		c.handle(context.Background(), []byte(`{"alert_id":"a-3","recipients":["+14155551234"],"body":"hi"}`))
		assert.Equal(t, "aborted", got.Status)
		assert.Equal(t, "store unavailable", got.Error)
	})

	t.Run("large job runs without a deadline", func(t *testing.T) {
		bulk := new(MockBulkRunner)
		c := NewAlertConsumer(new(MockSubscriber), nil, bulk, "alerts.send", "", "", testLogger())

		recipients := make([]string, 5000)
		for i := range recipients {
			recipients[i] = "+14155551234"
		}
		payload, err := json.Marshal(AlertJob{AlertID: "a-big", Recipients: recipients, Body: "hi"})
		require.NoError(t, err)

		bulk.On("SendBulk", mock.MatchedBy(func(ctx context.Context) bool {
			_, hasDeadline := ctx.Deadline()
			return !hasDeadline
		}), recipients, "hi", SendOptions{}).Return(&domain.BulkSendResult{SuccessCount: len(recipients)}, nil).Once()

		c.handle(context.Background(), payload)
		bulk.AssertExpectations(t)
	})

	t.Run("bad payload is dropped", func(t *testing.T) {
		bulk := new(MockBulkRunner)
		pub := new(MockPublisher)
		c := NewAlertConsumer(new(MockSubscriber), pub, bulk, "alerts.send", "alerts.result", "", testLogger())

		c.handle(context.Background(), []byte(`{not json`))
		c.handle(context.Background(), []byte(`{"alert_id":"a-4","recipients":[],"body":"hi"}`))

		bulk.AssertNotCalled(t, "SendBulk", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})
}
