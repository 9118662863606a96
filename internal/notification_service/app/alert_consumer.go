package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aradsms/notification_service/internal/notification_service/domain"
	"github.com/aradsms/notification_service/internal/platform/messagebroker"
	"github.com/nats-io/nats.go"
)

// AlertJob asks for one body to be sent to a list of recipients.
type AlertJob struct {
	AlertID    string   `json:"alert_id"`
	Recipients []string `json:"recipients"`
	Body       string   `json:"body"`
	Test       bool     `json:"test"` // test sends are not logged
}

// AlertResult is published on the result subject once a job finishes.
type AlertResult struct {
	AlertID      string           `json:"alert_id"`
	SuccessCount int              `json:"success_count"`
	FailedCount  int              `json:"failed_count"`
	Status       string           `json:"status"`
	Outcomes     []domain.Outcome `json:"outcomes"`
	Error        string           `json:"error,omitempty"`
}

// Subscriber is the subscribe side of the broker.
type Subscriber interface {
	Subscribe(ctx context.Context, subject, queueGroup string, handler nats.MsgHandler) (*nats.Subscription, error)
}

// BulkRunner runs a bulk send.
type BulkRunner interface {
	SendBulk(ctx context.Context, recipients []string, body string, opts SendOptions) (*domain.BulkSendResult, error)
}

// AlertConsumer turns AlertJobs received over NATS into bulk sends.
type AlertConsumer struct {
	subscriber    Subscriber
	publisher     messagebroker.Publisher
	bulk          BulkRunner
	subject       string
	resultSubject string
	queueGroup    string
	logger        *slog.Logger

	baseCtx context.Context
	sub     *nats.Subscription
}

func NewAlertConsumer(subscriber Subscriber, publisher messagebroker.Publisher, bulk BulkRunner, subject, resultSubject, queueGroup string, logger *slog.Logger) *AlertConsumer {
	return &AlertConsumer{
		subscriber:    subscriber,
		publisher:     publisher,
		bulk:          bulk,
		subject:       subject,
		resultSubject: resultSubject,
		queueGroup:    queueGroup,
		logger:        logger.With("component", "alert_consumer"),
		baseCtx:       context.Background(),
	}
}

// Start subscribes to the alert subject. Jobs run under ctx, so cancelling it
// interrupts in-flight bulk runs.
func (c *AlertConsumer) Start(ctx context.Context) error {
	if c.subscriber == nil {
		return errors.New("alert consumer: NATS client not initialized")
	}
	c.baseCtx = ctx
	c.logger.Info("Starting alert consumer", "subject", c.subject, "queue_group", c.queueGroup)

	sub, err := c.subscriber.Subscribe(ctx, c.subject, c.queueGroup, func(msg *nats.Msg) {
		c.logger.Info("Received alert job", "subject", msg.Subject, "data_len", len(msg.Data))
		c.handle(c.baseCtx, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to alert subject '%s': %w", c.subject, err)
	}
	c.sub = sub
	return nil
}

// Stop unsubscribes. Jobs already running finish.
func (c *AlertConsumer) Stop() {
	if c.sub == nil {
		return
	}
	if err := c.sub.Unsubscribe(); err != nil {
		c.logger.Warn("Failed to unsubscribe alert consumer", "error", err)
	}
	c.sub = nil
}

// handle processes one raw job payload. Bad payloads are logged and dropped.
func (c *AlertConsumer) handle(ctx context.Context, data []byte) {
	var job AlertJob
	if err := json.Unmarshal(data, &job); err != nil {
		c.logger.Error("Failed to unmarshal alert job", "error", err, "data", string(data))
		return
	}
	if len(job.Recipients) == 0 {
		c.logger.Warn("Dropping alert job without recipients", "alert_id", job.AlertID)
		return
	}

	// No per-job deadline: a run covers the whole list and stops only when
	// the consumer's context is cancelled.
	res, err := c.bulk.SendBulk(ctx, job.Recipients, job.Body, SendOptions{SkipLog: job.Test})
	out := AlertResult{AlertID: job.AlertID}
	if res != nil {
		out.SuccessCount = res.SuccessCount
		out.FailedCount = res.FailedCount
		out.Status = string(res.Status())
		out.Outcomes = res.Outcomes
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "Alert job stopped early", "alert_id", job.AlertID, "error", err)
		out.Status = "aborted"
		out.Error = err.Error()
	}
	c.publishResult(ctx, out)
}

func (c *AlertConsumer) publishResult(ctx context.Context, res AlertResult) {
	if c.publisher == nil || c.resultSubject == "" {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to marshal alert result", "error", err, "alert_id", res.AlertID)
		return
	}
	if err := c.publisher.Publish(context.WithoutCancel(ctx), c.resultSubject, data); err != nil {
		c.logger.ErrorContext(ctx, "Failed to publish alert result", "error", err, "alert_id", res.AlertID)
	}
}
