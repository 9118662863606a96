package provider

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockSMSProvider is a test and development implementation of SMSSenderProvider.
type MockSMSProvider struct {
	logger *slog.Logger

	mu             sync.Mutex
	FailSend       bool          // Send returns FailMessage as an error
	FailMessage    string        // defaults to "mock provider simulated send failure"
	SimulatedDelay time.Duration // honours ctx cancellation
	Configured     bool
	Sender         string
	sent           []SendRequestDetails
}

// NewMockSMSProvider creates a configured MockSMSProvider.
func NewMockSMSProvider(logger *slog.Logger, failSend bool, delay time.Duration) *MockSMSProvider {
	return &MockSMSProvider{
		logger:         logger.With("provider", "mock"),
		FailSend:       failSend,
		SimulatedDelay: delay,
		Configured:     true,
		Sender:         "+15550000000",
	}
}

// Send simulates sending an SMS.
func (p *MockSMSProvider) Send(ctx context.Context, details SendRequestDetails) (*SendResponseDetails, error) {
	p.mu.Lock()
	failSend, failMessage, delay := p.FailSend, p.FailMessage, p.SimulatedDelay
	p.sent = append(p.sent, details)
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "MockSMSProvider: Send called",
		"internal_message_id", details.InternalMessageID,
		"recipient", details.Recipient,
		"content_length", len(details.Content))

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if failSend {
		if failMessage == "" {
			failMessage = "mock provider simulated send failure"
		}
		p.logger.WarnContext(ctx, failMessage, "recipient", details.Recipient)
		return nil, errors.New(failMessage)
	}

	providerMsgID := "mock-" + uuid.NewString()
	p.logger.InfoContext(ctx, "MockSMSProvider: SMS sent successfully (simulated)", "recipient", details.Recipient, "provider_msg_id", providerMsgID)
	return &SendResponseDetails{
		ProviderMessageID: providerMsgID,
		ProviderStatus:    "queued",
	}, nil
}

func (p *MockSMSProvider) GetName() string { return "mock" }

func (p *MockSMSProvider) IsConfigured() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Configured && p.Sender != ""
}

func (p *MockSMSProvider) SenderAddress() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Sender
}

// Sent returns every request Send has received.
func (p *MockSMSProvider) Sent() []SendRequestDetails {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SendRequestDetails, len(p.sent))
	copy(out, p.sent)
	return out
}
