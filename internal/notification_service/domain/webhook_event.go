package domain

import "time"

// WebhookOutcome classifies an ingested callback for audit.
type WebhookOutcome string

const (
	WebhookOutcomeReceived  WebhookOutcome = "received"  // well-formed but nothing applied (unmatched, unrecognized status)
	WebhookOutcomeProcessed WebhookOutcome = "processed" // matched; transition applied or idempotent no-op
	WebhookOutcomeInvalid   WebhookOutcome = "invalid"
	WebhookOutcomeError     WebhookOutcome = "error"
)

// WebhookEventRecord is the audit row written for every callback.
type WebhookEventRecord struct {
	ID                string         `json:"id"`
	Source            string         `json:"source"`
	RawPayload        string         `json:"raw_payload"`
	Outcome           WebhookOutcome `json:"outcome"`
	ProviderMessageID *string        `json:"provider_message_id,omitempty"`
	Status            *string        `json:"status,omitempty"`
	Detail            *string        `json:"detail,omitempty"`
	ReceivedAt        time.Time      `json:"received_at"`
}
