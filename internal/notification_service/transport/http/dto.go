package http

import "github.com/aradsms/notification_service/internal/notification_service/domain"

// SendMessageRequest DTO for POST /messages/send
type SendMessageRequest struct {
	Recipient string `json:"recipient" validate:"required"`
	Body      string `json:"body"`
	Test      bool   `json:"test"` // not logged
}

// SendAlertRequest DTO for POST /alerts/send
type SendAlertRequest struct {
	AlertID    string   `json:"alert_id,omitempty" validate:"omitempty,max=64"`
	Recipients []string `json:"recipients" validate:"required,min=1,max=1000"`
	Body       string   `json:"body"`
	Test       bool     `json:"test"`
	Async      bool     `json:"async"` // queue on NATS instead of sending inline
}

// SendAlertResponse DTO
type SendAlertResponse struct {
	AlertID      string           `json:"alert_id"`
	Status       string           `json:"status"`
	SuccessCount int              `json:"success_count"`
	FailedCount  int              `json:"failed_count"`
	Outcomes     []domain.Outcome `json:"outcomes,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// StartChallengeRequest DTO for POST /challenges/start
type StartChallengeRequest struct {
	Recipient string `json:"recipient" validate:"required"`
}

// VerifyChallengeRequest DTO for POST /challenges/verify
type VerifyChallengeRequest struct {
	Recipient string `json:"recipient" validate:"required"`
	Code      string `json:"code" validate:"required,numeric,min=4,max=10"`
}

// VerifyChallengeResponse DTO
type VerifyChallengeResponse struct {
	Verified bool `json:"verified"`
}
