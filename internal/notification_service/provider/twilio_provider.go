package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTwilioBaseURL = "https://api.twilio.com"
	maxTwilioBodyBytes   = 16 * 1024
)

// TwilioConfig holds credentials for the Twilio Messages API.
type TwilioConfig struct {
	AccountSID        string
	AuthToken         string
	SenderAddress     string
	BaseURL           string // defaults to https://api.twilio.com
	StatusCallbackURL string
}

// TwilioSMSProvider sends SMS through Twilio's REST API.
type TwilioSMSProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	cfg        TwilioConfig
}

func NewTwilioSMSProvider(logger *slog.Logger, cfg TwilioConfig, httpClient *http.Client) *TwilioSMSProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	cfg.AccountSID = strings.TrimSpace(cfg.AccountSID)
	cfg.AuthToken = strings.TrimSpace(cfg.AuthToken)
	cfg.SenderAddress = strings.TrimSpace(cfg.SenderAddress)
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTwilioBaseURL
	}
	return &TwilioSMSProvider{
		logger:     logger.With("provider", "twilio"),
		httpClient: httpClient,
		cfg:        cfg,
	}
}

// TwilioMessageResponse is the subset of Twilio's Message resource we read.
type TwilioMessageResponse struct {
	SID          string  `json:"sid"`
	Status       string  `json:"status"`
	ErrorCode    *int    `json:"error_code"`
	ErrorMessage *string `json:"error_message"`
}

// TwilioErrorResponse is Twilio's error body.
type TwilioErrorResponse struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func (p *TwilioSMSProvider) Send(ctx context.Context, details SendRequestDetails) (*SendResponseDetails, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", p.cfg.BaseURL, url.PathEscape(p.cfg.AccountSID))

	from := details.SenderAddress
	if from == "" {
		from = p.cfg.SenderAddress
	}
	form := url.Values{}
	form.Set("To", details.Recipient)
	form.Set("From", from)
	form.Set("Body", details.Content)
	callback := details.StatusCallbackURL
	if callback == "" {
		callback = p.cfg.StatusCallbackURL
	}
	if callback != "" {
		form.Set("StatusCallback", callback)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request for Twilio: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.SetBasicAuth(p.cfg.AccountSID, p.cfg.AuthToken)

	p.logger.DebugContext(ctx, "Sending HTTP request to Twilio", "url", endpoint, "internal_message_id", details.InternalMessageID)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to send request to Twilio", "error", err, "internal_message_id", details.InternalMessageID)
		return nil, fmt.Errorf("failed to send request to Twilio: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxTwilioBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("Twilio API request failed (status %d), and failed to read response body: %w", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		errMsg := fmt.Sprintf("Twilio API error: status %d", httpResp.StatusCode)
		var twErr TwilioErrorResponse
		if jsonErr := json.Unmarshal(body, &twErr); jsonErr == nil && twErr.Message != "" {
			errMsg = fmt.Sprintf("Twilio API error %d: %s", twErr.Code, twErr.Message)
		} else if len(body) > 0 && len(body) < 200 {
			errMsg = fmt.Sprintf("Twilio API error: status %d, raw_body: %s", httpResp.StatusCode, string(body))
		}
		p.logger.WarnContext(ctx, "Twilio send failed", "status_code", httpResp.StatusCode, "error_message", errMsg, "internal_message_id", details.InternalMessageID)
		return nil, errors.New(errMsg)
	}

	var msg TwilioMessageResponse
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse Twilio response: %w", err)
	}
	if msg.SID == "" {
		return nil, errors.New("Twilio response missing message sid")
	}

	p.logger.InfoContext(ctx, "Successfully sent SMS via Twilio", "provider_message_id", msg.SID, "status", msg.Status, "internal_message_id", details.InternalMessageID)
	return &SendResponseDetails{
		ProviderMessageID: msg.SID,
		ProviderStatus:    msg.Status,
	}, nil
}

func (p *TwilioSMSProvider) GetName() string { return "twilio" }

func (p *TwilioSMSProvider) IsConfigured() bool {
	return p.cfg.AccountSID != "" && p.cfg.AuthToken != "" && p.cfg.SenderAddress != ""
}

func (p *TwilioSMSProvider) SenderAddress() string { return p.cfg.SenderAddress }
