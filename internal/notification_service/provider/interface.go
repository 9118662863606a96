package provider

import "context"

// SendRequestDetails holds the data needed to transmit one SMS.
type SendRequestDetails struct {
	InternalMessageID string // empty when the send is not logged
	SenderAddress     string
	Recipient         string
	Content           string
	StatusCallbackURL string
}

// SendResponseDetails is what the provider returned on acceptance.
type SendResponseDetails struct {
	ProviderMessageID string
	ProviderStatus    string
}

// SMSSenderProvider transmits SMS through an external provider.
// Send returns an error for any rejection; the error text becomes the
// message's failure reason.
type SMSSenderProvider interface {
	Send(ctx context.Context, details SendRequestDetails) (*SendResponseDetails, error)
	GetName() string
	// IsConfigured reports whether credentials and a sender address are present.
	// It does not check that they are valid.
	IsConfigured() bool
	SenderAddress() string
}
