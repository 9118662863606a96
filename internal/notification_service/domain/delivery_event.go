package domain

import "strings"

// DeliveryEvent is a provider status callback after normalization.
// It is either a ValidEvent or a MalformedEvent.
type DeliveryEvent interface {
	RawPayload() string
	isDeliveryEvent()
}

// ValidEvent carries both mandatory correlation fields.
type ValidEvent struct {
	ProviderMessageID string
	Status            string // provider vocabulary, e.g. "delivered"
	ErrorText         string
	Raw               string
}

func (e ValidEvent) RawPayload() string { return e.Raw }
func (ValidEvent) isDeliveryEvent()     {}

// MalformedEvent is a callback missing a correlation field or unparseable.
type MalformedEvent struct {
	Raw    string
	Reason string
}

func (e MalformedEvent) RawPayload() string { return e.Raw }
func (MalformedEvent) isDeliveryEvent()     {}

// NewDeliveryEvent validates the mandatory fields and returns the matching variant.
func NewDeliveryEvent(providerMessageID, status, errorText, raw string) DeliveryEvent {
	providerMessageID = strings.TrimSpace(providerMessageID)
	status = strings.TrimSpace(status)
	switch {
	case providerMessageID == "" && status == "":
		return MalformedEvent{Raw: raw, Reason: "missing provider message id and status"}
	case providerMessageID == "":
		return MalformedEvent{Raw: raw, Reason: "missing provider message id"}
	case status == "":
		return MalformedEvent{Raw: raw, Reason: "missing status"}
	}
	return ValidEvent{
		ProviderMessageID: providerMessageID,
		Status:            status,
		ErrorText:         strings.TrimSpace(errorText),
		Raw:               raw,
	}
}

// MapProviderStatus maps provider status vocabulary onto the lifecycle.
// ok is false for statuses that carry no lifecycle meaning.
func MapProviderStatus(status string) (state MessageState, ok bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "delivered":
		return MessageStateDelivered, true
	case "failed", "undelivered":
		return MessageStateFailed, true
	case "sent":
		return MessageStateSent, true
	}
	return "", false
}
