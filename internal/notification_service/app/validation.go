package app

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxBodyLength is the single-segment SMS limit, in characters.
const MaxBodyLength = 160

// Failure reasons recorded on FAILED messages.
const (
	ReasonInvalidRecipient = "invalid phone number format"
	ReasonEmptyBody        = "message body is empty"
	ReasonBodyTooLong      = "message body exceeds 160 characters"
	ReasonNotConfigured    = "provider not configured"
	ReasonTimeout          = "timeout"
	ReasonNoProviderID     = "provider returned no message id"
)

// '+', a non-zero digit, then 9 to 14 more digits.
var recipientPattern = regexp.MustCompile(`^\+[1-9]\d{9,14}$`)

// IsValidRecipient reports whether recipient is in international format.
func IsValidRecipient(recipient string) bool {
	return recipientPattern.MatchString(recipient)
}

// validateBody returns a failure reason, or "" when body is acceptable.
func validateBody(body string) string {
	if strings.TrimSpace(body) == "" {
		return ReasonEmptyBody
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return ReasonBodyTooLong
	}
	return ""
}
