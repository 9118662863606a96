package domain

import "errors"

var (
	ErrMessageNotFound            = errors.New("message not found")
	ErrInvalidTransition          = errors.New("invalid state transition")
	ErrDuplicateProviderMessageID = errors.New("provider message id already assigned to another message")
	ErrProviderMessageIDImmutable = errors.New("provider message id cannot be changed once set")
	ErrChallengeNotFound          = errors.New("verification challenge not found or expired")
	ErrChallengeMismatch          = errors.New("verification code does not match")
	ErrChallengeAttemptsExhausted = errors.New("verification attempts exhausted")
)
