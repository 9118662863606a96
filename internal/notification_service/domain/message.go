package domain

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// MessageState is the lifecycle state of an outbound message.
type MessageState string

const (
	MessageStatePending   MessageState = "PENDING"
	MessageStateSent      MessageState = "SENT"
	MessageStateDelivered MessageState = "DELIVERED"
	MessageStateFailed    MessageState = "FAILED"
)

// allowedTransitions lists the states each state may move to.
// DELIVERED is reachable from PENDING to tolerate callbacks that overtake the
// local SENT write.
var allowedTransitions = map[MessageState][]MessageState{
	MessageStatePending: {MessageStateSent, MessageStateDelivered, MessageStateFailed},
	MessageStateSent:    {MessageStateDelivered, MessageStateFailed},
}

// IsValid reports whether s is a known state.
func (s MessageState) IsValid() bool {
	switch s {
	case MessageStatePending, MessageStateSent, MessageStateDelivered, MessageStateFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are accepted from s.
func (s MessageState) IsTerminal() bool {
	return s == MessageStateDelivered || s == MessageStateFailed
}

// CanTransitionTo reports whether the state machine allows s -> to.
func (s MessageState) CanTransitionTo(to MessageState) bool {
	for _, next := range allowedTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// PredecessorsOf returns every state from which to is reachable in one step.
func PredecessorsOf(to MessageState) []MessageState {
	var from []MessageState
	for _, s := range []MessageState{MessageStatePending, MessageStateSent} {
		if s.CanTransitionTo(to) {
			from = append(from, s)
		}
	}
	return from
}

func (s MessageState) String() string { return string(s) }

// Value implements driver.Valuer.
func (s MessageState) Value() (driver.Value, error) {
	return string(s), nil
}

// Scan implements sql.Scanner.
func (s *MessageState) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		*s = MessageState(v)
	case []byte:
		*s = MessageState(v)
	default:
		return fmt.Errorf("failed to scan MessageState: unexpected type %T", value)
	}
	if !s.IsValid() {
		return fmt.Errorf("failed to scan MessageState: unknown value %q", string(*s))
	}
	return nil
}

// MessageRecord is one attempted outbound message.
type MessageRecord struct {
	ID                string       `json:"id"`
	Recipient         string       `json:"recipient"`
	Body              string       `json:"body"`
	State             MessageState `json:"state"`
	ProviderMessageID *string      `json:"provider_message_id,omitempty"`
	ErrorDetail       *string      `json:"error_detail,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// StateUpdate is a requested transition of a MessageRecord.
type StateUpdate struct {
	To                MessageState
	ProviderMessageID *string
	ErrorDetail       *string
}

// ApplyUpdate validates upd against rec and mutates rec on success.
// Stores call it while holding the record's lock so the check and the write
// are atomic.
func ApplyUpdate(rec *MessageRecord, upd StateUpdate, now time.Time) error {
	if !rec.State.CanTransitionTo(upd.To) {
		return fmt.Errorf("%w: %s -> %s for message %s", ErrInvalidTransition, rec.State, upd.To, rec.ID)
	}
	if upd.ProviderMessageID != nil {
		if rec.ProviderMessageID != nil && *rec.ProviderMessageID != *upd.ProviderMessageID {
			return fmt.Errorf("%w: message %s", ErrProviderMessageIDImmutable, rec.ID)
		}
		pid := *upd.ProviderMessageID
		rec.ProviderMessageID = &pid
	}
	rec.State = upd.To
	if upd.To == MessageStateFailed {
		detail := "delivery failed"
		if upd.ErrorDetail != nil && *upd.ErrorDetail != "" {
			detail = *upd.ErrorDetail
		}
		rec.ErrorDetail = &detail
	}
	rec.UpdatedAt = now
	return nil
}

// Clone returns a deep copy so callers cannot mutate stored records.
func (r *MessageRecord) Clone() *MessageRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.ProviderMessageID != nil {
		v := *r.ProviderMessageID
		c.ProviderMessageID = &v
	}
	if r.ErrorDetail != nil {
		v := *r.ErrorDetail
		c.ErrorDetail = &v
	}
	return &c
}
