package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeliveryEvent(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		ev := NewDeliveryEvent(" SM123 ", "delivered", "", "raw")
		valid, ok := ev.(ValidEvent)
		require.True(t, ok)
		assert.Equal(t, "SM123", valid.ProviderMessageID)
		assert.Equal(t, "delivered", valid.Status)
		assert.Equal(t, "raw", valid.RawPayload())
	})

	t.Run("missing id", func(t *testing.T) {
		ev := NewDeliveryEvent("", "delivered", "", "raw")
		bad, ok := ev.(MalformedEvent)
		require.True(t, ok)
		assert.Equal(t, "missing provider message id", bad.Reason)
	})

	t.Run("missing status", func(t *testing.T) {
		ev := NewDeliveryEvent("SM123", "  ", "", "raw")
		bad, ok := ev.(MalformedEvent)
		require.True(t, ok)
		assert.Equal(t, "missing status", bad.Reason)
	})

	t.Run("missing both", func(t *testing.T) {
		_, ok := NewDeliveryEvent("", "", "", "{}").(MalformedEvent)
		assert.True(t, ok)
	})
}

func TestMapProviderStatus(t *testing.T) {
	tests := []struct {
		in    string
		want  MessageState
		known bool
	}{
		{"delivered", MessageStateDelivered, true},
		{"DELIVERED", MessageStateDelivered, true},
		{"failed", MessageStateFailed, true},
		{"undelivered", MessageStateFailed, true},
		{"sent", MessageStateSent, true},
		{"queued", "", false},
		{"read", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := MapProviderStatus(tt.in)
			assert.Equal(t, tt.known, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBulkSendResult(t *testing.T) {
	var empty BulkSendResult
	assert.Equal(t, BulkStatusAllSucceeded, empty.Status())
	assert.Equal(t, 0, empty.Total())

	var r BulkSendResult
	r.Add(Outcome{Recipient: "+14155551234", Success: true})
	r.Add(Outcome{Recipient: "bad", Success: false, ErrorReason: "invalid phone number format"})
	assert.Equal(t, 1, r.SuccessCount)
	assert.Equal(t, 1, r.FailedCount)
	assert.Equal(t, 2, r.Total())
	assert.True(t, r.HasFailures())
	assert.Equal(t, BulkStatusPartialFailure, r.Status())
	assert.Equal(t, "+14155551234", r.Outcomes[0].Recipient)

	var failed BulkSendResult
	failed.Add(Outcome{Success: false})
	assert.Equal(t, BulkStatusAllFailed, failed.Status())
}
