package domain

// Outcome is the result of one dispatch attempt. Failures are data, not errors.
type Outcome struct {
	Recipient         string `json:"recipient"`
	MessageID         string `json:"message_id,omitempty"` // empty when logging was skipped
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	ErrorReason       string `json:"error_reason,omitempty"`
}

// BulkStatus summarizes a bulk run for a human operator.
type BulkStatus string

const (
	BulkStatusAllSucceeded   BulkStatus = "all_succeeded"
	BulkStatusPartialFailure BulkStatus = "partial_failure"
	BulkStatusAllFailed      BulkStatus = "all_failed"
)

// BulkSendResult aggregates the per-recipient outcomes of one bulk run.
// Outcomes are in input order.
type BulkSendResult struct {
	SuccessCount int       `json:"success_count"`
	FailedCount  int       `json:"failed_count"`
	Outcomes     []Outcome `json:"outcomes"`
}

// Add appends an outcome and updates the counters.
func (r *BulkSendResult) Add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	if o.Success {
		r.SuccessCount++
	} else {
		r.FailedCount++
	}
}

// Total is the number of recipients attempted.
func (r *BulkSendResult) Total() int {
	return r.SuccessCount + r.FailedCount
}

// HasFailures reports whether any recipient failed.
func (r *BulkSendResult) HasFailures() bool {
	return r.FailedCount > 0
}

// Status classifies the run. An empty run counts as all succeeded.
func (r *BulkSendResult) Status() BulkStatus {
	switch {
	case r.FailedCount == 0:
		return BulkStatusAllSucceeded
	case r.SuccessCount == 0:
		return BulkStatusAllFailed
	default:
		return BulkStatusPartialFailure
	}
}
