package domain

import "encoding/json"

// LeadSubmission is the client-supplied body of a lead submission
type LeadSubmission struct {
	Email  string `json:"email" validate:"required,email"`
	Phone  string `json:"phone" validate:"omitempty,max=32"`
	Name   string `json:"name" validate:"omitempty,max=255"`
	Source string `json:"source" validate:"omitempty,max=255"`
}

// SubmissionOutcome identifies the terminal state of a submission attempt
type SubmissionOutcome string

const (
	// OutcomeCreated means this attempt performed the durable write
	OutcomeCreated SubmissionOutcome = "created"
	// OutcomeReplayed means a terminal snapshot from an earlier attempt was returned
	OutcomeReplayed SubmissionOutcome = "replayed"
	// OutcomeInProgress means another attempt holds the claim and has not finalized
	OutcomeInProgress SubmissionOutcome = "in_progress"
)

// SubmissionResult is the outcome of an ingestion attempt.
// Response holds the exact snapshot bytes to return to the client; for
// replayed submissions these are byte-for-byte identical to the first
// successful response.
type SubmissionResult struct {
	Outcome  SubmissionOutcome
	LeadID   uint64
	Response json.RawMessage
}

// LeadResponse is the canonical response payload for a persisted lead.
// It is also the shape stored in the idempotency ledger snapshot.
type LeadResponse struct {
	ID     uint64 `json:"id"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	Name   string `json:"name"`
	Source string `json:"source"`
	Status string `json:"status"`
}

// LeadTask is the message handed off to the enrichment queue after a
// successful ingestion. TaskID doubles as the broker-level dedupe key.
type LeadTask struct {
	TaskID string `json:"task_id"`
	LeadID uint64 `json:"lead_id"`
}
