package store

import (
	"context"

	"github.com/leadfoundry/lf-ingestor/internal/store/schema"
)

// UpsertLeadInput carries the mutable attributes merged on natural-key conflict
type UpsertLeadInput struct {
	Email  string
	Phone  string
	Name   string
	Source string
}

// Store defines the interface for database operations. The idempotency ledger
// operations rely entirely on the store's uniqueness constraint and
// conditional updates for atomicity; there is no application-level locking.
type Store interface {
	// LookupIdempotencyRecord retrieves a record by token, nil if absent
	LookupIdempotencyRecord(ctx context.Context, token string) (*schema.IdempotencyRecord, error)
	// ClaimIdempotencyToken atomically creates a processing record for the token.
	// Returns domain.ErrDuplicateClaim if another attempt already holds the token.
	ClaimIdempotencyToken(ctx context.Context, token, fingerprint string) error
	// FinalizeIdempotencySuccess transitions a processing record to succeeded.
	// Returns domain.ErrAlreadyFinalized if the record is already terminal.
	FinalizeIdempotencySuccess(ctx context.Context, token string, leadID uint64, snapshot []byte) error
	// FinalizeIdempotencyFailure transitions a processing record to failed.
	// Returns domain.ErrAlreadyFinalized if the record is already terminal.
	FinalizeIdempotencyFailure(ctx context.Context, token string, snapshot []byte) error

	// UpsertLead inserts a lead or merges mutable attributes on email conflict,
	// returning the resulting row including the server-assigned ID and status
	UpsertLead(ctx context.Context, input UpsertLeadInput) (*schema.Lead, error)
	// GetLeadByID retrieves a lead by its surrogate ID, nil if absent
	GetLeadByID(ctx context.Context, id uint64) (*schema.Lead, error)

	// ApplyWebhookStatus updates a lead's status and appends a webhook_update
	// audit event in one transaction. Returns domain.ErrLeadNotFound when the
	// lead does not exist; no lead is ever fabricated.
	ApplyWebhookStatus(ctx context.Context, leadID uint64, status schema.LeadStatus, payload []byte) error
	// EnrichLead applies the worker's enrichment (company + status) and appends
	// a lead_processed audit event in one transaction. Returns
	// domain.ErrLeadNotFound when the lead does not exist.
	EnrichLead(ctx context.Context, leadID uint64, company string, status schema.LeadStatus) error
}
