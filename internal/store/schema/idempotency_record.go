package schema

import (
	"time"

	"gorm.io/datatypes"
)

// IdempotencyStatus is the lifecycle state of an idempotency record
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing is set by the first claimant of a token
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusSucceeded is terminal: the durable write happened
	IdempotencyStatusSucceeded IdempotencyStatus = "succeeded"
	// IdempotencyStatusFailed is terminal: validation or storage failed after the claim
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// Terminal reports whether the status admits no further transition
func (s IdempotencyStatus) Terminal() bool {
	return s == IdempotencyStatusSucceeded || s == IdempotencyStatusFailed
}

// IdempotencyRecord represents the idempotency_records table. The primary-key
// uniqueness of Token is what makes the claim atomic: exactly one concurrent
// insert for a given token succeeds.
type IdempotencyRecord struct {
	// Token is the client-supplied opaque idempotency key
	Token string `gorm:"column:token;primaryKey;type:text"`
	// RequestFingerprint is the SHA-256 of the canonicalized request body,
	// stored to detect token reuse with a different payload
	RequestFingerprint string `gorm:"column:request_fingerprint;not null;type:text"`
	// Status transitions processing -> succeeded | failed exactly once
	Status IdempotencyStatus `gorm:"column:status;not null;default:processing;type:text"`
	// LeadID references the produced lead, set only on success
	LeadID *uint64 `gorm:"column:lead_id"`
	// Response is the exact payload to replay on duplicate delivery
	Response datatypes.JSON `gorm:"column:response;type:jsonb"`
	// CreatedAt is the claim timestamp
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the finalization timestamp
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the IdempotencyRecord model
func (IdempotencyRecord) TableName() string {
	return "idempotency_records"
}
