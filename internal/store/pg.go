package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"github.com/leadfoundry/lf-ingestor/internal/domain"
	"github.com/leadfoundry/lf-ingestor/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection. Zero values fall back to defaults:
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// RegisterReadReplica routes read queries to a replica DSN via dbresolver.
// Writes (and the ledger claim in particular) always go to the primary.
func RegisterReadReplica(db *gorm.DB, readDSN string, dialectorFor func(dsn string) gorm.Dialector) error {
	return db.Use(dbresolver.Register(dbresolver.Config{
		Replicas: []gorm.Dialector{dialectorFor(readDSN)},
	}))
}

// LookupIdempotencyRecord retrieves a record by token
func (s *pgStore) LookupIdempotencyRecord(ctx context.Context, token string) (*schema.IdempotencyRecord, error) {
	var record schema.IdempotencyRecord
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up idempotency record: %w", err)
	}

	return &record, nil
}

// ClaimIdempotencyToken atomically creates a processing record for the token.
// A single INSERT ... ON CONFLICT DO NOTHING against the token primary key is
// the linchpin of the at-most-once guarantee: of N concurrent attempts,
// exactly one insert affects a row.
func (s *pgStore) ClaimIdempotencyToken(ctx context.Context, token, fingerprint string) error {
	record := schema.IdempotencyRecord{
		Token:              token,
		RequestFingerprint: fingerprint,
		Status:             schema.IdempotencyStatusProcessing,
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoNothing: true,
	}).Create(&record)
	if result.Error != nil {
		return fmt.Errorf("failed to claim idempotency token: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return domain.ErrDuplicateClaim
	}

	return nil
}

// FinalizeIdempotencySuccess transitions a processing record to succeeded
func (s *pgStore) FinalizeIdempotencySuccess(ctx context.Context, token string, leadID uint64, snapshot []byte) error {
	return s.finalizeIdempotency(ctx, token, schema.IdempotencyStatusSucceeded, &leadID, snapshot)
}

// FinalizeIdempotencyFailure transitions a processing record to failed
func (s *pgStore) FinalizeIdempotencyFailure(ctx context.Context, token string, snapshot []byte) error {
	return s.finalizeIdempotency(ctx, token, schema.IdempotencyStatusFailed, nil, snapshot)
}

// finalizeIdempotency performs the single conditional UPDATE that moves a
// record to a terminal state. The status = 'processing' guard makes the
// transition happen at most once; a second finalization affects zero rows.
func (s *pgStore) finalizeIdempotency(ctx context.Context, token string, status schema.IdempotencyStatus, leadID *uint64, snapshot []byte) error {
	updates := map[string]interface{}{
		"status":     status,
		"response":   snapshot,
		"updated_at": time.Now().UTC(),
	}
	if leadID != nil {
		updates["lead_id"] = *leadID
	}

	result := s.db.WithContext(ctx).Clauses(dbresolver.Write).
		Model(&schema.IdempotencyRecord{}).
		Where("token = ? AND status = ?", token, schema.IdempotencyStatusProcessing).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to finalize idempotency record: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return domain.ErrAlreadyFinalized
	}

	return nil
}

// UpsertLead inserts a lead or merges mutable attributes on email conflict.
// Last writer wins on phone/name/source; status and company are never touched
// by the ingestion path.
func (s *pgStore) UpsertLead(ctx context.Context, input UpsertLeadInput) (*schema.Lead, error) {
	lead := schema.Lead{
		Email:  input.Email,
		Phone:  input.Phone,
		Name:   input.Name,
		Source: input.Source,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "email"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"phone":      input.Phone,
			"name":       input.Name,
			"source":     input.Source,
			"updated_at": time.Now().UTC(),
		}),
	}).Clauses(clause.Returning{}).Create(&lead).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert lead: %w", err)
	}

	return &lead, nil
}

// GetLeadByID retrieves a lead by its surrogate ID
func (s *pgStore) GetLeadByID(ctx context.Context, id uint64) (*schema.Lead, error) {
	var lead schema.Lead
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&lead).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}

	return &lead, nil
}

// ApplyWebhookStatus updates a lead's status and appends the audit event in
// one transaction. A zero-row status update means the lead does not exist and
// is reported as domain.ErrLeadNotFound rather than silently succeeding.
func (s *pgStore) ApplyWebhookStatus(ctx context.Context, leadID uint64, status schema.LeadStatus, payload []byte) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&schema.Lead{}).
			Where("id = ?", leadID).
			Updates(map[string]interface{}{
				"status":     status,
				"updated_at": time.Now().UTC(),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update lead status: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.ErrLeadNotFound
		}

		event := schema.LeadEvent{
			LeadID:    leadID,
			EventType: schema.LeadEventTypeWebhookUpdate,
			Payload:   payload,
		}
		if err := tx.Create(&event).Error; err != nil {
			return fmt.Errorf("failed to create lead event: %w", err)
		}

		return nil
	})
}

// EnrichLead applies the enrichment worker's mutation and appends the audit
// event in one transaction
func (s *pgStore) EnrichLead(ctx context.Context, leadID uint64, company string, status schema.LeadStatus) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&schema.Lead{}).
			Where("id = ?", leadID).
			Updates(map[string]interface{}{
				"company":    company,
				"status":     status,
				"updated_at": time.Now().UTC(),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to enrich lead: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.ErrLeadNotFound
		}

		payload, err := json.Marshal(map[string]string{"company": company, "status": string(status)})
		if err != nil {
			return fmt.Errorf("failed to marshal event payload: %w", err)
		}

		event := schema.LeadEvent{
			LeadID:    leadID,
			EventType: schema.LeadEventTypeProcessed,
			Payload:   payload,
		}
		if err := tx.Create(&event).Error; err != nil {
			return fmt.Errorf("failed to create lead event: %w", err)
		}

		return nil
	})
}
