package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/leadfoundry/lf-ingestor/internal/domain"
	"github.com/leadfoundry/lf-ingestor/internal/logger"
	"github.com/leadfoundry/lf-ingestor/internal/messaging"
	"github.com/leadfoundry/lf-ingestor/internal/store"
	"github.com/leadfoundry/lf-ingestor/internal/store/schema"
)

// SubmitRoute is the rate-limit subject prefix for lead submissions
const SubmitRoute = "POST:/leads"

// RateLimiter is the admission check consumed by the coordinator
type RateLimiter interface {
	// Check admits or denies one request for the subject key
	Check(ctx context.Context, route, subject string) bool
}

// Config holds coordinator tuning
type Config struct {
	// OpTimeout bounds every I/O call made during a submission
	OpTimeout time.Duration
	// StrictFingerprint rejects token reuse with a different payload instead
	// of replaying the stored snapshot
	StrictFingerprint bool
}

// Coordinator drives a single submission through the idempotent ingestion
// protocol: rate check, ledger claim, durable upsert, queue hand-off, ledger
// finalization. All coordination state lives in the durable store and the
// cache store; the coordinator itself is stateless and safe for concurrent
// use.
type Coordinator struct {
	limiter   RateLimiter
	store     store.Store
	publisher messaging.Publisher
	validate  *validator.Validate
	config    Config
}

// NewCoordinator creates an ingestion coordinator
func NewCoordinator(limiter RateLimiter, st store.Store, pub messaging.Publisher, cfg Config) *Coordinator {
	if cfg.OpTimeout == 0 {
		cfg.OpTimeout = 5 * time.Second
	}
	return &Coordinator{
		limiter:   limiter,
		store:     st,
		publisher: pub,
		validate:  validator.New(),
		config:    cfg,
	}
}

// Submit processes one lead submission attempt. Exactly one of N concurrent
// attempts for the same token performs the durable write; the rest converge
// to the in-progress signal or the terminal snapshot.
//
// Error taxonomy surfaced to the caller: domain.ErrRateLimitExceeded,
// domain.ErrMissingIdempotencyKey, *domain.ValidationError,
// domain.ErrFingerprintMismatch, domain.ErrClaimConflict, and wrapped
// infrastructure errors for ledger/repository failures.
func (c *Coordinator) Submit(ctx context.Context, token, clientKey string, body domain.LeadSubmission) (*domain.SubmissionResult, error) {
	// The rate check runs before any durable write to bound load on the
	// ledger itself.
	if admitted := c.checkRate(ctx, clientKey); !admitted {
		return nil, domain.ErrRateLimitExceeded
	}

	if token == "" {
		return nil, domain.ErrMissingIdempotencyKey
	}

	fingerprint, err := Fingerprint(body)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint request: %w", err)
	}

	record, err := c.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if record != nil {
		return c.resolveExisting(ctx, token, record, fingerprint)
	}

	if err := c.claim(ctx, token, fingerprint); err != nil {
		if errors.Is(err, domain.ErrDuplicateClaim) {
			// Lost the race: converge to the winner's outcome, never write
			return c.resolveLostClaim(ctx, token, fingerprint)
		}
		return nil, err
	}

	// The claim is held from here on; every failure path must finalize the
	// record so a retry with the same token sees a terminal state instead of
	// hanging on "processing".
	if err := c.validateBody(body); err != nil {
		c.finalizeFailure(ctx, token, err.Error())
		return nil, err
	}

	lead, err := c.upsertLead(ctx, body)
	if err != nil {
		c.finalizeFailure(ctx, token, "database error")
		return nil, err
	}

	// Queue hand-off failure is non-fatal: the durable write already
	// happened, so the record still finalizes as succeeded. Redelivery is the
	// publisher's concern, not this request's.
	c.publishTask(ctx, lead.ID)

	snapshot, err := json.Marshal(domain.LeadResponse{
		ID:     lead.ID,
		Email:  lead.Email,
		Phone:  lead.Phone,
		Name:   lead.Name,
		Source: lead.Source,
		Status: string(lead.Status),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response snapshot: %w", err)
	}

	if err := c.finalizeSuccess(ctx, token, lead.ID, snapshot); err != nil {
		return nil, err
	}

	return &domain.SubmissionResult{
		Outcome:  domain.OutcomeCreated,
		LeadID:   lead.ID,
		Response: snapshot,
	}, nil
}

// resolveExisting maps an already-present ledger record to a result:
// terminal records replay their snapshot verbatim, a processing record yields
// the in-progress signal. The caller retries on its own schedule; this never
// blocks waiting on another attempt.
func (c *Coordinator) resolveExisting(ctx context.Context, token string, record *schema.IdempotencyRecord, fingerprint string) (*domain.SubmissionResult, error) {
	if c.config.StrictFingerprint && record.RequestFingerprint != fingerprint {
		return nil, domain.ErrFingerprintMismatch
	}

	if record.Status.Terminal() {
		var leadID uint64
		if record.LeadID != nil {
			leadID = *record.LeadID
		}
		return &domain.SubmissionResult{
			Outcome:  domain.OutcomeReplayed,
			LeadID:   leadID,
			Response: json.RawMessage(record.Response),
		}, nil
	}

	return &domain.SubmissionResult{Outcome: domain.OutcomeInProgress}, nil
}

// resolveLostClaim re-reads after a duplicate-claim signal. If the winner has
// finalized, the snapshot is replayed; if it is still processing, the caller
// gets the in-progress signal. A vanished record is a conflict the caller
// must retry.
func (c *Coordinator) resolveLostClaim(ctx context.Context, token, fingerprint string) (*domain.SubmissionResult, error) {
	record, err := c.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrClaimConflict
	}
	return c.resolveExisting(ctx, token, record, fingerprint)
}

func (c *Coordinator) checkRate(ctx context.Context, clientKey string) bool {
	opCtx, cancel := context.WithTimeout(ctx, c.config.OpTimeout)
	defer cancel()
	return c.limiter.Check(opCtx, SubmitRoute, clientKey)
}

func (c *Coordinator) lookup(ctx context.Context, token string) (*schema.IdempotencyRecord, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.config.OpTimeout)
	defer cancel()
	record, err := c.store.LookupIdempotencyRecord(opCtx, token)
	if err != nil {
		return nil, fmt.Errorf("ledger lookup failed: %w", err)
	}
	return record, nil
}

func (c *Coordinator) claim(ctx context.Context, token, fingerprint string) error {
	opCtx, cancel := context.WithTimeout(ctx, c.config.OpTimeout)
	defer cancel()
	return c.store.ClaimIdempotencyToken(opCtx, token, fingerprint)
}

func (c *Coordinator) validateBody(body domain.LeadSubmission) error {
	err := c.validate.Struct(body)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		if fieldErrs[0].Field() == "Email" {
			return domain.NewValidationError("invalid email")
		}
		return domain.NewValidationError(fmt.Sprintf("invalid field %s", fieldErrs[0].Field()))
	}
	return domain.NewValidationError("invalid request body")
}

func (c *Coordinator) upsertLead(ctx context.Context, body domain.LeadSubmission) (*schema.Lead, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.config.OpTimeout)
	defer cancel()
	lead, err := c.store.UpsertLead(opCtx, store.UpsertLeadInput{
		Email:  body.Email,
		Phone:  body.Phone,
		Name:   body.Name,
		Source: body.Source,
	})
	if err != nil {
		return nil, fmt.Errorf("lead upsert failed: %w", err)
	}
	return lead, nil
}

func (c *Coordinator) publishTask(ctx context.Context, leadID uint64) {
	opCtx, cancel := context.WithTimeout(ctx, c.config.OpTimeout)
	defer cancel()
	task := &domain.LeadTask{
		TaskID: ulid.Make().String(),
		LeadID: leadID,
	}
	if err := c.publisher.PublishLeadTask(opCtx, task); err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to publish lead task: %w", err),
			zap.Uint64("lead_id", leadID), zap.String("task_id", task.TaskID))
	}
}

func (c *Coordinator) finalizeSuccess(ctx context.Context, token string, leadID uint64, snapshot []byte) error {
	opCtx, cancel := context.WithTimeout(ctx, c.config.OpTimeout)
	defer cancel()
	err := c.store.FinalizeIdempotencySuccess(opCtx, token, leadID, snapshot)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyFinalized) {
			// Should not happen while this attempt holds the claim
			logger.WarnCtx(ctx, "Success finalization hit an already-terminal record",
				zap.String("token", token))
			return nil
		}
		return fmt.Errorf("ledger finalization failed: %w", err)
	}
	return nil
}

// finalizeFailure records a terminal failure snapshot on the claimed record.
// Best effort: the original error is what surfaces to the caller either way.
func (c *Coordinator) finalizeFailure(ctx context.Context, token, detail string) {
	opCtx, cancel := context.WithTimeout(ctx, c.config.OpTimeout)
	defer cancel()

	snapshot, err := json.Marshal(map[string]string{"error": detail})
	if err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to marshal failure snapshot: %w", err))
		return
	}
	if err := c.store.FinalizeIdempotencyFailure(opCtx, token, snapshot); err != nil &&
		!errors.Is(err, domain.ErrAlreadyFinalized) {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to finalize failed record: %w", err),
			zap.String("token", token))
	}
}
