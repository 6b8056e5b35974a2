package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadfoundry/lf-ingestor/internal/domain"
	"github.com/leadfoundry/lf-ingestor/internal/store/schema"
)

// =============================================================================
// Test Data Builders
// =============================================================================

// buildTestLead creates a test lead input with a unique email
func buildTestLead(tag string) UpsertLeadInput {
	return UpsertLeadInput{
		Email:  fmt.Sprintf("%s@example.com", tag),
		Phone:  "+15550001111",
		Name:   "Ada Lovelace",
		Source: "landing_page",
	}
}

// =============================================================================
// Test: Idempotency ledger
// =============================================================================

func testClaimIdempotencyToken(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("first claim creates a processing record", func(t *testing.T) {
		err := store.ClaimIdempotencyToken(ctx, "tok-claim-1", "fp-1")
		require.NoError(t, err)

		record, err := store.LookupIdempotencyRecord(ctx, "tok-claim-1")
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, "tok-claim-1", record.Token)
		assert.Equal(t, "fp-1", record.RequestFingerprint)
		assert.Equal(t, schema.IdempotencyStatusProcessing, record.Status)
		assert.Nil(t, record.LeadID)
		assert.False(t, record.Status.Terminal())
	})

	t.Run("second claim for the same token is rejected", func(t *testing.T) {
		err := store.ClaimIdempotencyToken(ctx, "tok-claim-2", "fp-1")
		require.NoError(t, err)

		err = store.ClaimIdempotencyToken(ctx, "tok-claim-2", "fp-other")
		require.ErrorIs(t, err, domain.ErrDuplicateClaim)

		// The original fingerprint must survive the losing claim
		record, err := store.LookupIdempotencyRecord(ctx, "tok-claim-2")
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, "fp-1", record.RequestFingerprint)
	})

	t.Run("lookup of an unknown token returns nil without error", func(t *testing.T) {
		record, err := store.LookupIdempotencyRecord(ctx, "tok-never-claimed")
		require.NoError(t, err)
		assert.Nil(t, record)
	})
}

func testFinalizeIdempotency(t *testing.T, store Store) {
	ctx := context.Background()

	snapshot := func(leadID uint64) []byte {
		b, err := json.Marshal(domain.LeadResponse{
			ID:     leadID,
			Email:  "snap@example.com",
			Status: string(schema.LeadStatusNew),
		})
		require.NoError(t, err)
		return b
	}

	t.Run("success finalization stores lead reference and snapshot", func(t *testing.T) {
		lead, err := store.UpsertLead(ctx, buildTestLead("finalize-success"))
		require.NoError(t, err)

		require.NoError(t, store.ClaimIdempotencyToken(ctx, "tok-fin-1", "fp"))
		require.NoError(t, store.FinalizeIdempotencySuccess(ctx, "tok-fin-1", lead.ID, snapshot(lead.ID)))

		record, err := store.LookupIdempotencyRecord(ctx, "tok-fin-1")
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, schema.IdempotencyStatusSucceeded, record.Status)
		require.NotNil(t, record.LeadID)
		assert.Equal(t, lead.ID, *record.LeadID)
		assert.True(t, record.Status.Terminal())

		var stored domain.LeadResponse
		require.NoError(t, json.Unmarshal(record.Response, &stored))
		assert.Equal(t, lead.ID, stored.ID)
	})

	t.Run("failure finalization stores the error snapshot", func(t *testing.T) {
		require.NoError(t, store.ClaimIdempotencyToken(ctx, "tok-fin-2", "fp"))
		require.NoError(t, store.FinalizeIdempotencyFailure(ctx, "tok-fin-2", []byte(`{"error":"invalid email"}`)))

		record, err := store.LookupIdempotencyRecord(ctx, "tok-fin-2")
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, schema.IdempotencyStatusFailed, record.Status)
		assert.Nil(t, record.LeadID)
		assert.True(t, record.Status.Terminal())
	})

	t.Run("a terminal record cannot be finalized again", func(t *testing.T) {
		lead, err := store.UpsertLead(ctx, buildTestLead("finalize-twice"))
		require.NoError(t, err)

		require.NoError(t, store.ClaimIdempotencyToken(ctx, "tok-fin-3", "fp"))
		require.NoError(t, store.FinalizeIdempotencySuccess(ctx, "tok-fin-3", lead.ID, snapshot(lead.ID)))

		err = store.FinalizeIdempotencySuccess(ctx, "tok-fin-3", lead.ID, snapshot(lead.ID))
		assert.ErrorIs(t, err, domain.ErrAlreadyFinalized)

		err = store.FinalizeIdempotencyFailure(ctx, "tok-fin-3", []byte(`{"error":"late"}`))
		assert.ErrorIs(t, err, domain.ErrAlreadyFinalized)

		// Status must not have regressed
		record, err := store.LookupIdempotencyRecord(ctx, "tok-fin-3")
		require.NoError(t, err)
		assert.Equal(t, schema.IdempotencyStatusSucceeded, record.Status)
	})

	t.Run("finalizing an unclaimed token reports already finalized", func(t *testing.T) {
		err := store.FinalizeIdempotencySuccess(ctx, "tok-fin-missing", 1, snapshot(1))
		assert.ErrorIs(t, err, domain.ErrAlreadyFinalized)
	})
}

// =============================================================================
// Test: Lead repository
// =============================================================================

func testUpsertLead(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("insert assigns an ID and the new status", func(t *testing.T) {
		input := buildTestLead("upsert-insert")
		lead, err := store.UpsertLead(ctx, input)
		require.NoError(t, err)
		require.NotNil(t, lead)
		assert.NotZero(t, lead.ID)
		assert.Equal(t, input.Email, lead.Email)
		assert.Equal(t, input.Phone, lead.Phone)
		assert.Equal(t, input.Name, lead.Name)
		assert.Equal(t, input.Source, lead.Source)
		assert.Equal(t, schema.LeadStatusNew, lead.Status)
	})

	t.Run("conflicting email merges attributes into the existing row", func(t *testing.T) {
		first, err := store.UpsertLead(ctx, buildTestLead("upsert-merge"))
		require.NoError(t, err)

		updated := buildTestLead("upsert-merge")
		updated.Phone = "+15559998888"
		updated.Name = "Ada King"
		updated.Source = "referral"

		second, err := store.UpsertLead(ctx, updated)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "+15559998888", second.Phone)
		assert.Equal(t, "Ada King", second.Name)
		assert.Equal(t, "referral", second.Source)

		// Verify the merge is visible to reads
		fetched, err := store.GetLeadByID(ctx, first.ID)
		require.NoError(t, err)
		require.NotNil(t, fetched)
		assert.Equal(t, "Ada King", fetched.Name)
	})

	t.Run("merge preserves status set by later stages", func(t *testing.T) {
		lead, err := store.UpsertLead(ctx, buildTestLead("upsert-status"))
		require.NoError(t, err)

		require.NoError(t, store.ApplyWebhookStatus(ctx, lead.ID, "qualified", []byte(`{"status":"qualified"}`)))

		again, err := store.UpsertLead(ctx, buildTestLead("upsert-status"))
		require.NoError(t, err)
		assert.Equal(t, lead.ID, again.ID)
		assert.Equal(t, schema.LeadStatus("qualified"), again.Status)
	})

	t.Run("unknown lead ID returns nil without error", func(t *testing.T) {
		lead, err := store.GetLeadByID(ctx, 999999999)
		require.NoError(t, err)
		assert.Nil(t, lead)
	})
}

// =============================================================================
// Test: Status mutations
// =============================================================================

func testApplyWebhookStatus(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("updates status and appends an audit event", func(t *testing.T) {
		lead, err := store.UpsertLead(ctx, buildTestLead("webhook-apply"))
		require.NoError(t, err)

		payload := []byte(`{"lead_id":1,"status":"contacted"}`)
		require.NoError(t, store.ApplyWebhookStatus(ctx, lead.ID, "contacted", payload))

		fetched, err := store.GetLeadByID(ctx, lead.ID)
		require.NoError(t, err)
		assert.Equal(t, schema.LeadStatus("contacted"), fetched.Status)
	})

	t.Run("unknown lead is a distinct no-op", func(t *testing.T) {
		err := store.ApplyWebhookStatus(ctx, 999999999, "contacted", []byte(`{}`))
		assert.ErrorIs(t, err, domain.ErrLeadNotFound)
	})
}

func testEnrichLead(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("sets company and processed status", func(t *testing.T) {
		lead, err := store.UpsertLead(ctx, buildTestLead("enrich"))
		require.NoError(t, err)

		require.NoError(t, store.EnrichLead(ctx, lead.ID, "Initech", schema.LeadStatusProcessed))

		fetched, err := store.GetLeadByID(ctx, lead.ID)
		require.NoError(t, err)
		assert.Equal(t, "Initech", fetched.Company)
		assert.Equal(t, schema.LeadStatusProcessed, fetched.Status)
	})

	t.Run("unknown lead returns not found", func(t *testing.T) {
		err := store.EnrichLead(ctx, 999999999, "Initech", schema.LeadStatusProcessed)
		assert.ErrorIs(t, err, domain.ErrLeadNotFound)
	})
}

// RunStoreTests runs the full store suite against an implementation
func RunStoreTests(t *testing.T, initDB func(t *testing.T) Store, cleanupDB func(t *testing.T)) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store Store)
	}{
		{"ClaimIdempotencyToken", testClaimIdempotencyToken},
		{"FinalizeIdempotency", testFinalizeIdempotency},
		{"UpsertLead", testUpsertLead},
		{"ApplyWebhookStatus", testApplyWebhookStatus},
		{"EnrichLead", testEnrichLead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := initDB(t)
			defer cleanupDB(t)
			tt.fn(t, store)
		})
	}
}
