package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadfoundry/lf-ingestor/internal/domain"
)

func TestFingerprint(t *testing.T) {
	t.Run("is stable for identical submissions", func(t *testing.T) {
		body := domain.LeadSubmission{
			Email:  "ada@example.com",
			Phone:  "+15550001111",
			Name:   "Ada Lovelace",
			Source: "landing_page",
		}

		fp1, err := Fingerprint(body)
		require.NoError(t, err)
		fp2, err := Fingerprint(body)
		require.NoError(t, err)

		assert.Equal(t, fp1, fp2)
		assert.Len(t, fp1, 64) // hex encoded SHA-256
	})

	t.Run("is independent of JSON key order", func(t *testing.T) {
		// Maps iterate in random order, so marshaling the same map twice can
		// emit keys differently. Canonicalization must absorb that.
		payload := map[string]string{
			"email":  "ada@example.com",
			"phone":  "+15550001111",
			"name":   "Ada Lovelace",
			"source": "landing_page",
		}

		fp1, err := Fingerprint(payload)
		require.NoError(t, err)
		fp2, err := Fingerprint(payload)
		require.NoError(t, err)

		assert.Equal(t, fp1, fp2)
	})

	t.Run("differs when any field differs", func(t *testing.T) {
		base := domain.LeadSubmission{Email: "ada@example.com", Name: "Ada"}
		changed := domain.LeadSubmission{Email: "ada@example.com", Name: "Grace"}

		fp1, err := Fingerprint(base)
		require.NoError(t, err)
		fp2, err := Fingerprint(changed)
		require.NoError(t, err)

		assert.NotEqual(t, fp1, fp2)
	})
}
