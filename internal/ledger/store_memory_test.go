package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medishare/pkg/domain"
	"medishare/pkg/platform/sentinel"
)

func TestGrantCreatesOnce(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	outcome, err := store.Grant(ctx, "doc-1", "patient-7", domain.RolePatient)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	outcome, err = store.Grant(ctx, "doc-1", "patient-7", domain.RolePatient)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyExists, outcome)

	records, err := store.ListRecipients(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.ShareGranted, records[0].Status)
}

func TestGrantSamePairDifferentDocuments(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	outcome, err := store.Grant(ctx, "doc-1", "ph-1", domain.RolePharmacist)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	outcome, err = store.Grant(ctx, "doc-2", "ph-1", domain.RolePharmacist)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
}

func TestRevokeKeepsRecord(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	_, err := store.Grant(ctx, "doc-1", "ins-3", domain.RoleInsurer)
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, "doc-1", "ins-3"))

	// Revoked records disappear from the read side...
	records, err := store.ListRecipients(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, records)

	// ...but the row survives for audit.
	record, err := store.Get(ctx, "doc-1", "ins-3")
	require.NoError(t, err)
	assert.Equal(t, domain.ShareRevoked, record.Status)

	// Re-granting after revoke is still AlreadyExists: grants are permanent.
	outcome, err := store.Grant(ctx, "doc-1", "ins-3", domain.RoleInsurer)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyExists, outcome)
}

func TestRevokeMissingRecord(t *testing.T) {
	store := NewInMemoryStore()
	err := store.Revoke(context.Background(), "doc-1", "nobody")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestListRecipientsOrdered(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	for _, id := range []domain.RecipientID{"ph-2", "ins-3", "patient-7", "ph-1"} {
		_, err := store.Grant(ctx, "doc-1", id, domain.RolePharmacist)
		require.NoError(t, err)
	}

	records, err := store.ListRecipients(ctx, "doc-1")
	require.NoError(t, err)

	ids := make([]domain.RecipientID, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.RecipientID)
	}
	assert.Equal(t, []domain.RecipientID{"ins-3", "patient-7", "ph-1", "ph-2"}, ids)
}
