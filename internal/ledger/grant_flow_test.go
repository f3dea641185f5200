package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medishare/internal/ledger"
	"medishare/pkg/domain"
	"medishare/pkg/testutil"
)

func TestGrantLifecycle(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemoryStore()

	testutil.Given(t, "a document shared with a recipient", func(t *testing.T) {
		outcome, err := store.Grant(ctx, "doc-1", "patient-7", domain.RolePatient)
		require.NoError(t, err)
		require.Equal(t, ledger.OutcomeCreated, outcome)

		testutil.When(t, "the same share is granted again", func(t *testing.T) {
			outcome, err := store.Grant(ctx, "doc-1", "patient-7", domain.RolePatient)
			require.NoError(t, err)

			testutil.Then(t, "the duplicate is absorbed, not duplicated", func(t *testing.T) {
				assert.Equal(t, ledger.OutcomeAlreadyExists, outcome)
				records, err := store.ListRecipients(ctx, "doc-1")
				require.NoError(t, err)
				assert.Len(t, records, 1)
			})
		})

		testutil.When(t, "the share is revoked", func(t *testing.T) {
			require.NoError(t, store.Revoke(ctx, "doc-1", "patient-7"))

			testutil.Then(t, "it leaves the read side but keeps its audit row", func(t *testing.T) {
				records, err := store.ListRecipients(ctx, "doc-1")
				require.NoError(t, err)
				assert.Empty(t, records)

				record, err := store.Get(ctx, "doc-1", "patient-7")
				require.NoError(t, err)
				assert.Equal(t, domain.ShareRevoked, record.Status)
			})
		})
	})
}
