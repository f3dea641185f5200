package ledger

import (
	"context"

	"medishare/pkg/domain"
)

type Store interface {
	// Grant upserts the (document, recipient) pair. Granting an existing pair
	// is a no-op that reports OutcomeAlreadyExists rather than failing.
	Grant(ctx context.Context, docID domain.DocumentID, recipientID domain.RecipientID, role domain.RecipientRole) (GrantOutcome, error)
	// Revoke marks the record revoked. The row is kept for audit.
	Revoke(ctx context.Context, docID domain.DocumentID, recipientID domain.RecipientID) error
	// ListRecipients returns all GRANTED records for a document.
	ListRecipients(ctx context.Context, docID domain.DocumentID) ([]ShareRecord, error)
	Get(ctx context.Context, docID domain.DocumentID, recipientID domain.RecipientID) (*ShareRecord, error)
}
