package notify

import (
	"context"
	"time"

	"medishare/pkg/domain"
)

type Store interface {
	Append(ctx context.Context, entry Entry) error
	Get(ctx context.Context, id domain.NotificationID) (*Entry, error)
	SetStatus(ctx context.Context, id domain.NotificationID, status domain.DeliveryStatus, reason string) error
	MarkRead(ctx context.Context, id domain.NotificationID, at time.Time) error
	ListByRecipient(ctx context.Context, recipientID domain.RecipientID, unreadOnly bool) ([]Entry, error)
	// ListQueuedBefore returns entries still queued whose creation predates
	// the cutoff, for the retry sweep.
	ListQueuedBefore(ctx context.Context, cutoff time.Time) ([]Entry, error)
	// ExistsFor reports whether any entry exists for the pair, regardless of
	// status. Guards against re-notifying a recipient whose grant predates a
	// retried fan-out.
	ExistsFor(ctx context.Context, recipientID domain.RecipientID, docID domain.DocumentID) (bool, error)
}
