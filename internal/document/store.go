package document

import (
	"context"

	"medishare/pkg/domain"
)

type Store interface {
	Get(ctx context.Context, id domain.DocumentID) (*Document, error)
	// Put registers a document reference. The clinical-write path owns the
	// document; this subsystem stores the projection it needs for fan-out.
	Put(ctx context.Context, doc *Document) error
	// SetFanOutState records fan-out progress. Failed may be nil when the
	// state is complete.
	SetFanOutState(ctx context.Context, id domain.DocumentID, state domain.FanOutState, failed []domain.RecipientID) error
	ListByFanOutState(ctx context.Context, state domain.FanOutState) ([]*Document, error)
}
