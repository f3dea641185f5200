package document

import (
	"time"

	"medishare/pkg/domain"
)

// Document is the clinical record that triggers fan-out. It is owned by the
// clinical-write path; this subsystem reads it and mutates only FanOutState
// and FailedRecipients.
type Document struct {
	ID          domain.DocumentID
	Type        domain.DomainType
	AuthorID    string
	SubjectID   domain.SubjectID
	Title       string
	FinalizedAt time.Time

	FanOutState domain.FanOutState
	// FailedRecipients holds the recipients whose grant or enqueue failed on
	// the last fan-out attempt, for retry-sweep bookkeeping.
	FailedRecipients []domain.RecipientID
}
