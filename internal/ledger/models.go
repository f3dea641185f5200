// Package ledger is the durable record of document-to-recipient visibility
// grants. One row per (document, recipient) pair; the uniqueness constraint
// on that pair is the subsystem's single idempotency boundary.
package ledger

import (
	"time"

	"medishare/pkg/domain"
)

// ShareRecord states that a document is visible to a recipient. Records are
// created once and never deleted; revocation flips the status so the audit
// trail survives.
type ShareRecord struct {
	DocumentID  domain.DocumentID
	RecipientID domain.RecipientID
	Role        domain.RecipientRole
	GrantedAt   time.Time
	Status      domain.ShareStatus
}

// GrantOutcome reports whether a grant created a new record or hit the
// uniqueness constraint. AlreadyExists is a success: it is what makes the
// orchestrator idempotent under retry and duplicate event delivery.
type GrantOutcome string

const (
	OutcomeCreated       GrantOutcome = "created"
	OutcomeAlreadyExists GrantOutcome = "already_exists"
)
