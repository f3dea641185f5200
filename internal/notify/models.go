// Package notify tracks per-recipient inbox entries. Entries are decoupled
// from the share ledger: delivery may fail and retry without affecting
// visibility grants, and a grant is never rolled back because its
// notification failed.
package notify

import (
	"time"

	"medishare/pkg/domain"
)

// Entry describes "you have a new document" for one recipient.
type Entry struct {
	ID          domain.NotificationID
	RecipientID domain.RecipientID
	DocumentID  domain.DocumentID
	Message     string
	CreatedAt   time.Time
	ReadAt      *time.Time
	Status      domain.DeliveryStatus
	// FailureReason holds the last delivery error when Status is failed.
	FailureReason string
}
