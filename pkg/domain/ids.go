package domain

import (
	"github.com/google/uuid"

	dErrors "medishare/pkg/domain-errors"
)

// DocumentID identifies a clinical document. Documents are owned by the
// clinical-write path; this subsystem only references them.
type DocumentID string

// RecipientID identifies a party entitled to see a document: a patient, an
// insurer staff identity, a pharmacist. IDs come from the member registry and
// are opaque here.
type RecipientID string

// SubjectID identifies the patient a document is about. A subject is always
// also addressable as a recipient.
type SubjectID string

// NotificationID identifies a single inbox entry.
type NotificationID string

func (d DocumentID) String() string     { return string(d) }
func (r RecipientID) String() string    { return string(r) }
func (s SubjectID) String() string      { return string(s) }
func (n NotificationID) String() string { return string(n) }

// Recipient returns the subject's identity as a recipient.
func (s SubjectID) Recipient() RecipientID { return RecipientID(s) }

// NewNotificationID mints a fresh notification identifier.
func NewNotificationID() NotificationID {
	return NotificationID(uuid.NewString())
}

// ParseDocumentID validates external input at trust boundaries.
func ParseDocumentID(s string) (DocumentID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "document id cannot be empty")
	}
	return DocumentID(s), nil
}

// ParseRecipientID validates external input at trust boundaries.
func ParseRecipientID(s string) (RecipientID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "recipient id cannot be empty")
	}
	return RecipientID(s), nil
}

// ParseNotificationID validates external input at trust boundaries.
func ParseNotificationID(s string) (NotificationID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "notification id cannot be empty")
	}
	if _, err := uuid.Parse(s); err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "notification id must be a uuid")
	}
	return NotificationID(s), nil
}
