package domain

import dErrors "medishare/pkg/domain-errors"

// DomainType tags a clinical document with the rule set governing its
// fan-out. Invariant: a document's type must have a registered resolver rule.
//
// Usage: construct via ParseDomainType at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type DomainType string

const (
	DomainTypePrescription   DomainType = "prescription"
	DomainTypeCareVoucher    DomainType = "care_voucher"
	DomainTypeClaimStatement DomainType = "claim_statement"
)

var validDomainTypes = map[DomainType]bool{
	DomainTypePrescription:   true,
	DomainTypeCareVoucher:    true,
	DomainTypeClaimStatement: true,
}

// ParseDomainType constructs a DomainType from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseDomainType(s string) (DomainType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "domain type cannot be empty")
	}
	t := DomainType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid domain type")
	}
	return t, nil
}

func (t DomainType) IsValid() bool  { return validDomainTypes[t] }
func (t DomainType) String() string { return string(t) }

// RecipientRole classifies why a recipient is entitled to see a document.
type RecipientRole string

const (
	RolePatient    RecipientRole = "patient"
	RoleInsurer    RecipientRole = "insurer"
	RolePharmacist RecipientRole = "pharmacist"
)

func (r RecipientRole) String() string { return string(r) }

// Recipient is a resolved identity entitled to see a document. Recipients are
// computed on demand by the resolver and never persisted on their own.
type Recipient struct {
	ID   RecipientID
	Role RecipientRole
}

// FanOutState tracks a document's progress through the fan-out pipeline.
// Complete is terminal and never revisited.
type FanOutState string

const (
	FanOutPending  FanOutState = "pending"
	FanOutPartial  FanOutState = "partial"
	FanOutComplete FanOutState = "complete"
)

var validFanOutStates = map[FanOutState]bool{
	FanOutPending:  true,
	FanOutPartial:  true,
	FanOutComplete: true,
}

func (s FanOutState) IsValid() bool  { return validFanOutStates[s] }
func (s FanOutState) String() string { return string(s) }

// ShareStatus is the lifecycle of a visibility grant. Records are never
// deleted; revocation flips the status and keeps the audit trail.
type ShareStatus string

const (
	ShareGranted ShareStatus = "granted"
	ShareRevoked ShareStatus = "revoked"
)

func (s ShareStatus) String() string { return string(s) }

// DeliveryStatus is the lifecycle of a notification entry, independent of the
// visibility grant that produced it.
type DeliveryStatus string

const (
	DeliveryQueued    DeliveryStatus = "queued"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

func (s DeliveryStatus) String() string { return string(s) }
