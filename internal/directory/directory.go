// Package directory is the reference-data dependency of the resolver: who a
// subject's insurer is and which pharmacists are currently active. The data
// is owned by the member-registry side of the back office; staleness is
// tolerated here.
package directory

import (
	"context"

	"medishare/pkg/domain"
)

type Directory interface {
	// InsurerForSubject returns the insurer staff identity for a subject.
	// The boolean is false when the subject has no insurer on file, which is
	// a normal state, not an error.
	InsurerForSubject(ctx context.Context, subjectID domain.SubjectID) (domain.RecipientID, bool, error)
	// ActivePharmacists returns every pharmacist with active status.
	ActivePharmacists(ctx context.Context) ([]domain.RecipientID, error)
}
