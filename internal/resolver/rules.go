package resolver

import (
	"context"
	"fmt"

	"medishare/internal/directory"
	"medishare/internal/document"
	"medishare/pkg/domain"
)

// prescriptionRule: the patient, the patient's insurer when one is on file,
// and every currently-active pharmacist.
func prescriptionRule(ctx context.Context, doc *document.Document, dir directory.Directory) ([]domain.Recipient, error) {
	recipients, err := subjectAndInsurerRule(ctx, doc, dir)
	if err != nil {
		return nil, err
	}

	pharmacists, err := dir.ActivePharmacists(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active pharmacists: %w", err)
	}
	for _, id := range pharmacists {
		recipients = append(recipients, domain.Recipient{ID: id, Role: domain.RolePharmacist})
	}
	return recipients, nil
}

// subjectAndInsurerRule: the patient plus their insurer. A subject with no
// insurer on file simply yields one fewer recipient.
func subjectAndInsurerRule(ctx context.Context, doc *document.Document, dir directory.Directory) ([]domain.Recipient, error) {
	recipients := []domain.Recipient{
		{ID: doc.SubjectID.Recipient(), Role: domain.RolePatient},
	}

	insurer, ok, err := dir.InsurerForSubject(ctx, doc.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("look up insurer for subject %s: %w", doc.SubjectID, err)
	}
	if ok {
		recipients = append(recipients, domain.Recipient{ID: insurer, Role: domain.RoleInsurer})
	}
	return recipients, nil
}
