package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medishare/internal/directory"
	"medishare/internal/document"
	"medishare/pkg/domain"
	dErrors "medishare/pkg/domain-errors"
)

func prescriptionDoc(subject domain.SubjectID) *document.Document {
	return &document.Document{
		ID:        "doc-1",
		Type:      domain.DomainTypePrescription,
		SubjectID: subject,
		Title:     "Amoxicillin 500mg",
	}
}

func TestResolvePrescription(t *testing.T) {
	dir := directory.NewStaticDirectory()
	dir.SetInsurer("patient-7", "ins-3")
	dir.SetPharmacist("ph-1", true)
	dir.SetPharmacist("ph-2", true)

	recipients, err := New(dir).Resolve(context.Background(), prescriptionDoc("patient-7"))
	require.NoError(t, err)

	ids := make([]domain.RecipientID, 0, len(recipients))
	for _, rec := range recipients {
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []domain.RecipientID{"patient-7", "ins-3", "ph-1", "ph-2"}, ids)

	assert.Equal(t, domain.RolePatient, recipients[0].Role)
	assert.Equal(t, domain.RoleInsurer, recipients[1].Role)
	assert.Equal(t, domain.RolePharmacist, recipients[2].Role)
}

func TestResolveSubjectWithoutInsurer(t *testing.T) {
	dir := directory.NewStaticDirectory()
	dir.SetPharmacist("ph-1", true)
	dir.SetPharmacist("ph-2", true)

	recipients, err := New(dir).Resolve(context.Background(), prescriptionDoc("patient-9"))
	require.NoError(t, err)

	// A missing insurer is an omitted recipient, not an error.
	require.Len(t, recipients, 3)
	assert.Equal(t, domain.RecipientID("patient-9"), recipients[0].ID)
	assert.Equal(t, domain.RecipientID("ph-1"), recipients[1].ID)
	assert.Equal(t, domain.RecipientID("ph-2"), recipients[2].ID)
}

func TestResolveIgnoresInactivePharmacists(t *testing.T) {
	dir := directory.NewStaticDirectory()
	dir.SetPharmacist("ph-1", true)
	dir.SetPharmacist("ph-2", false)

	recipients, err := New(dir).Resolve(context.Background(), prescriptionDoc("patient-7"))
	require.NoError(t, err)

	for _, rec := range recipients {
		assert.NotEqual(t, domain.RecipientID("ph-2"), rec.ID)
	}
}

func TestResolveDeduplicatesByIdentity(t *testing.T) {
	dir := directory.NewStaticDirectory()
	// The subject also happens to be an active pharmacist.
	dir.SetPharmacist("patient-7", true)
	dir.SetPharmacist("ph-1", true)

	recipients, err := New(dir).Resolve(context.Background(), prescriptionDoc("patient-7"))
	require.NoError(t, err)

	require.Len(t, recipients, 2)
	// First role that matched wins.
	assert.Equal(t, domain.Recipient{ID: "patient-7", Role: domain.RolePatient}, recipients[0])
	assert.Equal(t, domain.Recipient{ID: "ph-1", Role: domain.RolePharmacist}, recipients[1])
}

func TestResolveUnknownDomainType(t *testing.T) {
	dir := directory.NewStaticDirectory()
	doc := &document.Document{ID: "doc-1", Type: "lab_result", SubjectID: "patient-7"}

	_, err := New(dir).Resolve(context.Background(), doc)
	require.Error(t, err)
	assert.True(t, dErrors.IsCode(err, dErrors.CodeUnknownDomainType))
}

func TestRegisterNewRule(t *testing.T) {
	dir := directory.NewStaticDirectory()
	res := New(dir)
	res.Register("lab_result", func(_ context.Context, doc *document.Document, _ directory.Directory) ([]domain.Recipient, error) {
		return []domain.Recipient{{ID: doc.SubjectID.Recipient(), Role: domain.RolePatient}}, nil
	})

	recipients, err := res.Resolve(context.Background(), &document.Document{ID: "doc-2", Type: "lab_result", SubjectID: "patient-7"})
	require.NoError(t, err)
	require.Len(t, recipients, 1)
	assert.Equal(t, domain.RecipientID("patient-7"), recipients[0].ID)
}

func TestCareVoucherDoesNotFanOutToPharmacists(t *testing.T) {
	dir := directory.NewStaticDirectory()
	dir.SetInsurer("patient-7", "ins-3")
	dir.SetPharmacist("ph-1", true)

	doc := &document.Document{ID: "doc-3", Type: domain.DomainTypeCareVoucher, SubjectID: "patient-7"}
	recipients, err := New(dir).Resolve(context.Background(), doc)
	require.NoError(t, err)

	require.Len(t, recipients, 2)
	assert.Equal(t, domain.RecipientID("patient-7"), recipients[0].ID)
	assert.Equal(t, domain.RecipientID("ins-3"), recipients[1].ID)
}
