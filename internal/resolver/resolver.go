// Package resolver computes the ordered, deduplicated set of recipients for
// a finalized document. Rules are a registered mapping over the document's
// domain type, so new document types add a rule here without touching the
// orchestrator.
package resolver

import (
	"context"

	"medishare/internal/directory"
	"medishare/internal/document"
	"medishare/pkg/domain"
	dErrors "medishare/pkg/domain-errors"
)

// Rule computes the recipients for one domain type. Rules read reference
// data through the directory and must not have side effects.
type Rule func(ctx context.Context, doc *document.Document, dir directory.Directory) ([]domain.Recipient, error)

type Resolver struct {
	dir   directory.Directory
	rules map[domain.DomainType]Rule
}

// New builds a resolver with the standard rule set registered.
func New(dir directory.Directory) *Resolver {
	r := &Resolver{
		dir:   dir,
		rules: make(map[domain.DomainType]Rule),
	}
	r.Register(domain.DomainTypePrescription, prescriptionRule)
	r.Register(domain.DomainTypeCareVoucher, subjectAndInsurerRule)
	r.Register(domain.DomainTypeClaimStatement, subjectAndInsurerRule)
	return r
}

// Register installs or replaces the rule for a domain type.
func (r *Resolver) Register(t domain.DomainType, rule Rule) {
	r.rules[t] = rule
}

// Resolve returns the recipients entitled to see the document, in rule order,
// deduplicated by recipient identity. A document type without a registered
// rule is a configuration error and is surfaced rather than resolving to
// zero recipients.
func (r *Resolver) Resolve(ctx context.Context, doc *document.Document) ([]domain.Recipient, error) {
	rule, ok := r.rules[doc.Type]
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnknownDomainType,
			"no fan-out rule registered for document type "+doc.Type.String())
	}

	recipients, err := rule(ctx, doc, r.dir)
	if err != nil {
		return nil, err
	}
	return dedupe(recipients), nil
}

// dedupe keeps the first occurrence of each recipient identity. A person who
// matches several rules (e.g. the subject is also a pharmacist) appears once,
// under the first role that matched.
func dedupe(recipients []domain.Recipient) []domain.Recipient {
	seen := make(map[domain.RecipientID]struct{}, len(recipients))
	out := make([]domain.Recipient, 0, len(recipients))
	for _, rec := range recipients {
		if _, ok := seen[rec.ID]; ok {
			continue
		}
		seen[rec.ID] = struct{}{}
		out = append(out, rec)
	}
	return out
}
