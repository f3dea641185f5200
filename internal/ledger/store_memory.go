package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"medishare/pkg/domain"
	"medishare/pkg/platform/sentinel"
)

// InMemoryStore mirrors the postgres store's uniqueness semantics under a
// mutex. Used in development mode and service-level tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[domain.DocumentID]map[domain.RecipientID]*ShareRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[domain.DocumentID]map[domain.RecipientID]*ShareRecord)}
}

func (s *InMemoryStore) Grant(_ context.Context, docID domain.DocumentID, recipientID domain.RecipientID, role domain.RecipientRole) (GrantOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byRecipient, ok := s.records[docID]
	if !ok {
		byRecipient = make(map[domain.RecipientID]*ShareRecord)
		s.records[docID] = byRecipient
	}
	if _, exists := byRecipient[recipientID]; exists {
		return OutcomeAlreadyExists, nil
	}

	byRecipient[recipientID] = &ShareRecord{
		DocumentID:  docID,
		RecipientID: recipientID,
		Role:        role,
		GrantedAt:   time.Now(),
		Status:      domain.ShareGranted,
	}
	return OutcomeCreated, nil
}

func (s *InMemoryStore) Revoke(_ context.Context, docID domain.DocumentID, recipientID domain.RecipientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[docID][recipientID]
	if !ok {
		return sentinel.ErrNotFound
	}
	record.Status = domain.ShareRevoked
	return nil
}

func (s *InMemoryStore) ListRecipients(_ context.Context, docID domain.DocumentID) ([]ShareRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ShareRecord
	for _, record := range s.records[docID] {
		if record.Status == domain.ShareGranted {
			out = append(out, *record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecipientID < out[j].RecipientID })
	return out, nil
}

func (s *InMemoryStore) Get(_ context.Context, docID domain.DocumentID, recipientID domain.RecipientID) (*ShareRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[docID][recipientID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *record
	return &copied, nil
}
