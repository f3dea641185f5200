package document

import (
	"context"
	"sync"

	"medishare/pkg/domain"
	"medishare/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[domain.DocumentID]*Document
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{docs: make(map[domain.DocumentID]*Document)}
}

func (s *InMemoryStore) Get(_ context.Context, id domain.DocumentID) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *doc
	copied.FailedRecipients = append([]domain.RecipientID(nil), doc.FailedRecipients...)
	return &copied, nil
}

func (s *InMemoryStore) Put(_ context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *doc
	copied.FailedRecipients = append([]domain.RecipientID(nil), doc.FailedRecipients...)
	s.docs[doc.ID] = &copied
	return nil
}

func (s *InMemoryStore) SetFanOutState(_ context.Context, id domain.DocumentID, state domain.FanOutState, failed []domain.RecipientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	doc.FanOutState = state
	doc.FailedRecipients = append([]domain.RecipientID(nil), failed...)
	return nil
}

func (s *InMemoryStore) ListByFanOutState(_ context.Context, state domain.FanOutState) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Document
	for _, doc := range s.docs {
		if doc.FanOutState == state {
			copied := *doc
			copied.FailedRecipients = append([]domain.RecipientID(nil), doc.FailedRecipients...)
			out = append(out, &copied)
		}
	}
	return out, nil
}
