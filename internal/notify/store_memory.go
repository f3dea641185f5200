package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"medishare/pkg/domain"
	"medishare/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[domain.NotificationID]*Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[domain.NotificationID]*Entry)}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := entry
	s.entries[entry.ID] = &copied
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.NotificationID) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *entry
	return &copied, nil
}

func (s *InMemoryStore) SetStatus(_ context.Context, id domain.NotificationID, status domain.DeliveryStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	entry.Status = status
	entry.FailureReason = reason
	return nil
}

func (s *InMemoryStore) MarkRead(_ context.Context, id domain.NotificationID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if entry.ReadAt == nil {
		entry.ReadAt = &at
	}
	return nil
}

func (s *InMemoryStore) ListByRecipient(_ context.Context, recipientID domain.RecipientID, unreadOnly bool) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, entry := range s.entries {
		if entry.RecipientID != recipientID {
			continue
		}
		if unreadOnly && entry.ReadAt != nil {
			continue
		}
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) ListQueuedBefore(_ context.Context, cutoff time.Time) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, entry := range s.entries {
		if entry.Status == domain.DeliveryQueued && entry.CreatedAt.Before(cutoff) {
			out = append(out, *entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) ExistsFor(_ context.Context, recipientID domain.RecipientID, docID domain.DocumentID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.entries {
		if entry.RecipientID == recipientID && entry.DocumentID == docID {
			return true, nil
		}
	}
	return false, nil
}
