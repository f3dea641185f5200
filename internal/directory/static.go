package directory

import (
	"context"
	"sort"
	"sync"

	"medishare/pkg/domain"
)

// StaticDirectory is an in-memory Directory fed by the registry sync job (or
// directly by tests). Reads take a snapshot so callers never observe a
// half-applied update.
type StaticDirectory struct {
	mu          sync.RWMutex
	insurers    map[domain.SubjectID]domain.RecipientID
	pharmacists map[domain.RecipientID]bool
}

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		insurers:    make(map[domain.SubjectID]domain.RecipientID),
		pharmacists: make(map[domain.RecipientID]bool),
	}
}

func (d *StaticDirectory) SetInsurer(subjectID domain.SubjectID, insurerID domain.RecipientID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.insurers[subjectID] = insurerID
}

func (d *StaticDirectory) RemoveInsurer(subjectID domain.SubjectID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.insurers, subjectID)
}

func (d *StaticDirectory) SetPharmacist(id domain.RecipientID, active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pharmacists[id] = active
}

func (d *StaticDirectory) InsurerForSubject(_ context.Context, subjectID domain.SubjectID) (domain.RecipientID, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	insurer, ok := d.insurers[subjectID]
	return insurer, ok, nil
}

func (d *StaticDirectory) ActivePharmacists(_ context.Context) ([]domain.RecipientID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []domain.RecipientID
	for id, active := range d.pharmacists {
		if active {
			out = append(out, id)
		}
	}
	// Deterministic order keeps fan-out and its tests stable.
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
