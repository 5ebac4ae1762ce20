package storage

import (
	"errors"
	"sort"
	"sync"
	"time"

	"todo-mcp/go-backend/pkg/models"
)

var ErrRecordIDConflict = errors.New("record id conflict")

type storedRecord struct {
	record models.Record
	seq    uint64
}

// RecordStore keeps todo records in memory. All mutations take the write lock,
// so at most one create/update/delete is in flight at a time.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]storedRecord
	nextSeq uint64
	now     func() time.Time
}

func NewRecordStore() *RecordStore {
	return NewRecordStoreWithClock(nil)
}

func NewRecordStoreWithClock(now func() time.Time) *RecordStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &RecordStore{
		records: make(map[string]storedRecord),
		now:     now,
	}
}

func (s *RecordStore) Create(rec models.Record) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return models.Record{}, ErrRecordIDConflict
	}
	s.nextSeq++
	s.records[rec.ID] = storedRecord{record: rec, seq: s.nextSeq}
	return rec, nil
}

func (s *RecordStore) GetAll() []models.Record {
	s.mu.RLock()
	stored := make([]storedRecord, 0, len(s.records))
	for _, r := range s.records {
		stored = append(stored, r)
	}
	s.mu.RUnlock()

	// Ties on CreatedAt fall back to insertion order so the listing stays stable.
	sort.Slice(stored, func(i, j int) bool {
		a, b := stored[i], stored[j]
		if !a.record.CreatedAt.Equal(b.record.CreatedAt) {
			return a.record.CreatedAt.After(b.record.CreatedAt)
		}
		return a.seq > b.seq
	})
	out := make([]models.Record, 0, len(stored))
	for _, r := range stored {
		out = append(out, r.record)
	}
	return out
}

func (s *RecordStore) GetByID(id string) (models.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return models.Record{}, false
	}
	return r.record, true
}

func (s *RecordStore) Update(id string, patch models.RecordPatch) (models.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return models.Record{}, false
	}
	prev := r.record
	next := patch.Apply(prev)
	next.ID = prev.ID
	next.CreatedAt = prev.CreatedAt
	next.UpdatedAt = s.now()
	if next.UpdatedAt.Before(prev.UpdatedAt) {
		next.UpdatedAt = prev.UpdatedAt
	}
	r.record = next
	s.records[id] = r
	return next, true
}

func (s *RecordStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false
	}
	delete(s.records, id)
	return true
}

func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
