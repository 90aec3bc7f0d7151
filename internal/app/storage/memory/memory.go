// Package memory provides an in-memory record store. It is safe for
// concurrent use and is primarily intended for tests and local development
// without a database.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/formsdesk/formsdesk/internal/app/domain/record"
	"github.com/formsdesk/formsdesk/internal/app/storage"
)

// Store is an in-memory implementation of storage.RecordStore.
type Store struct {
	mu      sync.RWMutex
	records map[string]record.Record
}

var _ storage.RecordStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{records: make(map[string]record.Record)}
}

func (s *Store) CreateRecord(_ context.Context, rec record.Record) (record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.Data = cloneData(rec.Data)

	s.records[rec.ID] = rec
	return cloneRecord(rec), nil
}

func (s *Store) UpdateRecord(_ context.Context, rec record.Record) (record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.records[rec.ID]
	if !ok || original.Type != rec.Type {
		return record.Record{}, sql.ErrNoRows
	}

	rec.CreatedAt = original.CreatedAt
	rec.UpdatedAt = time.Now().UTC()
	rec.Data = cloneData(rec.Data)

	s.records[rec.ID] = rec
	return cloneRecord(rec), nil
}

func (s *Store) GetRecord(_ context.Context, id string) (record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return record.Record{}, sql.ErrNoRows
	}
	return cloneRecord(rec), nil
}

func (s *Store) ListRecords(_ context.Context, typ record.FormType) ([]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]record.Record, 0)
	for _, rec := range s.records {
		if rec.Type == typ {
			result = append(result, cloneRecord(rec))
		}
	}
	// Newest first, ties broken by id so the order is stable.
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func cloneRecord(rec record.Record) record.Record {
	rec.Data = cloneData(rec.Data)
	return rec
}

func cloneData(data record.Data) record.Data {
	if data == nil {
		return nil
	}
	out := make(record.Data, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
