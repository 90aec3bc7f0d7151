// Package postgres implements the record store over the resilient database
// layer.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/formsdesk/formsdesk/internal/app/domain/record"
	"github.com/formsdesk/formsdesk/internal/app/metrics"
	"github.com/formsdesk/formsdesk/internal/app/storage"
)

// Executor runs an operation against the current database client. Call sites
// never hold the client itself, so a client replacement mid-flight is
// invisible here.
type Executor interface {
	Execute(ctx context.Context, op func(db *sql.DB) error) error
}

// Store implements storage.RecordStore backed by PostgreSQL.
type Store struct {
	db Executor
}

var _ storage.RecordStore = (*Store)(nil)

// New creates a Store using the provided executor.
func New(db Executor) *Store {
	return &Store{db: db}
}

func (s *Store) CreateRecord(ctx context.Context, rec record.Record) (record.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	dataJSON, err := json.Marshal(rec.Data)
	if err != nil {
		return record.Record{}, err
	}

	err = s.db.Execute(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO form_records (id, form_type, data, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
		`, rec.ID, rec.Type, dataJSON, rec.CreatedAt, rec.UpdatedAt)
		return err
	})
	if err != nil {
		metrics.RecordStoreOperation("create", string(rec.Type), "error")
		return record.Record{}, err
	}
	metrics.RecordStoreOperation("create", string(rec.Type), "ok")
	return rec, nil
}

func (s *Store) UpdateRecord(ctx context.Context, rec record.Record) (record.Record, error) {
	rec.UpdatedAt = time.Now().UTC()

	dataJSON, err := json.Marshal(rec.Data)
	if err != nil {
		return record.Record{}, err
	}

	err = s.db.Execute(ctx, func(db *sql.DB) error {
		// form_type in the WHERE clause keeps a record's type immutable: a
		// stale or forged type/id pair updates nothing and reads as not found.
		result, err := db.ExecContext(ctx, `
			UPDATE form_records
			SET data = $3, updated_at = $4
			WHERE id = $1 AND form_type = $2
		`, rec.ID, rec.Type, dataJSON, rec.UpdatedAt)
		if err != nil {
			return err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
	if err != nil {
		status := "error"
		if err == sql.ErrNoRows {
			status = "not_found"
		}
		metrics.RecordStoreOperation("update", string(rec.Type), status)
		return record.Record{}, err
	}
	metrics.RecordStoreOperation("update", string(rec.Type), "ok")
	return rec, nil
}

func (s *Store) GetRecord(ctx context.Context, id string) (record.Record, error) {
	var rec record.Record
	err := s.db.Execute(ctx, func(db *sql.DB) error {
		row := db.QueryRowContext(ctx, `
			SELECT id, form_type, data, created_at, updated_at
			FROM form_records
			WHERE id = $1
		`, id)

		var dataRaw []byte
		if err := row.Scan(&rec.ID, &rec.Type, &dataRaw, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return err
		}
		if len(dataRaw) > 0 {
			if err := json.Unmarshal(dataRaw, &rec.Data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return record.Record{}, err
	}
	return rec, nil
}

func (s *Store) ListRecords(ctx context.Context, typ record.FormType) ([]record.Record, error) {
	var result []record.Record
	err := s.db.Execute(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT id, form_type, data, created_at, updated_at
			FROM form_records
			WHERE form_type = $1
			ORDER BY created_at DESC, id
		`, typ)
		if err != nil {
			return err
		}
		defer rows.Close()

		result = result[:0]
		for rows.Next() {
			var (
				rec     record.Record
				dataRaw []byte
			)
			if err := rows.Scan(&rec.ID, &rec.Type, &dataRaw, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
				return err
			}
			if len(dataRaw) > 0 {
				if err := json.Unmarshal(dataRaw, &rec.Data); err != nil {
					return err
				}
			}
			result = append(result, rec)
		}
		return rows.Err()
	})
	if err != nil {
		metrics.RecordStoreOperation("list", string(typ), "error")
		return nil, err
	}
	metrics.RecordStoreOperation("list", string(typ), "ok")
	return result, nil
}
