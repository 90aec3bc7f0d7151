// Package storage defines the persistence interfaces for application records.
package storage

import (
	"context"

	"github.com/formsdesk/formsdesk/internal/app/domain/record"
)

// RecordStore persists application records. Implementations signal a missing
// record with sql.ErrNoRows regardless of backend.
type RecordStore interface {
	CreateRecord(ctx context.Context, rec record.Record) (record.Record, error)
	UpdateRecord(ctx context.Context, rec record.Record) (record.Record, error)
	GetRecord(ctx context.Context, id string) (record.Record, error)
	ListRecords(ctx context.Context, typ record.FormType) ([]record.Record, error)
}
