// Package forms orchestrates validation, persistence, and PDF export for
// application records.
package forms

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/formsdesk/formsdesk/internal/app/domain/record"
	"github.com/formsdesk/formsdesk/internal/app/storage"
	"github.com/formsdesk/formsdesk/pkg/logger"
)

// ErrNotFound signals an unknown record id or a type/id mismatch. The two
// are deliberately indistinguishable to callers.
var ErrNotFound = errors.New("record not found")

// IncompleteError reports a record that saved leniently but is missing
// fields the paper form requires, so it cannot be exported yet.
type IncompleteError struct {
	Missing record.FieldErrors
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("record incomplete: %d field(s) missing", len(e.Missing))
}

// Renderer produces PDF bytes for a validated record.
type Renderer interface {
	Render(ctx context.Context, rec record.Record) ([]byte, error)
}

// Filter narrows a listing. Search matches case-insensitively against the
// type's name/ID fields; From/To bound the creation time inclusively.
type Filter struct {
	Search string
	From   time.Time
	To     time.Time
}

// Export is the outcome of a successful PDF export. Bytes are held only in
// memory and streamed to the caller.
type Export struct {
	Filename string
	PDF      []byte
}

// Service sequences the validator, the record store, and the PDF renderer.
// It holds no state of its own.
type Service struct {
	store    storage.RecordStore
	renderer Renderer
	log      *logger.Logger
}

// New builds the service.
func New(store storage.RecordStore, renderer Renderer, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("forms")
	}
	return &Service{store: store, renderer: renderer, log: log}
}

// List returns all records of a type matching the filter, newest first.
// Filtering happens in process; the data payloads are small enough and the
// store keeps the ordering stable.
func (s *Service) List(ctx context.Context, typ record.FormType, f Filter) ([]record.Record, error) {
	recs, err := s.store.ListRecords(ctx, typ)
	if err != nil {
		return nil, fmt.Errorf("list %s records: %w", typ, err)
	}

	search := strings.ToLower(strings.TrimSpace(f.Search))
	result := make([]record.Record, 0, len(recs))
	for _, rec := range recs {
		if search != "" && !matchesSearch(rec, search) {
			continue
		}
		if !f.From.IsZero() && rec.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && rec.CreatedAt.After(f.To) {
			continue
		}
		result = append(result, rec)
	}
	return result, nil
}

func matchesSearch(rec record.Record, loweredSearch string) bool {
	for _, key := range record.SearchFields() {
		if strings.Contains(strings.ToLower(rec.Data.String(key)), loweredSearch) {
			return true
		}
	}
	return false
}

// Create lenient-validates raw fields and persists a new record. A non-empty
// FieldErrors map means nothing was persisted.
func (s *Service) Create(ctx context.Context, typ record.FormType, raw map[string]string) (record.Record, record.FieldErrors, error) {
	data, fieldErrs := record.Validate(typ, raw, record.Lenient)
	if len(fieldErrs) > 0 {
		return record.Record{}, fieldErrs, nil
	}

	rec, err := s.store.CreateRecord(ctx, record.Record{Type: typ, Data: data})
	if err != nil {
		return record.Record{}, nil, fmt.Errorf("create %s record: %w", typ, err)
	}
	s.log.WithField("form_type", typ).Infof("created record %s", rec.ID)
	return rec, nil, nil
}

// Update replaces a record's entire payload. The route's type must match the
// stored record; a mismatch reads as not found, never as a type change.
// Concurrent updates are last-writer-wins by design.
func (s *Service) Update(ctx context.Context, typ record.FormType, id string, raw map[string]string) (record.Record, record.FieldErrors, error) {
	existing, err := s.store.GetRecord(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record.Record{}, nil, ErrNotFound
		}
		return record.Record{}, nil, fmt.Errorf("load record %s: %w", id, err)
	}
	if existing.Type != typ {
		return record.Record{}, nil, ErrNotFound
	}

	data, fieldErrs := record.Validate(typ, raw, record.Lenient)
	if len(fieldErrs) > 0 {
		return record.Record{}, fieldErrs, nil
	}

	existing.Data = data
	updated, err := s.store.UpdateRecord(ctx, existing)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record.Record{}, nil, ErrNotFound
		}
		return record.Record{}, nil, fmt.Errorf("update record %s: %w", id, err)
	}
	s.log.WithField("form_type", typ).Infof("updated record %s", id)
	return updated, nil, nil
}

// ExportPDF strictly re-validates the STORED record and renders it. A record
// saved leniently and never completed yields an IncompleteError so the
// caller can send the user back to the edit form instead of emitting an
// incomplete document. Render failures pass through untouched and must not
// be retried automatically.
func (s *Service) ExportPDF(ctx context.Context, typ record.FormType, id string) (Export, error) {
	rec, err := s.store.GetRecord(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Export{}, ErrNotFound
		}
		return Export{}, fmt.Errorf("load record %s: %w", id, err)
	}
	if rec.Type != typ {
		return Export{}, ErrNotFound
	}

	if _, fieldErrs := record.Validate(typ, stringifyData(rec.Data), record.Strict); len(fieldErrs) > 0 {
		return Export{}, &IncompleteError{Missing: fieldErrs}
	}

	buf, err := s.renderer.Render(ctx, rec)
	if err != nil {
		return Export{}, err
	}

	return Export{Filename: exportFilename(rec), PDF: buf}, nil
}

// stringifyData converts a stored payload back to the raw shape the
// validator accepts, so export-time strict validation reuses the same rules
// as save-time validation.
func stringifyData(data record.Data) map[string]string {
	raw := make(map[string]string, len(data))
	for k, v := range data {
		switch t := v.(type) {
		case string:
			raw[k] = t
		case float64:
			if t == 0 {
				// Zero is the defaulted value for an absent numeric field;
				// strict validation must see it as missing.
				raw[k] = ""
			} else {
				raw[k] = fmt.Sprintf("%g", t)
			}
		case bool:
			if t {
				raw[k] = "true"
			}
		case nil:
		default:
			raw[k] = fmt.Sprintf("%v", t)
		}
	}
	return raw
}
