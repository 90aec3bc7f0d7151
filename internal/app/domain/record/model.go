// Package record defines the application record, the per-form-type field
// schemas, and the validation that turns raw submissions into canonical
// payloads.
package record

import (
	"fmt"
	"time"
)

// FormType identifies one of the fixed paper forms. It is immutable for the
// lifetime of a record and selects both the validation schema and the PDF
// layout.
type FormType string

const (
	TypeRejoining   FormType = "rejoining"
	TypeLeaveExpats FormType = "leave_expats"
	TypeLeaveOmani  FormType = "leave_omani"
)

// FormTypes lists every known form type in a stable order.
func FormTypes() []FormType {
	return []FormType{TypeRejoining, TypeLeaveExpats, TypeLeaveOmani}
}

// ParseFormType validates a raw type string from a route or payload.
func ParseFormType(raw string) (FormType, error) {
	switch FormType(raw) {
	case TypeRejoining, TypeLeaveExpats, TypeLeaveOmani:
		return FormType(raw), nil
	}
	return "", fmt.Errorf("unknown form type %q", raw)
}

// Data is the canonical form payload. After validation it contains all and
// only the keys the schema defines for the record's type.
type Data map[string]any

// Record is one submitted application instance.
type Record struct {
	ID        string
	Type      FormType
	Data      Data
	CreatedAt time.Time
	UpdatedAt time.Time
}

// String returns a data field as a string, or "" when absent or non-string.
func (d Data) String(key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}
