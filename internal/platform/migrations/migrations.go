// Package migrations applies the forms service schema. Statements are
// idempotent so Apply can run on every startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS form_records (
		id UUID PRIMARY KEY,
		form_type TEXT NOT NULL,
		data JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`ALTER TABLE form_records DROP CONSTRAINT IF EXISTS form_records_type_check`,
	`ALTER TABLE form_records ADD CONSTRAINT form_records_type_check
		CHECK (form_type IN ('rejoining', 'leave_expats', 'leave_omani'))`,
	`CREATE INDEX IF NOT EXISTS idx_form_records_type_created
		ON form_records (form_type, created_at DESC)`,
}

// Apply executes every schema statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
