package forms

import (
	"strings"

	"github.com/formsdesk/formsdesk/internal/app/domain/record"
)

// maxFilenameRunes bounds the sanitized display-name portion of an export
// filename.
const maxFilenameRunes = 60

// exportFilename derives "<type> - <name>.pdf" from the record's display
// name, falling back to the record id when sanitization leaves nothing.
func exportFilename(rec record.Record) string {
	name := sanitizeFilename(rec.Data.String(record.DisplayNameField))
	if name == "" {
		name = rec.ID
	}
	return string(rec.Type) + " - " + name + ".pdf"
}

// sanitizeFilename keeps only characters safe in a download filename:
// alphanumerics, spaces, underscores, periods, and hyphens. The result is
// truncated to maxFilenameRunes and trimmed.
func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	runes := []rune(out)
	if len(runes) > maxFilenameRunes {
		out = strings.TrimSpace(string(runes[:maxFilenameRunes]))
	}
	return out
}
