package database

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeDSN repairs an operator-supplied Postgres connection URL. The
// value frequently arrives wrapped in quote characters copied from an env
// file, and pooled serverless backends misbehave without SSL and a generous
// connect timeout, so both are injected when absent.
func NormalizeDSN(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.Trim(trimmed, `"'`)
	if trimmed == "" {
		return "", fmt.Errorf("empty connection string")
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse connection string: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("unsupported connection scheme %q", u.Scheme)
	}

	q := u.Query()
	if q.Get("sslmode") == "" {
		q.Set("sslmode", "require")
	}
	if q.Get("connect_timeout") == "" {
		q.Set("connect_timeout", "30")
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
