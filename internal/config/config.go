// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the root configuration for the forms service.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	PDF      PDFConfig
	Logging  LoggingConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig configures the record store backend. URL is the pooled
// connection string used for regular traffic; DirectURL, when set, bypasses
// the pooler and is used for schema migrations only.
type DatabaseConfig struct {
	URL             string
	DirectURL       string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // seconds
}

// PDFConfig configures the headless browser used for PDF export.
type PDFConfig struct {
	ChromePath string
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables, applying defaults
// where a variable is unset.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: envOr("HOST", "0.0.0.0"),
			Port: 3000,
		},
		Database: DatabaseConfig{
			URL:             strings.TrimSpace(os.Getenv("DATABASE_URL")),
			DirectURL:       strings.TrimSpace(os.Getenv("DIRECT_DATABASE_URL")),
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 300,
		},
		PDF: PDFConfig{
			ChromePath: strings.TrimSpace(os.Getenv("CHROME_PATH")),
		},
		Logging: LoggingConfig{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "text"),
		},
	}

	if raw := os.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid PORT %q", raw)
		}
		cfg.Server.Port = port
	}
	if raw := os.Getenv("DB_MAX_OPEN_CONNS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid DB_MAX_OPEN_CONNS %q", raw)
		}
		cfg.Database.MaxOpenConns = n
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
