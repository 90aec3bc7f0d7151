// Package database provides the resilient data-access layer over a pooled
// Postgres backend. The backend sits behind a connection multiplexer and
// exhibits cold starts, pool exhaustion, and stale DNS/socket state; this
// package keeps a single logical handle usable across all of them without
// the rest of the service knowing reconnection exists.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/formsdesk/formsdesk/internal/app/metrics"
	"github.com/formsdesk/formsdesk/pkg/logger"
)

// Config configures the resilient handle.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// MaxAttempts bounds per-operation retries. Zero means the default.
	MaxAttempts int
	// RetryBaseDelay is the unit of the linear pool-saturation backoff and
	// the base of the exponential connect backoff. Zero means the default.
	RetryBaseDelay time.Duration
}

const (
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 500 * time.Millisecond
	connectBackoffBase    = time.Second
	connectBackoffCap     = 30 * time.Second
)

// DB owns the current *sql.DB behind a mutex. Consumers never hold the
// underlying handle; they pass operations to Execute, so a client
// replacement is invisible to every call site.
type DB struct {
	cfg    Config
	dsn    string
	log    *logger.Logger
	opener func(dsn string) (*sql.DB, error)
	sleep  func(ctx context.Context, d time.Duration) error

	mu  sync.Mutex
	db  *sql.DB
	gen uint64
}

// Open normalizes the connection string and builds the handle. It does not
// dial; use ConnectWithRetry for the eager startup probe.
func Open(cfg Config, log *logger.Logger) (*DB, error) {
	dsn, err := NormalizeDSN(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("normalize dsn: %w", err)
	}
	if log == nil {
		log = logger.NewDefault("database")
	}

	d := &DB{cfg: cfg, dsn: dsn, log: log, opener: openSQL, sleep: sleepCtx}
	db, err := d.open()
	if err != nil {
		return nil, err
	}
	d.db = db
	return d, nil
}

// Wrap builds a DB around an existing handle. Intended for tests and for the
// in-memory development path where no pooler sits in front of the database.
func Wrap(db *sql.DB, log *logger.Logger) *DB {
	if log == nil {
		log = logger.NewDefault("database")
	}
	return &DB{
		cfg:    Config{},
		log:    log,
		opener: func(string) (*sql.DB, error) { return db, nil },
		sleep:  sleepCtx,
		db:     db,
	}
}

func openSQL(dsn string) (*sql.DB, error) {
	return sql.Open("postgres", dsn)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (d *DB) open() (*sql.DB, error) {
	db, err := d.opener(d.dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if d.cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(d.cfg.MaxOpenConns)
	}
	if d.cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(d.cfg.MaxIdleConns)
	}
	if d.cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(d.cfg.ConnMaxLifetime)
	}
	return db, nil
}

// handle returns the current client together with its generation, which
// recreate uses to detect that a replacement already happened.
func (d *DB) handle() (*sql.DB, uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db, d.gen
}

// recreate replaces the underlying client. The caller passes the generation
// it observed when the failure occurred; if another caller already replaced
// that client, the current one is reused instead of being torn down again.
// Losers of the race block on the mutex until the replacement completes,
// then proceed against the new client.
func (d *DB) recreate(observed uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.gen != observed {
		return nil
	}

	if d.db != nil {
		// Best effort: the socket behind the old handle may already be dead.
		_ = d.db.Close()
	}

	db, err := d.open()
	if err != nil {
		d.db = nil
		d.gen++
		return fmt.Errorf("recreate client: %w", err)
	}
	d.db = db
	d.gen++
	metrics.RecordDBReconnect()
	d.log.Warn("database client replaced after hard network fault")
	return nil
}

// ConnectWithRetry probes the backend with exponential backoff. Failure is
// non-fatal by contract: a slow-waking backend must never keep the HTTP
// server from listening, and the first real query retries lazily anyway.
func (d *DB) ConnectWithRetry(ctx context.Context, maxAttempts int) error {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	delay := connectBackoffBase
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		db, _ := d.handle()
		if db == nil {
			lastErr = fmt.Errorf("no database client")
		} else if lastErr = db.PingContext(ctx); lastErr == nil {
			d.log.Infof("database reachable after %d attempt(s)", attempt)
			return nil
		}

		if attempt == maxAttempts {
			break
		}
		d.log.WithError(lastErr).Warnf("database connect attempt %d/%d failed; retrying in %s", attempt, maxAttempts, delay)
		if err := d.sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
		if delay > connectBackoffCap {
			delay = connectBackoffCap
		}
	}
	return fmt.Errorf("connect after %d attempts: %w", maxAttempts, lastErr)
}

// Execute runs op against the current client, retrying per fault class:
// pool saturation waits linearly on the same client, hard unreachability
// replaces the client first, and anything else propagates untouched on the
// first attempt. Exhausting retries returns the last error.
func (d *DB) Execute(ctx context.Context, op func(db *sql.DB) error) error {
	maxAttempts := d.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	baseDelay := d.cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultRetryBaseDelay
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		db, gen := d.handle()
		if db == nil {
			if err := d.recreate(gen); err != nil {
				lastErr = err
				continue
			}
			db, _ = d.handle()
		}

		lastErr = op(db)
		if lastErr == nil {
			return nil
		}

		class := classify(lastErr)
		if class == faultOther {
			return lastErr
		}
		metrics.RecordDBRetry(class.String())
		if attempt == maxAttempts {
			break
		}

		switch class {
		case faultPoolExhausted:
			// Backend reachable but saturated; wait it out on the same client.
			wait := baseDelay * time.Duration(attempt)
			d.log.WithError(lastErr).Warnf("database pool saturated (attempt %d/%d); retrying in %s", attempt, maxAttempts, wait)
			if err := d.sleep(ctx, wait); err != nil {
				return err
			}
		case faultUnreachable:
			d.log.WithError(lastErr).Warnf("database unreachable (attempt %d/%d); replacing client", attempt, maxAttempts)
			if err := d.recreate(gen); err != nil {
				d.log.WithError(err).Warn("client replacement failed")
			}
		}
	}
	return lastErr
}

// Close releases the underlying handle.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}
