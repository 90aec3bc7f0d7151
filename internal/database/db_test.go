package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/formsdesk/formsdesk/pkg/logger"
)

// newTestDB builds a handle whose opener hands out throwaway sqlmock
// connections and whose sleep returns immediately while recording the
// requested delays.
func newTestDB(t *testing.T) (*DB, *int64, *[]time.Duration) {
	t.Helper()

	var opens int64
	var delays []time.Duration
	var delayMu sync.Mutex

	d := &DB{
		cfg: Config{MaxAttempts: 3, RetryBaseDelay: 10 * time.Millisecond},
		log: logger.NewDefault("database-test"),
		opener: func(string) (*sql.DB, error) {
			atomic.AddInt64(&opens, 1)
			db, _, err := sqlmock.New()
			return db, err
		},
		sleep: func(ctx context.Context, d time.Duration) error {
			delayMu.Lock()
			delays = append(delays, d)
			delayMu.Unlock()
			return ctx.Err()
		},
	}
	db, err := d.open()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	d.db = db
	atomic.StoreInt64(&opens, 0)
	return d, &opens, &delays
}

func TestExecuteSucceedsFirstAttempt(t *testing.T) {
	d, opens, delays := newTestDB(t)
	defer d.Close()

	calls := 0
	err := d.Execute(context.Background(), func(db *sql.DB) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 1 {
		t.Fatalf("op called %d times, want 1", calls)
	}
	if *opens != 0 || len(*delays) != 0 {
		t.Fatalf("unexpected recreate (%d) or sleep (%d)", *opens, len(*delays))
	}
}

func TestExecutePoolSaturationWaitsOnSameClient(t *testing.T) {
	d, opens, delays := newTestDB(t)
	defer d.Close()

	before, genBefore := d.handle()

	calls := 0
	err := d.Execute(context.Background(), func(db *sql.DB) error {
		calls++
		if calls < 3 {
			return pqErr("53300")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 3 {
		t.Fatalf("op called %d times, want 3", calls)
	}
	if *opens != 0 {
		t.Fatalf("client replaced %d times during pool saturation, want 0", *opens)
	}
	after, genAfter := d.handle()
	if after != before || genAfter != genBefore {
		t.Fatal("client changed during pool saturation")
	}

	// Linear backoff: base, then 2*base.
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
	if len(*delays) != len(want) {
		t.Fatalf("slept %d times, want %d", len(*delays), len(want))
	}
	for i, w := range want {
		if (*delays)[i] != w {
			t.Fatalf("delay[%d] = %s, want %s", i, (*delays)[i], w)
		}
	}
}

func TestExecuteUnreachableReplacesClient(t *testing.T) {
	d, opens, delays := newTestDB(t)
	defer d.Close()

	before, _ := d.handle()

	calls := 0
	err := d.Execute(context.Background(), func(db *sql.DB) error {
		calls++
		if calls == 1 {
			return driver.ErrBadConn
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 2 {
		t.Fatalf("op called %d times, want 2", calls)
	}
	if *opens != 1 {
		t.Fatalf("client replaced %d times, want 1", *opens)
	}
	if len(*delays) != 0 {
		t.Fatal("unreachable fault must not wait before retrying")
	}
	after, _ := d.handle()
	if after == before {
		t.Fatal("client was not replaced")
	}
}

func TestExecuteNonRetryablePropagatesImmediately(t *testing.T) {
	d, opens, delays := newTestDB(t)
	defer d.Close()

	calls := 0
	err := d.Execute(context.Background(), func(db *sql.DB) error {
		calls++
		return sql.ErrNoRows
	})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v, want sql.ErrNoRows", err)
	}
	if calls != 1 {
		t.Fatalf("op called %d times, want 1", calls)
	}
	if *opens != 0 || len(*delays) != 0 {
		t.Fatal("non-retryable fault must not trigger recovery")
	}
}

func TestExecuteExhaustionReturnsLastError(t *testing.T) {
	d, _, _ := newTestDB(t)
	defer d.Close()

	calls := 0
	err := d.Execute(context.Background(), func(db *sql.DB) error {
		calls++
		return pqErr("53300")
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if classify(err) != faultPoolExhausted {
		t.Fatalf("exhaustion must surface the last underlying error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("op called %d times, want exactly MaxAttempts (3)", calls)
	}
}

func TestExecuteRespectsContextDuringBackoff(t *testing.T) {
	d, _, _ := newTestDB(t)
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Execute(ctx, func(db *sql.DB) error {
		return pqErr("53300")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestRecreateSingleReplacementUnderConcurrency(t *testing.T) {
	d, opens, _ := newTestDB(t)
	defer d.Close()

	_, gen := d.handle()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Every goroutine observed the same failing client generation.
			if err := d.recreate(gen); err != nil {
				t.Errorf("recreate: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(opens); got != 1 {
		t.Fatalf("client opened %d times for one failed generation, want 1", got)
	}
	_, genAfter := d.handle()
	if genAfter != gen+1 {
		t.Fatalf("generation advanced to %d, want %d", genAfter, gen+1)
	}
}

func TestConnectWithRetryEventualSuccess(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	mock.ExpectPing().WillReturnError(errors.New("dial tcp: connection refused"))
	mock.ExpectPing()

	var delays []time.Duration
	d := Wrap(db, logger.NewDefault("database-test"))
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		delays = append(delays, dur)
		return nil
	}
	defer d.Close()

	if err := d.ConnectWithRetry(context.Background(), 3); err != nil {
		t.Fatalf("ConnectWithRetry: %v", err)
	}
	if len(delays) != 1 || delays[0] != connectBackoffBase {
		t.Fatalf("delays = %v, want one sleep of %s", delays, connectBackoffBase)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestConnectWithRetryExhaustsWithExponentialBackoff(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	for i := 0; i < 3; i++ {
		mock.ExpectPing().WillReturnError(errors.New("dial tcp: connection refused"))
	}

	var delays []time.Duration
	d := Wrap(db, logger.NewDefault("database-test"))
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		delays = append(delays, dur)
		return nil
	}
	defer d.Close()

	if err := d.ConnectWithRetry(context.Background(), 3); err == nil {
		t.Fatal("expected error after exhausting connect attempts")
	}
	want := []time.Duration{connectBackoffBase, 2 * connectBackoffBase}
	if len(delays) != len(want) {
		t.Fatalf("slept %d times, want %d", len(delays), len(want))
	}
	for i, w := range want {
		if delays[i] != w {
			t.Fatalf("delay[%d] = %s, want %s", i, delays[i], w)
		}
	}
}

func TestWrapReusesProvidedHandle(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	d := Wrap(db, nil)
	defer d.Close()

	got, _ := d.handle()
	if got != db {
		t.Fatal("Wrap must hand back the provided handle")
	}
}
