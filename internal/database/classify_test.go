package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/lib/pq"
)

func pqErr(code string) error {
	return &pq.Error{Code: pq.ErrorCode(code), Message: "backend error"}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want faultClass
	}{
		{"nil", nil, faultOther},
		{"context canceled", context.Canceled, faultOther},
		{"deadline exceeded", fmt.Errorf("query: %w", context.DeadlineExceeded), faultOther},
		{"no rows", sql.ErrNoRows, faultOther},
		{"constraint violation", pqErr("23505"), faultOther},
		{"syntax error", pqErr("42601"), faultOther},

		{"too many connections", pqErr("53300"), faultPoolExhausted},
		{"configuration limit", pqErr("53400"), faultPoolExhausted},
		{"insufficient resources class", pqErr("53000"), faultPoolExhausted},
		{"wrapped pq pool error", fmt.Errorf("insert: %w", pqErr("53300")), faultPoolExhausted},
		{"pooler wait timeout", errors.New("timed out fetching a new connection from the connection pool"), faultPoolExhausted},
		{"too many clients", errors.New("pq: sorry, too many clients already"), faultPoolExhausted},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutErr{}}, faultPoolExhausted},

		{"bad conn", driver.ErrBadConn, faultUnreachable},
		{"eof", io.EOF, faultUnreachable},
		{"unexpected eof", io.ErrUnexpectedEOF, faultUnreachable},
		{"admin shutdown", pqErr("57P01"), faultUnreachable},
		{"crash shutdown", pqErr("57P02"), faultUnreachable},
		{"cannot connect now", pqErr("57P03"), faultUnreachable},
		{"connection class", pqErr("08006"), faultUnreachable},
		{"net refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, faultUnreachable},
		{"refused by message", errors.New("dial tcp 10.0.0.1:5432: connect: connection refused"), faultUnreachable},
		{"reset by message", errors.New("read tcp: connection reset by peer"), faultUnreachable},
		{"unknown host", errors.New("lookup db.internal: no such host"), faultUnreachable},
		{"prisma-style unreachable", errors.New("can't reach database server"), faultUnreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.want {
				t.Fatalf("classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestFaultClassString(t *testing.T) {
	if got := faultPoolExhausted.String(); got != "pool_exhausted" {
		t.Fatalf("got %q", got)
	}
	if got := faultUnreachable.String(); got != "unreachable" {
		t.Fatalf("got %q", got)
	}
	if got := faultOther.String(); got != "other" {
		t.Fatalf("got %q", got)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }
