package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/lib/pq"
)

// faultClass partitions operation failures by the remedy they need. A
// saturated pool recovers by waiting; a dead socket or stale DNS entry never
// does and requires a client replacement; everything else is the caller's
// problem and must not be retried.
type faultClass int

const (
	faultOther faultClass = iota
	faultPoolExhausted
	faultUnreachable
)

func (c faultClass) String() string {
	switch c {
	case faultPoolExhausted:
		return "pool_exhausted"
	case faultUnreachable:
		return "unreachable"
	}
	return "other"
}

// Postgres error classes/codes observed from pooled serverless backends.
const (
	pqTooManyConnections  = "53300"
	pqConfigurationLimit  = "53400"
	pqAdminShutdown       = "57P01"
	pqCrashShutdown       = "57P02"
	pqCannotConnectNow    = "57P03"
	pqConnectionClass     = "08"
	pqResourceClass       = "53" // insufficient_resources class
)

func classify(err error) faultClass {
	if err == nil {
		return faultOther
	}

	// Context cancellation belongs to the caller, never retried here.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return faultOther
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return faultUnreachable
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		switch code {
		case pqTooManyConnections, pqConfigurationLimit:
			return faultPoolExhausted
		case pqAdminShutdown, pqCrashShutdown, pqCannotConnectNow:
			return faultUnreachable
		}
		if strings.HasPrefix(code, pqConnectionClass) {
			return faultUnreachable
		}
		if strings.HasPrefix(code, pqResourceClass) {
			return faultPoolExhausted
		}
		return faultOther
	}

	var netErr *net.OpError
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return faultPoolExhausted
		}
		return faultUnreachable
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection pool"),
		strings.Contains(msg, "too many clients"),
		strings.Contains(msg, "timed out fetching"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"):
		return faultPoolExhausted
	case strings.Contains(msg, "can't reach database"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "network is unreachable"),
		strings.Contains(msg, "bad connection"):
		return faultUnreachable
	}

	return faultOther
}
